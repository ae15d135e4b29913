package onboarding

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/conversation"
	"github.com/spigell/agency-onboarder/internal/knowledge"
)

// DefaultCompletionMessage is sent verbatim once every feed preference is known.
const DefaultCompletionMessage = "Perfect! We have all the information needed to optimize your job feed 🎯. Let me know if you'd like to update any preferences!"

var (
	//go:embed prompts/router.md
	routerPrompt string
	//go:embed prompts/extract_conversation.md
	extractConversationPrompt string
	//go:embed prompts/extract_profile.md
	extractProfilePrompt string
	//go:embed prompts/followup.md
	followUpPrompt string
	//go:embed prompts/system.md
	systemPrompt string
)

func render(template string, values map[string]string) string {
	out := template
	for key, value := range values {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return strings.TrimSpace(out)
}

func formatInteractions(window []ai.Message) string {
	if len(window) == 0 {
		return "(no messages yet)"
	}
	var b strings.Builder
	for _, m := range window {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, strings.TrimSpace(m.Content))
	}
	return strings.TrimSpace(b.String())
}

func categoryNames() string {
	names := make([]string, 0, len(knowledge.Categories))
	for _, c := range knowledge.Categories {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

func levelNames() string {
	names := make([]string, 0, len(knowledge.ExperienceLevels))
	for _, l := range knowledge.ExperienceLevels {
		names = append(names, string(l))
	}
	return strings.Join(names, ", ")
}

var preferenceQuestions = map[knowledge.Preference]string{
	knowledge.ProjectDuration:    "What is the shortest project duration (in months) you'd like to see in your feed?",
	knowledge.AverageClientSpent: "How much should a client have spent on Upwork (in USD) before their jobs show up for you?",
	knowledge.HourlyWorkload:     "What's the minimum hourly workload (hours per week) a job should offer?",
	knowledge.IsCompany:          "Should your feed only show jobs from companies, or are individual clients fine too?",
}

var preferenceDescriptions = map[knowledge.Preference]string{
	knowledge.ProjectDuration:    "projectDurationMin: minimum project duration in months",
	knowledge.AverageClientSpent: "averageClientSpentMin: minimum amount in USD the client has spent on Upwork",
	knowledge.HourlyWorkload:     "hourlyWorkloadMin: minimum hourly workload in hours per week",
	knowledge.IsCompany:          "isCompany: whether clients must be companies",
}

func nullable(t ai.SchemaType, description string) *ai.Schema {
	return &ai.Schema{Type: t, Nullable: true, Description: description}
}

func triDictSchema[K ~string](keys []K, description string) *ai.Schema {
	names := make([]string, 0, len(keys))
	props := make(map[string]*ai.Schema, len(keys))
	for _, k := range keys {
		names = append(names, string(k))
		props[string(k)] = nullable(ai.TypeBoolean, "")
	}
	s := ai.Object(names, props)
	s.Description = description
	return s
}

func knowledgeSchema() *ai.Schema {
	names := []string{
		"categories", "experienceLevels", "minHourlyRate", "fixedPriceMin",
		"projectDurationMin", "averageClientSpentMin", "hourlyWorkloadMin", "isCompany",
	}
	return ai.Object(names, map[string]*ai.Schema{
		"categories":            triDictSchema(knowledge.Categories, "service categories the agency offers"),
		"experienceLevels":      triDictSchema(knowledge.ExperienceLevels, "experience levels of jobs the agency takes"),
		"minHourlyRate":         nullable(ai.TypeNumber, "minimum hourly rate in USD"),
		"fixedPriceMin":         nullable(ai.TypeNumber, "minimum fixed price budget in USD"),
		"projectDurationMin":    nullable(ai.TypeNumber, "minimum project duration in months"),
		"averageClientSpentMin": nullable(ai.TypeNumber, "minimum total USD the client has spent on Upwork"),
		"hourlyWorkloadMin":     nullable(ai.TypeNumber, "minimum hourly workload in hours per week"),
		"isCompany":             nullable(ai.TypeBoolean, "whether clients must be companies"),
	}, "categories", "experienceLevels")
}

func routerSchema() *ai.Schema {
	decisions := make([]string, 0, len(conversation.Decisions))
	for _, d := range conversation.Decisions {
		decisions = append(decisions, string(d))
	}
	return ai.Object([]string{"decision", "reasoning", "actionArgs"}, map[string]*ai.Schema{
		"decision":  {Type: ai.TypeString, Enum: decisions},
		"reasoning": {Type: ai.TypeString},
		"actionArgs": ai.Object([]string{"url"}, map[string]*ai.Schema{
			"url": {Type: ai.TypeString},
		}),
	}, "decision", "reasoning")
}
