package onboarding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/knowledge"
	"github.com/spigell/agency-onboarder/internal/scraper"
	"github.com/spigell/agency-onboarder/internal/utils"
)

// Extractor turns new evidence into a partial knowledge record.
type Extractor struct {
	generator ai.Generator
	logger    *zap.Logger
	maxLogLen int
}

func NewExtractor(generator ai.Generator, logger *zap.Logger, maxLogLen int) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{generator: generator, logger: logger, maxLogLen: maxLogLen}
}

// FromConversation extracts the facts addressed in window. Fields the
// window does not talk about are left unknown.
func (e *Extractor) FromConversation(ctx context.Context, current knowledge.Record, window []ai.Message) (knowledge.Record, error) {
	prompt := render(extractConversationPrompt, map[string]string{
		"KNOWLEDGE":    current.String(),
		"INTERACTIONS": formatInteractions(window),
		"CATEGORIES":   categoryNames(),
		"LEVELS":       levelNames(),
	})
	return e.extract(ctx, FromConversation, prompt)
}

// FromProfile extracts facts from a scraped profile. When something was
// scraped, a category that the profile does not show is recorded as false.
// An empty profile proves nothing about categories or levels, so whatever the
// model says about them is dropped.
func (e *Extractor) FromProfile(ctx context.Context, current knowledge.Record, profile *scraper.Profile) (knowledge.Record, error) {
	prompt := render(extractProfilePrompt, map[string]string{
		"KNOWLEDGE":  current.String(),
		"PROFILE":    profile.JSON(),
		"CATEGORIES": categoryNames(),
		"LEVELS":     levelNames(),
	})

	update, err := e.extract(ctx, FromProfile, prompt)
	if err != nil {
		return update, err
	}
	if profile.Empty() {
		update.Categories = nil
		update.ExperienceLevels = nil
		return update, nil
	}
	return applyProfileEvidence(update, profile), nil
}

func (e *Extractor) extract(ctx context.Context, mode ExtractMode, prompt string) (knowledge.Record, error) {
	raw, err := e.generator.Generate(ctx, ai.Request{
		Messages: []ai.Message{{Role: ai.RoleUser, Content: prompt}},
		Schema:   knowledgeSchema(),
	})
	if err != nil {
		return knowledge.Record{}, fmt.Errorf("%s extraction: %w", mode, err)
	}

	e.logger.Debug("extraction response",
		zap.String("mode", string(mode)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	data, err := ai.DecodeObject(raw)
	if err != nil {
		return knowledge.Record{}, &ExtractionSchemaError{Mode: mode, Raw: raw, Err: err}
	}
	update, err := knowledge.FromMap(data)
	if err != nil {
		return knowledge.Record{}, &ExtractionSchemaError{Mode: mode, Raw: raw, Err: err}
	}
	return update, nil
}

// applyProfileEvidence forces what the scraped page proves: listed services
// are offered, unlisted categories are not, and the shown rate is the minimum.
func applyProfileEvidence(update knowledge.Record, profile *scraper.Profile) knowledge.Record {
	out := update.Clone()
	if out.Categories == nil {
		out.Categories = make(map[knowledge.Category]knowledge.Tri, len(knowledge.Categories))
	}

	for _, service := range profile.Services {
		for _, c := range knowledge.Categories {
			if strings.EqualFold(strings.TrimSpace(service), string(c)) {
				out.Categories[c] = knowledge.True
			}
		}
	}
	for _, c := range knowledge.Categories {
		if !out.Categories[c].Known() {
			out.Categories[c] = knowledge.False
		}
	}

	if out.MinHourlyRate == nil && profile.HourlyRate != "" {
		if rate, ok := knowledge.ParseAmount(profile.HourlyRate); ok {
			out.MinHourlyRate = knowledge.Float(rate)
		}
	}
	return out
}
