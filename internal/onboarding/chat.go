package onboarding

import (
	"context"
	"fmt"
	"strings"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/knowledge"
)

const chatHistoryLimit = 20

func (o *Orchestrator) chatReply(ctx context.Context, current knowledge.Record, history []ai.Message) (string, error) {
	system := render(systemPrompt, map[string]string{
		"KNOWLEDGE":  current.String(),
		"COMPLETION": o.composer.Completion(),
	})

	if len(history) > chatHistoryLimit {
		history = history[len(history)-chatHistoryLimit:]
	}
	answer, err := o.generator.Generate(ctx, ai.Request{System: system, Messages: history})
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "Sorry, I lost my train of thought. Could you say that again?"
	}
	return answer, nil
}
