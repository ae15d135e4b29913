package onboarding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/knowledge"
	"github.com/spigell/agency-onboarder/internal/utils"
)

const maxQuestionsPerTurn = 2

// Composer writes the reply that closes a turn which touched the knowledge.
type Composer struct {
	generator  ai.Generator
	completion string
	logger     *zap.Logger
	maxLogLen  int
}

func NewComposer(generator ai.Generator, completion string, logger *zap.Logger, maxLogLen int) *Composer {
	if strings.TrimSpace(completion) == "" {
		completion = DefaultCompletionMessage
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{generator: generator, completion: completion, logger: logger, maxLogLen: maxLogLen}
}

// Completion returns the message sent once every preference is known.
func (c *Composer) Completion() string {
	return c.completion
}

// Compose returns the completion message when all preferences are known,
// without asking the model. Otherwise it asks about up to two missing ones.
func (c *Composer) Compose(ctx context.Context, current knowledge.Record, window []ai.Message) (string, error) {
	missing := current.MissingPreferences()
	if len(missing) == 0 {
		return c.completion, nil
	}
	if len(missing) > maxQuestionsPerTurn {
		missing = missing[:maxQuestionsPerTurn]
	}

	lines := make([]string, 0, len(missing))
	for _, p := range missing {
		lines = append(lines, "- "+preferenceDescriptions[p])
	}

	prompt := render(followUpPrompt, map[string]string{
		"KNOWLEDGE":    current.String(),
		"INTERACTIONS": formatInteractions(window),
		"MISSING":      strings.Join(lines, "\n"),
	})

	answer, err := c.generator.Generate(ctx, ai.Prompt("", prompt))
	if err != nil {
		return "", fmt.Errorf("follow-up: %w", err)
	}
	answer = strings.TrimSpace(answer)

	if answer == "" || c.looksComplete(answer) {
		c.logger.Warn("follow-up answer unusable, asking a fixed question",
			zap.String("preference", string(missing[0])),
			zap.String("response_preview", utils.TruncateForLog(answer, c.maxLogLen)),
		)
		return preferenceQuestions[missing[0]], nil
	}
	return answer, nil
}

func (c *Composer) looksComplete(answer string) bool {
	return strings.Contains(strings.ToLower(answer), strings.ToLower(strings.TrimSpace(c.completion))) ||
		strings.HasPrefix(answer, "Perfect! We have all the information")
}
