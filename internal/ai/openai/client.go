package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/logger"
	"github.com/spigell/agency-onboarder/internal/utils"
)

const (
	defaultProvider     = "openai"
	defaultModel        = "gpt-4o-mini"
	defaultMaxRetries   = 3
	defaultMaxTokens    = 1024
	defaultMaxLogLength = 200
	baseRetryDelay      = time.Second
	maxRetryDelay       = 20 * time.Second

	// DeepSeekBaseURL serves the OpenAI compatible DeepSeek API.
	DeepSeekBaseURL = "https://api.deepseek.com"
)

var sleep = time.Sleep

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Config configures an OpenAI compatible generator.
type Config struct {
	// Provider is only used for logs and errors, e.g. "openai" or "deepseek".
	Provider     string
	APIKey       string
	BaseURL      string
	Model        string
	MaxRetries   int
	MaxTokens    int
	Temperature  float32
	MaxLogLength int
}

// Generator talks to any chat completions endpoint compatible with OpenAI.
type Generator struct {
	client      chatCompleter
	provider    string
	model       string
	maxRetries  int
	maxTokens   int
	temperature float32
	maxLogLen   int
	logger      *zap.Logger
}

// NewGenerator creates a Generator. BaseURL overrides the OpenAI endpoint.
func NewGenerator(cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}

	g := newGenerator(goopenai.NewClientWithConfig(clientCfg), cfg, log)
	return g, nil
}

func newGenerator(client chatCompleter, cfg Config, log *zap.Logger) *Generator {
	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" {
		provider = defaultProvider
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Generator{
		client:      client,
		provider:    provider,
		model:       model,
		maxRetries:  retries,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		maxLogLen:   maxLogLen,
		logger:      logger.WithModel(log, provider, model),
	}
}

func (g *Generator) Generate(ctx context.Context, req ai.Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", errors.New("at least one message is required")
	}

	apiReq := goopenai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toMessages(req),
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}
	if req.Schema != nil {
		apiReq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	g.logger.Debug("chat completion request",
		zap.Int("messages", len(apiReq.Messages)),
		zap.String("last_message_preview", utils.TruncateForLog(req.Messages[len(req.Messages)-1].Content, g.maxLogLen)),
		zap.Bool("json_mode", req.Schema != nil),
	)

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		resp, err := g.client.CreateChatCompletion(ctx, apiReq)
		if err == nil {
			output := ""
			if len(resp.Choices) > 0 {
				output = strings.TrimSpace(resp.Choices[0].Message.Content)
			}
			if output != "" {
				g.logger.Debug("chat completion response",
					zap.Int("attempt", attempt+1),
					zap.Int("response_length", utf8.RuneCountInString(output)),
					zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
					zap.Int("prompt_tokens", resp.Usage.PromptTokens),
					zap.Int("completion_tokens", resp.Usage.CompletionTokens),
				)
				return output, nil
			}
			err = errors.New("empty completion")
		}
		lastErr = err

		if !retryable(err) || attempt == g.maxRetries-1 {
			break
		}

		delay := utils.Backoff(attempt, baseRetryDelay, maxRetryDelay)
		g.logger.Warn("chat completion failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := utils.WaitWith(ctx, delay, sleep); err != nil {
			lastErr = err
			break
		}
	}

	return "", &ai.ProviderError{Provider: g.provider, Model: g.model, Retryable: retryable(lastErr), Err: lastErr}
}

func (g *Generator) Model() string {
	return g.model
}

func toMessages(req ai.Request) []goopenai.ChatCompletionMessage {
	system := strings.TrimSpace(req.System)
	if req.Schema != nil {
		system = fmt.Sprintf("%s\n\nRespond only with a JSON object matching this JSON schema:\n%s", system, req.Schema)
		system = strings.TrimSpace(system)
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if system != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case ai.RoleAssistant:
			messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: m.Content})
		case ai.RoleTool:
			// tool results are replayed as user turns since no tool call id is kept
			messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: "Tool result:\n" + m.Content})
		default:
			messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return messages
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return false
}
