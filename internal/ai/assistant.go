package ai

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single model call: a system prompt, the ordered conversation
// and, for structured output, the expected JSON shape.
type Request struct {
	System   string
	Messages []Message
	Schema   *Schema
}

// Prompt builds a request with one user message.
func Prompt(system, user string) Request {
	return Request{
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: user}},
	}
}

// Generator is implemented by every model provider.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}

// ProviderError wraps any failure of the underlying model API.
type ProviderError struct {
	Provider  string
	Model     string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err came from a model provider.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
