package ai

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "plain", input: `{"a":1}`, expect: `{"a":1}`},
		{name: "fenced json", input: "```json\n{\"a\":1}\n```", expect: `{"a":1}`},
		{name: "fenced bare", input: "```\n{\"a\":1}\n```", expect: `{"a":1}`},
		{name: "prose around", input: "Sure! Here it is: {\"a\":1} Hope it helps.", expect: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractJSON(tt.input); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestDecodeJSONWeakTyping(t *testing.T) {
	t.Parallel()

	var out struct {
		Score  int    `mapstructure:"suitability_score"`
		Reason string `mapstructure:"reason"`
	}
	if err := DecodeJSON("```json\n{\"suitability_score\": \"85\", \"reason\": \"fits\"}\n```", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Score != 85 || out.Reason != "fits" {
		t.Fatalf("unexpected result: %+v", out)
	}

	if err := DecodeJSON("not json at all", &out); err == nil {
		t.Fatalf("expected error for non-json input")
	}
	if err := DecodeJSON("null", &out); err == nil {
		t.Fatalf("expected error for null input")
	}
}

func TestCoerce(t *testing.T) {
	t.Parallel()

	if CoerceFloat("42.5") != 42.5 || CoerceFloat(7) != 7 {
		t.Fatalf("unexpected float coercion")
	}
	if !math.IsNaN(CoerceFloat("n/a")) || !math.IsNaN(CoerceFloat(nil)) {
		t.Fatalf("expected NaN for non numbers")
	}
	if CoerceString("  hi ") != "hi" || CoerceString(nil) != "" || CoerceString(3.0) != "3" {
		t.Fatalf("unexpected string coercion")
	}
}

type countingGenerator struct {
	calls atomic.Int32
}

func (c *countingGenerator) Generate(context.Context, Request) (string, error) {
	c.calls.Add(1)
	return "ok", nil
}

func (c *countingGenerator) Model() string { return "counting" }

func TestRateLimitedHonoursContext(t *testing.T) {
	t.Parallel()

	next := &countingGenerator{}
	limited := NewRateLimited(next, 1)

	if _, err := limited.Generate(context.Background(), Prompt("s", "u")); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := limited.Generate(ctx, Prompt("s", "u")); err == nil {
		t.Fatalf("second call should be throttled past the deadline")
	}

	if next.calls.Load() != 1 {
		t.Fatalf("expected 1 call to reach the provider, got %d", next.calls.Load())
	}
	if limited.Model() != "counting" {
		t.Fatalf("unexpected model: %s", limited.Model())
	}
}

func TestRateLimitedDisabled(t *testing.T) {
	t.Parallel()

	next := &countingGenerator{}
	if got := NewRateLimited(next, 0); got != Generator(next) {
		t.Fatalf("expected generator to be returned unchanged")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("gpt-4o", &countingGenerator{})
	r.Register("deepseek-chat", &countingGenerator{})
	r.Register("gpt-4o", &countingGenerator{})

	names := r.Names()
	if len(names) != 2 || names[0] != "gpt-4o" || names[1] != "deepseek-chat" {
		t.Fatalf("unexpected names: %v", names)
	}
	if _, err := r.Get("claude"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
	if _, err := r.Get("deepseek-chat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProviderError(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	err := error(&ProviderError{Provider: "gemini", Model: "m", Err: base})
	wrapped := errors.Join(errors.New("route"), err)

	if !IsProviderError(wrapped) || !errors.Is(wrapped, base) {
		t.Fatalf("expected provider error to be detectable through wrapping")
	}
}
