package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitWithUsesSleeper(t *testing.T) {
	t.Parallel()

	var slept time.Duration
	err := WaitWith(context.Background(), 3*time.Second, func(d time.Duration) { slept = d })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slept != 3*time.Second {
		t.Fatalf("expected sleeper to receive 3s, got %s", slept)
	}
}

func TestWaitWithCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	defer close(block)

	err := WaitWith(ctx, time.Hour, func(time.Duration) { <-block })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		expect  time.Duration
	}{
		{attempt: -1, expect: time.Second},
		{attempt: 0, expect: time.Second},
		{attempt: 1, expect: 2 * time.Second},
		{attempt: 2, expect: 4 * time.Second},
		{attempt: 10, expect: 10 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.attempt, time.Second, 10*time.Second); got != tt.expect {
			t.Fatalf("attempt %d: expected %s, got %s", tt.attempt, tt.expect, got)
		}
	}
}
