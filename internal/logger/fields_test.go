package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWith(t *testing.T) {
	tests := []struct {
		name   string
		kv     []string
		expect map[string]interface{}
	}{
		{
			name:   "trims keys and values",
			kv:     []string{"  " + FieldThread + " ", "  t-1  "},
			expect: map[string]interface{}{FieldThread: "t-1"},
		},
		{
			name:   "skips empty pairs",
			kv:     []string{FieldProvider, "", "", "orphan", FieldModel, "gpt-4o-mini"},
			expect: map[string]interface{}{FieldModel: "gpt-4o-mini"},
		},
		{
			name:   "ignores trailing key",
			kv:     []string{FieldJob, "job-1", FieldRoute},
			expect: map[string]interface{}{FieldJob: "job-1"},
		},
		{
			name:   "nothing to attach",
			kv:     nil,
			expect: map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, observed := observer.New(zapcore.InfoLevel)
			With(zap.New(core), tt.kv...).Info("entry")

			entries := observed.All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 entry, got %d", len(entries))
			}
			got := entries[0].ContextMap()
			if len(got) != len(tt.expect) {
				t.Fatalf("expected fields %v, got %v", tt.expect, got)
			}
			for k, v := range tt.expect {
				if got[k] != v {
					t.Fatalf("field %s: expected %v, got %v", k, v, got[k])
				}
			}
		})
	}
}

func TestWithNilLogger(t *testing.T) {
	if With(nil, FieldThread, "t-1") == nil {
		t.Fatalf("expected a no-op logger for nil input")
	}
	if WithModel(nil, "", "") == nil {
		t.Fatalf("expected a no-op logger for nil input")
	}
}

func TestHelpersTagEntries(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	WithJob(WithModel(log, "openai", "gpt-4o-mini"), "job-7").Debug("suitability request")
	WithThread(log, "thread-3").Info("turn started")

	entries := observed.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	scored := entries[0].ContextMap()
	if scored[FieldProvider] != "openai" || scored[FieldModel] != "gpt-4o-mini" || scored[FieldJob] != "job-7" {
		t.Fatalf("unexpected suitability fields: %v", scored)
	}
	if got := entries[1].ContextMap()[FieldThread]; got != "thread-3" {
		t.Fatalf("expected thread-3, got %v", got)
	}
}
