package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Field keys shared by every component so log lines of one turn or one job can be joined.
const (
	FieldProvider = "ai_provider"
	FieldModel    = "ai_model"
	FieldThread   = "thread_id"
	FieldRoute    = "route"
	FieldJob      = "job_id"
)

// With attaches key/value pairs to log. Pairs with an empty key or value are
// skipped and a trailing key without a value is ignored. A nil log becomes a no-op logger.
func With(log *zap.Logger, kv ...string) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}

	var fields []zap.Field
	for i := 0; i+1 < len(kv); i += 2 {
		key, value := strings.TrimSpace(kv[i]), strings.TrimSpace(kv[i+1])
		if key == "" || value == "" {
			continue
		}
		fields = append(fields, zap.String(key, value))
	}
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}

// WithModel tags log with the provider and model that serve a request.
func WithModel(log *zap.Logger, provider, model string) *zap.Logger {
	return With(log, FieldProvider, provider, FieldModel, model)
}

func WithThread(log *zap.Logger, threadID string) *zap.Logger {
	return With(log, FieldThread, threadID)
}

func WithJob(log *zap.Logger, jobID string) *zap.Logger {
	return With(log, FieldJob, jobID)
}
