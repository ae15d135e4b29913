package onboarding

import "fmt"

// ExtractMode tells which evidence an extraction looked at.
type ExtractMode string

const (
	FromConversation ExtractMode = "conversation"
	FromProfile      ExtractMode = "profile"
)

// ExtractionSchemaError means the model answered with something that does
// not fit the knowledge record. The turn keeps the previous knowledge.
type ExtractionSchemaError struct {
	Mode ExtractMode
	Raw  string
	Err  error
}

func (e *ExtractionSchemaError) Error() string {
	return fmt.Sprintf("%s extraction returned malformed output: %v", e.Mode, e.Err)
}

func (e *ExtractionSchemaError) Unwrap() error {
	return e.Err
}
