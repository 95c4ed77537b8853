package pipeline

import "fmt"

// SchemaValidationError indicates that the model could not produce
// schema-conformant output for a stage, even after re-prompting.
type SchemaValidationError struct {
	Stage  string // "structure" or "synthesize"
	Reason string // Last parse or validation failure
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s: model output failed schema validation: %s", e.Stage, e.Reason)
}
