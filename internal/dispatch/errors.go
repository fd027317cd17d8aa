package dispatch

import "fmt"

// ComputationError reports malformed intermediate state. It is fatal for the run.
type ComputationError struct {
	Stage  string
	Reason string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("dispatch %s: %s", e.Stage, e.Reason)
}

func computationErrorf(stage, format string, args ...any) error {
	return &ComputationError{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}
