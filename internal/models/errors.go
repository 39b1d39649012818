package models

import "fmt"

// ValidationError reports malformed input to a mutating operation.
// It is returned before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NotFoundError reports a reference to an unknown entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InvalidStateError reports an operation against an entity in the wrong lifecycle state.
type InvalidStateError struct {
	ID    string
	State BetResult
	Op    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s bet %s in state %s", e.Op, e.ID, e.State)
}
