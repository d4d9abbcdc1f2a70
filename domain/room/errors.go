package room

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")

	// ErrUnbound is returned for events from a connection that has not joined
	// the addressed room. Callers drop these without replying.
	ErrUnbound = errors.New("connection is not bound to the room")
)

// ValidationError reports a missing or malformed inbound field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func required(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}
