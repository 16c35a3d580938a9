package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownAgent is returned when a request names an agent that is not registered.
var ErrUnknownAgent = errors.New("unknown agent")

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// CollaboratorError reports a failed call to an external service.
type CollaboratorError struct {
	Collaborator string
	StatusCode   int
	Message      string
	Err          error
}

func (e *CollaboratorError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s error [%d]: %s", e.Collaborator, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Collaborator, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Collaborator, e.Message)
	}
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
