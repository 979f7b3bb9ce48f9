package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown session or question.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// UpstreamError reports a failed call to the adaptive engine.
type UpstreamError struct {
	Timeout    bool
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("adaptive engine timed out: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("adaptive engine returned status %d", e.StatusCode)
	default:
		return fmt.Sprintf("adaptive engine unavailable: %v", e.Err)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// PersistenceError reports a store-level failure.
// Retryable is set for lock contention and serialization failures.
type PersistenceError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError or wraps ErrNotFound.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, ErrNotFound)
}
