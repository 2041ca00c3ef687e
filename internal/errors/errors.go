// Package errors defines the error taxonomy shared by the schedule engine
// and the API layer, plus panic recovery helpers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel kinds. Typed errors below match these with errors.Is.
var (
	ErrValidation = stderrors.New("validation error")
	ErrNotFound   = stderrors.New("not found")
	ErrInternal   = stderrors.New("internal error")
)

// ValidationError reports bad caller input. Message is safe to show verbatim.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// Is reports whether target is ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation creates a ValidationError for field
func Validation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing (or unrecognizable) resource.
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// Is reports whether target is ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound creates a NotFoundError
func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// InternalError wraps a failure that must not leak to callers.
type InternalError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause
func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInternal
func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

// Internal wraps err as an InternalError for op
func Internal(op string, err error) *InternalError {
	return &InternalError{Op: op, Err: err}
}

// Is and As re-export the standard helpers so callers importing this
// package under the name "errors" don't need a second import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }
