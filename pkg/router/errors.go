package router

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the router.
const (
	// ErrCodeValidation indicates a malformed event shape.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeNotFound indicates a sync lookup miss.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeDependency indicates a downstream store was unavailable or
	// timed out.
	ErrCodeDependency = "DEPENDENCY_ERROR"

	// ErrCodeUnknownEvent indicates an event that matched no known source.
	ErrCodeUnknownEvent = "UNKNOWN_EVENT"
)

// RouterError is a classified router error.
// nolint:revive // RouterError is intentionally named to distinguish from standard errors
type RouterError struct {
	// Code is the error code for programmatic handling.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Record is the index of the notification record involved, if any.
	Record int `json:"record,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *RouterError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *RouterError) Is(target error) bool {
	t, ok := target.(*RouterError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithRecord adds record index context to an error.
func (e *RouterError) WithRecord(index int) *RouterError {
	e.Record = index
	return e
}

// NewValidationError creates a malformed-event error.
func NewValidationError(message string, err error) *RouterError {
	return &RouterError{Code: ErrCodeValidation, Message: message, Err: err}
}

// NewNotFoundError creates a lookup-miss error.
func NewNotFoundError(message string, err error) *RouterError {
	return &RouterError{Code: ErrCodeNotFound, Message: message, Err: err}
}

// NewDependencyError creates a downstream-unavailable error.
func NewDependencyError(message string, err error) *RouterError {
	return &RouterError{Code: ErrCodeDependency, Message: message, Err: err}
}

// NewUnknownEventError creates an unknown-event error.
func NewUnknownEventError(message string) *RouterError {
	return &RouterError{Code: ErrCodeUnknownEvent, Message: message}
}

// codeOf extracts the router error code from an error chain.
func codeOf(err error) string {
	var e *RouterError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation returns true if the error reports a malformed event.
func IsValidation(err error) bool { return codeOf(err) == ErrCodeValidation }

// IsNotFound returns true if the error reports a lookup miss.
func IsNotFound(err error) bool { return codeOf(err) == ErrCodeNotFound }

// IsDependency returns true if the error reports an unavailable downstream.
func IsDependency(err error) bool { return codeOf(err) == ErrCodeDependency }

// IsUnknownEvent returns true if the error reports an unclassifiable event.
func IsUnknownEvent(err error) bool { return codeOf(err) == ErrCodeUnknownEvent }
