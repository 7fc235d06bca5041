package graph

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the orchestrator.
const (
	// ErrCodeCycleDetected indicates the declared references form a cycle
	// and no topological order exists.
	ErrCodeCycleDetected = "CYCLE_DETECTED"

	// ErrCodeUnresolvedReference indicates a parameter reference names a
	// producer or output that is not present in the unit set.
	ErrCodeUnresolvedReference = "UNRESOLVED_REFERENCE"

	// ErrCodeNotReady indicates an output was requested before the owning
	// unit reached the applied state.
	ErrCodeNotReady = "NOT_READY"

	// ErrCodeNotFound indicates an unknown unit or output name.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeValidation indicates a malformed unit set.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeUnitFailed indicates a unit's external action failed.
	ErrCodeUnitFailed = "UNIT_FAILED"

	// ErrCodeDependencyFailed indicates a unit was skipped because an
	// upstream unit never reached its target state.
	ErrCodeDependencyFailed = "DEPENDENCY_FAILED"
)

// GraphError is a classified orchestrator error with unit context.
type GraphError struct {
	// Code is the error code for programmatic handling.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Unit is the unit name the error relates to, if applicable.
	Unit string `json:"unit,omitempty"`

	// Ref is the parameter reference involved, if applicable.
	Ref string `json:"ref,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Unit != "" {
		msg = fmt.Sprintf("%s (unit=%s)", msg, e.Unit)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *GraphError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *GraphError) Is(target error) bool {
	t, ok := target.(*GraphError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithUnit adds unit context to an error.
func (e *GraphError) WithUnit(unit string) *GraphError {
	e.Unit = unit
	return e
}

// WithRef adds parameter reference context to an error.
func (e *GraphError) WithRef(ref ParamRef) *GraphError {
	e.Ref = ref.String()
	return e
}

// NewGraphError creates a new classified orchestrator error.
func NewGraphError(code, message string, err error) *GraphError {
	return &GraphError{Code: code, Message: message, Err: err}
}

// codeOf extracts the graph error code from an error chain.
func codeOf(err error) string {
	var e *GraphError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCycleDetected returns true if the error reports a dependency cycle.
func IsCycleDetected(err error) bool { return codeOf(err) == ErrCodeCycleDetected }

// IsUnresolvedReference returns true if the error reports a dangling reference.
func IsUnresolvedReference(err error) bool { return codeOf(err) == ErrCodeUnresolvedReference }

// IsNotReady returns true if the error reports an output read before apply.
func IsNotReady(err error) bool { return codeOf(err) == ErrCodeNotReady }

// IsNotFound returns true if the error reports an unknown unit or output.
func IsNotFound(err error) bool { return codeOf(err) == ErrCodeNotFound }
