package policy

import (
	"time"

	"github.com/openstrata/strata/pkg/graph"
)

// Severity classifies how a violation affects the run.
type Severity string

const (
	// SeverityWarning reports the violation without blocking the run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run.
	SeverityError Severity = "error"
)

// Policy is one named Rego policy.
type Policy struct {
	// Name is the unique policy name.
	Name string `json:"name"`

	// Description explains what the policy enforces.
	Description string `json:"description"`

	// Severity is the default severity for the policy's violations.
	Severity Severity `json:"severity"`

	// Enabled controls whether the policy is evaluated.
	Enabled bool `json:"enabled"`

	// Rego is the policy source.
	Rego string `json:"-"`
}

// Input is the document policies evaluate against.
type Input struct {
	// Units are the stack's units.
	Units []graph.Unit `json:"units"`

	// Direction is the run direction (up, down).
	Direction string `json:"direction"`

	// Environment is the deployment environment label.
	Environment string `json:"environment"`
}

// Violation is one deny result.
type Violation struct {
	// Policy is the policy that produced the violation.
	Policy string `json:"policy"`

	// Severity is the violation severity.
	Severity string `json:"severity"`

	// Unit is the unit involved, if any.
	Unit string `json:"unit,omitempty"`

	// Message is the human-readable violation message.
	Message string `json:"message"`
}

// Result is the outcome of evaluating all policies against one input.
type Result struct {
	// Allowed is false if any error-severity violation fired.
	Allowed bool `json:"allowed"`

	// Violations are all deny results, warnings included.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when evaluation completed.
	EvaluatedAt time.Time `json:"evaluatedAt"`
}
