package graph

import (
	"context"
	"fmt"
	"time"
)

// ParamRef is a typed reference from one unit's input to another unit's
// declared output. References must point strictly backwards in the DAG:
// a unit may only consume outputs of units ordered before it.
type ParamRef struct {
	// Producer is the name of the unit that owns the referenced output.
	Producer string `json:"producer"`

	// Output is the name of the output on the producer unit.
	Output string `json:"output"`
}

// String returns the canonical producer.output form of the reference.
func (r ParamRef) String() string {
	return fmt.Sprintf("%s.%s", r.Producer, r.Output)
}

// Unit is a named, versioned deployable component with declared inputs and
// outputs. The orchestrator treats the unit's action as an opaque external
// effect; its own contract is ordering, input propagation, and failure
// containment.
type Unit struct {
	// Name is the unique name of the unit within a plan.
	Name string `json:"name"`

	// Version is the declared version of the deployable.
	Version string `json:"version,omitempty"`

	// Kind is a free-form unit category (network, storage, compute, monitoring).
	Kind string `json:"kind,omitempty"`

	// Inputs maps input parameter names to references on producer outputs.
	Inputs map[string]ParamRef `json:"inputs,omitempty"`

	// Outputs are the output names the unit declares, with default values.
	// A unit's action may override the values at apply time, but may not
	// produce outputs it does not declare here.
	Outputs map[string]string `json:"outputs,omitempty"`

	// Labels are key-value pairs for organizing units.
	Labels map[string]string `json:"labels,omitempty"`

	// Action is the external effect that realizes or removes the unit.
	// Nil actions default to StaticAction over the declared outputs.
	Action UnitAction `json:"-"`
}

// DependencyGraph is the planned DAG over a set of units. It is built once
// per run from the declared inputs; construction fails if no topological
// order exists.
type DependencyGraph struct {
	// Units maps unit names to the planned units.
	Units map[string]*Unit `json:"-"`

	// Nodes maps unit names to their graph nodes.
	Nodes map[string]*GraphNode `json:"nodes"`

	// Edges lists all parameter reference edges in the graph.
	Edges []GraphEdge `json:"edges"`

	// Order is the deterministic topological order over unit names.
	// Ties within a level are broken by declaration order.
	Order []string `json:"order"`

	// Levels groups unit names by topological level. Units within a level
	// share no ancestry and are eligible for parallel execution.
	Levels [][]string `json:"levels"`
}

// GraphNode is one unit's position in the dependency graph.
type GraphNode struct {
	// Name is the unit name.
	Name string `json:"name"`

	// Level is the topological level (distance from the roots).
	Level int `json:"level"`

	// Dependencies are the unit names this unit consumes outputs from.
	Dependencies []string `json:"dependencies"`

	// Dependents are the unit names that consume this unit's outputs.
	Dependents []string `json:"dependents"`
}

// GraphEdge is a single parameter reference edge between two units.
type GraphEdge struct {
	// From is the producer unit name.
	From string `json:"from"`

	// To is the consumer unit name.
	To string `json:"to"`

	// Param is the consumer's input parameter name.
	Param string `json:"param"`

	// Output is the producer's output name being consumed.
	Output string `json:"output"`
}

// Direction selects whether a run brings units up (deploy, topological order)
// or down (teardown, reverse topological order).
type Direction string

const (
	// Up deploys units, producers before dependents.
	Up Direction = "up"

	// Down tears units down, dependents before producers.
	Down Direction = "down"
)

// Validate checks if the direction is valid.
func (d Direction) Validate() error {
	switch d {
	case Up, Down:
		return nil
	default:
		return fmt.Errorf("invalid direction: %s", d)
	}
}

// Run captures the outcome of one Apply invocation.
type Run struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	// Direction is the direction the run was applied in.
	Direction Direction `json:"direction"`

	// Status is the final status of the run.
	Status RunStatus `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run completed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`

	// Report summarizes per-unit outcomes.
	Report Report `json:"report"`
}

// Report lists unit outcomes in deterministic (topological) order. Skipped
// units were never attempted because an earlier unit failed or a dependency
// was unavailable.
type Report struct {
	Applied []string `json:"applied"`
	Failed  []string `json:"failed"`
	Skipped []string `json:"skipped"`
}

// HasFailures reports whether any unit failed during the run.
func (r Report) HasFailures() bool {
	return len(r.Failed) > 0
}

// Total returns the number of units the report accounts for.
func (r Report) Total() int {
	return len(r.Applied) + len(r.Failed) + len(r.Skipped)
}

// RunStore persists runs for later inspection. Implementations live in
// pkg/stores; a nil store disables persistence.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
}
