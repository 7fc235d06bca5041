package graph

import (
	"encoding/json"
	"fmt"
)

// UnitState represents the lifecycle state of a unit during a run.
type UnitState string

const (
	// StateAbsent indicates the unit does not exist.
	StateAbsent UnitState = "absent"

	// StatePlanned indicates the unit is part of the current plan but has
	// not started applying yet.
	StatePlanned UnitState = "planned"

	// StateApplying indicates the unit's apply action is in flight.
	StateApplying UnitState = "applying"

	// StateApplied indicates the unit's apply action completed and its
	// outputs are available.
	StateApplied UnitState = "applied"

	// StateFailed indicates the unit's action failed.
	StateFailed UnitState = "failed"

	// StateDeleting indicates the unit's delete action is in flight.
	StateDeleting UnitState = "deleting"
)

// IsTerminal returns true if the state represents a final state for a run.
func (s UnitState) IsTerminal() bool {
	return s == StateApplied || s == StateFailed || s == StateAbsent
}

// InFlight returns true if an action is currently executing for the unit.
// A unit is never in flight on two workers simultaneously.
func (s UnitState) InFlight() bool {
	return s == StateApplying || s == StateDeleting
}

// Validate checks if the unit state is valid.
func (s UnitState) Validate() error {
	switch s {
	case StateAbsent, StatePlanned, StateApplying, StateApplied, StateFailed, StateDeleting:
		return nil
	default:
		return fmt.Errorf("invalid unit state: %s", s)
	}
}

// RunStatus represents the overall status of an orchestrator run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates all units reached their target state.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates at least one unit failed; downstream units
	// were never attempted.
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s UnitState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *UnitState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = UnitState(str)
	return s.Validate()
}
