package graph

import (
	"context"
)

// UnitAction is the external effect that realizes a unit. Both operations
// are assumed idempotent when retried externally; the orchestrator itself
// never retries a failed action.
type UnitAction interface {
	// Apply brings the unit to its target state and returns its outputs.
	// The resolved inputs contain one value per declared input parameter.
	Apply(ctx context.Context, inputs map[string]string) (map[string]string, error)

	// Delete removes the unit.
	Delete(ctx context.Context) error
}

// ActionFuncs adapts plain functions to the UnitAction interface.
type ActionFuncs struct {
	ApplyFunc  func(ctx context.Context, inputs map[string]string) (map[string]string, error)
	DeleteFunc func(ctx context.Context) error
}

// Apply implements UnitAction.
func (a ActionFuncs) Apply(ctx context.Context, inputs map[string]string) (map[string]string, error) {
	if a.ApplyFunc == nil {
		return nil, nil
	}
	return a.ApplyFunc(ctx, inputs)
}

// Delete implements UnitAction.
func (a ActionFuncs) Delete(ctx context.Context) error {
	if a.DeleteFunc == nil {
		return nil
	}
	return a.DeleteFunc(ctx)
}

// StaticAction realizes a unit by returning a fixed output set. It backs
// units declared in manifests without a registered action, which makes plans
// executable end to end in tests and dry runs.
type StaticAction struct {
	outputs map[string]string
}

// NewStaticAction creates an action that returns the given outputs on apply.
func NewStaticAction(outputs map[string]string) *StaticAction {
	copied := make(map[string]string, len(outputs))
	for name, value := range outputs {
		copied[name] = value
	}
	return &StaticAction{outputs: copied}
}

// Apply implements UnitAction.
func (a *StaticAction) Apply(_ context.Context, _ map[string]string) (map[string]string, error) {
	outputs := make(map[string]string, len(a.outputs))
	for name, value := range a.outputs {
		outputs[name] = value
	}
	return outputs, nil
}

// Delete implements UnitAction.
func (a *StaticAction) Delete(_ context.Context) error {
	return nil
}

// actionFor returns the unit's action, defaulting to a static action over
// the declared outputs.
func actionFor(unit *Unit) UnitAction {
	if unit.Action != nil {
		return unit.Action
	}
	return NewStaticAction(unit.Outputs)
}
