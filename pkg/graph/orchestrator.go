package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Metrics records orchestrator execution metrics. A nil recorder disables
// metrics collection.
type Metrics interface {
	// UnitCompleted records the outcome of a single unit action.
	UnitCompleted(direction, outcome string, duration time.Duration)

	// RunCompleted records the outcome of a whole run.
	RunCompleted(direction, status string, duration time.Duration)
}

// Tracer starts spans around runs and unit actions. A nil tracer disables
// tracing.
type Tracer interface {
	// StartRunSpan starts a span covering one whole run.
	StartRunSpan(ctx context.Context, runID, direction string) (context.Context, trace.Span)

	// StartUnitSpan starts a span covering one unit action.
	StartUnitSpan(ctx context.Context, unit, direction string) (context.Context, trace.Span)
}

// Config configures an Orchestrator.
type Config struct {
	// MaxParallel caps the number of unit actions in flight at once.
	MaxParallel int

	// ActionTimeout bounds each unit action. Zero means no bound.
	ActionTimeout time.Duration

	// Logger is the structured logger for run events.
	Logger zerolog.Logger

	// Metrics is an optional metrics recorder.
	Metrics Metrics

	// Tracer is an optional span recorder.
	Tracer Tracer

	// Runs is an optional store for run persistence.
	Runs RunStore
}

// Orchestrator executes dependency graphs. It owns the unit state registry
// for the duration of a run: a unit is never in flight on two workers at
// once, and state survives across Apply calls so a re-run after an operator
// fix resumes instead of restarting.
type Orchestrator struct {
	maxParallel   int
	actionTimeout time.Duration
	logger        zerolog.Logger
	metrics       Metrics
	tracer        Tracer
	runs          RunStore

	// mu guards states, outputs and resolved across workers.
	mu       sync.RWMutex
	states   map[string]UnitState
	outputs  map[string]map[string]string
	resolved map[string]map[string]string
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	return &Orchestrator{
		maxParallel:   cfg.MaxParallel,
		actionTimeout: cfg.ActionTimeout,
		logger:        cfg.Logger.With().Str("component", "orchestrator").Logger(),
		metrics:       cfg.Metrics,
		tracer:        cfg.Tracer,
		runs:          cfg.Runs,
		states:        make(map[string]UnitState),
		outputs:       make(map[string]map[string]string),
		resolved:      make(map[string]map[string]string),
	}
}

// Apply brings the graph's units to the target state for the direction:
// Applied for Up, Absent for Down. Up visits units in topological order,
// Down in reverse. The run halts at the first failed unit; units that were
// never attempted are reported as skipped. Unit failures are contained in
// the returned run report, not returned as an error.
func (o *Orchestrator) Apply(ctx context.Context, g *DependencyGraph, dir Direction) (*Run, error) {
	if g == nil {
		return nil, NewGraphError(ErrCodeValidation, "graph is nil", nil)
	}
	if err := dir.Validate(); err != nil {
		return nil, NewGraphError(ErrCodeValidation, err.Error(), nil)
	}

	run := &Run{
		ID:        uuid.New().String(),
		Direction: dir,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}

	var runSpan trace.Span
	if o.tracer != nil {
		ctx, runSpan = o.tracer.StartRunSpan(ctx, run.ID, string(dir))
	}

	log := o.logger.With().Str("run_id", run.ID).Str("direction", string(dir)).Logger()
	log.Info().Int("units", len(g.Units)).Msg("run started")

	o.prepare(g, dir)

	outcomes := make(map[string]string, len(g.Units))
	halted := false

	levels := g.Levels
	for i := 0; i < len(levels); i++ {
		level := levels[i]
		if dir == Down {
			level = levels[len(levels)-1-i]
		}

		failures := o.executeLevel(ctx, g, level, dir, halted, outcomes, log)
		if failures > 0 {
			halted = true
		}

		select {
		case <-ctx.Done():
			halted = true
		default:
		}
	}

	run.Report = o.buildReport(g, outcomes)
	completedAt := time.Now()
	run.CompletedAt = &completedAt
	run.Duration = completedAt.Sub(run.StartedAt)
	if run.Report.HasFailures() || (halted && len(run.Report.Skipped) > 0) {
		run.Status = RunStatusFailed
	} else {
		run.Status = RunStatusSucceeded
	}

	if o.metrics != nil {
		o.metrics.RunCompleted(string(dir), string(run.Status), run.Duration)
	}
	if runSpan != nil {
		if run.Status == RunStatusFailed {
			runSpan.SetStatus(codes.Error, "run failed")
		} else {
			runSpan.SetStatus(codes.Ok, "")
		}
		runSpan.End()
	}

	if o.runs != nil {
		if err := o.runs.SaveRun(ctx, run); err != nil {
			log.Error().Err(err).Msg("failed to persist run")
		}
	}

	log.Info().
		Str("status", string(run.Status)).
		Int("applied", len(run.Report.Applied)).
		Int("failed", len(run.Report.Failed)).
		Int("skipped", len(run.Report.Skipped)).
		Msg("run completed")

	return run, nil
}

// prepare seeds the state registry for a run. Units with no recorded state
// start Planned for deploys; teardown assumes unknown units are deployed so
// their delete action is still attempted.
func (o *Orchestrator) prepare(g *DependencyGraph, dir Direction) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for name := range g.Units {
		state, ok := o.states[name]
		switch dir {
		case Up:
			if !ok || state == StateAbsent || state == StateFailed {
				o.states[name] = StatePlanned
			}
		case Down:
			if !ok {
				o.states[name] = StateApplied
			}
		}
	}
}

// executeLevel runs all eligible units of one level in parallel and returns
// the number of failures. When the run is already halted every unit in the
// level is marked skipped without invoking its action.
func (o *Orchestrator) executeLevel(
	ctx context.Context,
	g *DependencyGraph,
	level []string,
	dir Direction,
	halted bool,
	outcomes map[string]string,
	log zerolog.Logger,
) int {
	type result struct {
		name    string
		outcome string
	}

	pending := make([]string, 0, len(level))
	var outcomeMu sync.Mutex

	for _, name := range level {
		if halted {
			outcomes[name] = outcomeSkipped
			continue
		}
		if ok, reason := o.eligible(g, name, dir); !ok {
			outcomes[name] = outcomeSkipped
			log.Warn().Str("unit", name).Str("reason", reason).Msg("unit skipped")
			continue
		}
		pending = append(pending, name)
	}

	if len(pending) == 0 {
		return 0
	}

	workers := o.maxParallel
	if len(pending) < workers {
		workers = len(pending)
	}

	queue := make(chan string, len(pending))
	for _, name := range pending {
		queue <- name
	}
	close(queue)

	var wg sync.WaitGroup
	failures := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range queue {
				outcome := o.executeUnit(ctx, g.Units[name], dir, log)
				outcomeMu.Lock()
				outcomes[name] = outcome
				if outcome == outcomeFailed {
					failures++
				}
				outcomeMu.Unlock()
			}
		}()
	}
	wg.Wait()

	return failures
}

const (
	outcomeApplied = "applied"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

// eligible reports whether a unit may execute in the given direction. For Up
// every producer must be Applied; for Down every dependent must be Absent —
// a producer is never deleted while a dependent still references it.
func (o *Orchestrator) eligible(g *DependencyGraph, name string, dir Direction) (bool, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	node := g.Nodes[name]
	switch dir {
	case Up:
		for _, dep := range node.Dependencies {
			if o.states[dep] != StateApplied {
				return false, fmt.Sprintf("producer %s is %s", dep, o.states[dep])
			}
		}
	case Down:
		for _, dep := range node.Dependents {
			if o.states[dep] != StateAbsent {
				return false, fmt.Sprintf("dependent %s is %s", dep, o.states[dep])
			}
		}
	}
	return true, ""
}

// executeUnit runs a single unit action and returns its outcome.
func (o *Orchestrator) executeUnit(ctx context.Context, unit *Unit, dir Direction, log zerolog.Logger) string {
	start := time.Now()

	actionCtx := ctx
	if o.actionTimeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(ctx, o.actionTimeout)
		defer cancel()
	}

	var span trace.Span
	if o.tracer != nil {
		actionCtx, span = o.tracer.StartUnitSpan(actionCtx, unit.Name, string(dir))
	}

	var outcome string
	switch dir {
	case Up:
		outcome = o.applyUnit(actionCtx, unit, log)
	case Down:
		outcome = o.deleteUnit(actionCtx, unit, log)
	}

	if span != nil {
		if outcome == outcomeFailed {
			span.SetStatus(codes.Error, "unit action failed")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
	if o.metrics != nil {
		o.metrics.UnitCompleted(string(dir), outcome, time.Since(start))
	}
	return outcome
}

// applyUnit resolves the unit's inputs, invokes its apply action, and
// records the outputs. A unit already Applied with identical resolved
// inputs is a no-op; changed inputs force re-applying.
func (o *Orchestrator) applyUnit(ctx context.Context, unit *Unit, log zerolog.Logger) string {
	inputs, err := o.resolveInputs(unit)
	if err != nil {
		o.setState(unit.Name, StateFailed)
		log.Error().Err(err).Str("unit", unit.Name).Msg("input resolution failed")
		return outcomeFailed
	}

	o.mu.Lock()
	if o.states[unit.Name] == StateApplied && equalInputs(o.resolved[unit.Name], inputs) {
		o.mu.Unlock()
		log.Debug().Str("unit", unit.Name).Msg("unit unchanged")
		return outcomeApplied
	}
	o.states[unit.Name] = StateApplying
	o.mu.Unlock()

	log.Info().Str("unit", unit.Name).Msg("applying unit")

	outputs, err := actionFor(unit).Apply(ctx, inputs)
	if err != nil {
		o.setState(unit.Name, StateFailed)
		log.Error().Err(err).Str("unit", unit.Name).Msg("unit apply failed")
		return outcomeFailed
	}

	// Declared defaults fill any outputs the action did not produce.
	merged := make(map[string]string, len(unit.Outputs))
	for name, value := range unit.Outputs {
		merged[name] = value
	}
	for name, value := range outputs {
		merged[name] = value
	}

	o.mu.Lock()
	o.states[unit.Name] = StateApplied
	o.outputs[unit.Name] = merged
	o.resolved[unit.Name] = inputs
	o.mu.Unlock()

	log.Info().Str("unit", unit.Name).Int("outputs", len(merged)).Msg("unit applied")
	return outcomeApplied
}

// deleteUnit invokes the unit's delete action. Deleting an Absent unit is a
// no-op.
func (o *Orchestrator) deleteUnit(ctx context.Context, unit *Unit, log zerolog.Logger) string {
	o.mu.Lock()
	if o.states[unit.Name] == StateAbsent {
		o.mu.Unlock()
		return outcomeApplied
	}
	o.states[unit.Name] = StateDeleting
	o.mu.Unlock()

	log.Info().Str("unit", unit.Name).Msg("deleting unit")

	if err := actionFor(unit).Delete(ctx); err != nil {
		o.setState(unit.Name, StateFailed)
		log.Error().Err(err).Str("unit", unit.Name).Msg("unit delete failed")
		return outcomeFailed
	}

	o.mu.Lock()
	o.states[unit.Name] = StateAbsent
	delete(o.outputs, unit.Name)
	delete(o.resolved, unit.Name)
	o.mu.Unlock()

	log.Info().Str("unit", unit.Name).Msg("unit deleted")
	return outcomeApplied
}

// resolveInputs materializes a unit's declared inputs from the outputs of
// already-applied producers.
func (o *Orchestrator) resolveInputs(unit *Unit) (map[string]string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	inputs := make(map[string]string, len(unit.Inputs))
	for param, ref := range unit.Inputs {
		if o.states[ref.Producer] != StateApplied {
			return nil, NewGraphError(ErrCodeNotReady,
				fmt.Sprintf("producer %s is not applied", ref.Producer), nil).
				WithUnit(unit.Name).WithRef(ref)
		}
		value, ok := o.outputs[ref.Producer][ref.Output]
		if !ok {
			return nil, NewGraphError(ErrCodeNotFound,
				fmt.Sprintf("producer %s has no output %s", ref.Producer, ref.Output), nil).
				WithUnit(unit.Name).WithRef(ref)
		}
		inputs[param] = value
	}
	return inputs, nil
}

// GetOutput returns a named output of a unit. It fails with NOT_READY before
// the unit reaches Applied and with NOT_FOUND for unknown names.
func (o *Orchestrator) GetOutput(unitName, outputName string) (string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	state, ok := o.states[unitName]
	if !ok {
		return "", NewGraphError(ErrCodeNotFound,
			fmt.Sprintf("unknown unit: %s", unitName), nil).WithUnit(unitName)
	}
	if state != StateApplied {
		return "", NewGraphError(ErrCodeNotReady,
			fmt.Sprintf("unit %s is %s", unitName, state), nil).WithUnit(unitName)
	}
	value, ok := o.outputs[unitName][outputName]
	if !ok {
		return "", NewGraphError(ErrCodeNotFound,
			fmt.Sprintf("unit %s has no output %s", unitName, outputName), nil).WithUnit(unitName)
	}
	return value, nil
}

// State returns the recorded state of a unit, defaulting to Absent.
func (o *Orchestrator) State(unitName string) UnitState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if state, ok := o.states[unitName]; ok {
		return state
	}
	return StateAbsent
}

// Restore seeds the state registry from persisted state, enabling a new
// process to resume a previous run.
func (o *Orchestrator) Restore(states map[string]UnitState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for name, state := range states {
		o.states[name] = state
	}
}

// setState updates a single unit state under the registry lock.
func (o *Orchestrator) setState(name string, state UnitState) {
	o.mu.Lock()
	o.states[name] = state
	o.mu.Unlock()
}

// buildReport assembles the per-unit outcome lists in topological order.
func (o *Orchestrator) buildReport(g *DependencyGraph, outcomes map[string]string) Report {
	report := Report{
		Applied: make([]string, 0),
		Failed:  make([]string, 0),
		Skipped: make([]string, 0),
	}

	for _, name := range g.Order {
		switch outcomes[name] {
		case outcomeApplied:
			report.Applied = append(report.Applied, name)
		case outcomeFailed:
			report.Failed = append(report.Failed, name)
		default:
			report.Skipped = append(report.Skipped, name)
		}
	}
	return report
}

// equalInputs compares two resolved input sets.
func equalInputs(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		bv, ok := b[k]
		if !ok || a[k] != bv {
			return false
		}
	}
	return true
}
