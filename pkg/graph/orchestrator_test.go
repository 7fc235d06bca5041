package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// callRecorder records action invocations across workers.
type callRecorder struct {
	mu    sync.Mutex
	order []string
	count map[string]int
}

func newCallRecorder() *callRecorder {
	return &callRecorder{count: make(map[string]int)}
}

func (r *callRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
	r.count[name]++
}

func (r *callRecorder) indexOf(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.order {
		if n == name {
			return i
		}
	}
	return -1
}

func (r *callRecorder) calls(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count[name]
}

func testOrchestrator() *Orchestrator {
	return NewOrchestrator(Config{MaxParallel: 4, Logger: zerolog.Nop()})
}

func applyAction(rec *callRecorder, name string, outputs map[string]string) UnitAction {
	return ActionFuncs{
		ApplyFunc: func(_ context.Context, _ map[string]string) (map[string]string, error) {
			rec.record(name)
			return outputs, nil
		},
		DeleteFunc: func(_ context.Context) error {
			rec.record("delete:" + name)
			return nil
		},
	}
}

func TestOrchestrator_ApplyUp_OrderAndPropagation(t *testing.T) {
	rec := newCallRecorder()
	var gotInputs map[string]string

	units := []Unit{
		{Name: "network", Outputs: map[string]string{"vpc_id": ""},
			Action: applyAction(rec, "network", map[string]string{"vpc_id": "vpc-42"})},
		{Name: "compute",
			Inputs: map[string]ParamRef{"vpc": {Producer: "network", Output: "vpc_id"}},
			Action: ActionFuncs{ApplyFunc: func(_ context.Context, inputs map[string]string) (map[string]string, error) {
				rec.record("compute")
				gotInputs = inputs
				return nil, nil
			}},
		},
	}

	g, err := Plan(units)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	o := testOrchestrator()
	run, err := o.Apply(context.Background(), g, Up)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if run.Status != RunStatusSucceeded {
		t.Errorf("Expected succeeded run, got %s", run.Status)
	}
	if rec.indexOf("network") > rec.indexOf("compute") {
		t.Errorf("Producer applied after consumer: %v", rec.order)
	}
	if gotInputs["vpc"] != "vpc-42" {
		t.Errorf("Expected resolved input vpc-42, got %q", gotInputs["vpc"])
	}

	value, err := o.GetOutput("network", "vpc_id")
	if err != nil {
		t.Fatalf("GetOutput failed: %v", err)
	}
	if value != "vpc-42" {
		t.Errorf("Expected output vpc-42, got %q", value)
	}
}

func TestOrchestrator_ApplyUp_Idempotent(t *testing.T) {
	rec := newCallRecorder()
	units := []Unit{
		{Name: "a", Outputs: map[string]string{"o": "1"}, Action: applyAction(rec, "a", nil)},
		{Name: "b", Inputs: map[string]ParamRef{"v": {Producer: "a", Output: "o"}},
			Action: applyAction(rec, "b", nil)},
	}

	g, err := Plan(units)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	o := testOrchestrator()
	if _, err := o.Apply(context.Background(), g, Up); err != nil {
		t.Fatalf("First apply failed: %v", err)
	}
	run, err := o.Apply(context.Background(), g, Up)
	if err != nil {
		t.Fatalf("Second apply failed: %v", err)
	}

	if run.Status != RunStatusSucceeded {
		t.Errorf("Expected succeeded run, got %s", run.Status)
	}
	if rec.calls("a") != 1 || rec.calls("b") != 1 {
		t.Errorf("Expected zero actions on re-apply, got a=%d b=%d", rec.calls("a"), rec.calls("b"))
	}
}

func TestOrchestrator_ChangedInputsForceReapply(t *testing.T) {
	rec := newCallRecorder()
	producer := Unit{Name: "p", Outputs: map[string]string{"o": "1"}, Action: applyAction(rec, "p", nil)}
	consumer := Unit{Name: "c",
		Inputs: map[string]ParamRef{"v": {Producer: "p", Output: "o"}},
		Action: applyAction(rec, "c", nil)}

	g1, err := Plan([]Unit{producer, consumer})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	o := testOrchestrator()
	if _, err := o.Apply(context.Background(), g1, Up); err != nil {
		t.Fatalf("First apply failed: %v", err)
	}

	// Second plan adds an input to the consumer; its resolved inputs change
	// and it must re-apply while the untouched producer stays a no-op.
	extra := Unit{Name: "x", Outputs: map[string]string{"o": "9"}, Action: applyAction(rec, "x", nil)}
	consumer2 := consumer
	consumer2.Inputs = map[string]ParamRef{
		"v": {Producer: "p", Output: "o"},
		"w": {Producer: "x", Output: "o"},
	}

	g2, err := Plan([]Unit{producer, extra, consumer2})
	if err != nil {
		t.Fatalf("Second plan failed: %v", err)
	}
	if _, err := o.Apply(context.Background(), g2, Up); err != nil {
		t.Fatalf("Second apply failed: %v", err)
	}

	if rec.calls("p") != 1 {
		t.Errorf("Expected producer applied once, got %d", rec.calls("p"))
	}
	if rec.calls("c") != 2 {
		t.Errorf("Expected consumer re-applied, got %d calls", rec.calls("c"))
	}
}

func TestOrchestrator_ApplyUp_FailureHaltsRun(t *testing.T) {
	rec := newCallRecorder()
	units := []Unit{
		{Name: "a", Outputs: map[string]string{"o": "1"}, Action: applyAction(rec, "a", nil)},
		{Name: "b", Outputs: map[string]string{"o": "2"},
			Inputs: map[string]ParamRef{"v": {Producer: "a", Output: "o"}},
			Action: ActionFuncs{ApplyFunc: func(_ context.Context, _ map[string]string) (map[string]string, error) {
				return nil, errors.New("provision failed")
			}},
		},
		{Name: "c", Inputs: map[string]ParamRef{"v": {Producer: "b", Output: "o"}},
			Action: applyAction(rec, "c", nil)},
	}

	g, err := Plan(units)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	o := testOrchestrator()
	run, err := o.Apply(context.Background(), g, Up)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if run.Status != RunStatusFailed {
		t.Errorf("Expected failed run, got %s", run.Status)
	}
	if len(run.Report.Applied) != 1 || run.Report.Applied[0] != "a" {
		t.Errorf("Applied = %v, want [a]", run.Report.Applied)
	}
	if len(run.Report.Failed) != 1 || run.Report.Failed[0] != "b" {
		t.Errorf("Failed = %v, want [b]", run.Report.Failed)
	}
	if len(run.Report.Skipped) != 1 || run.Report.Skipped[0] != "c" {
		t.Errorf("Skipped = %v, want [c]", run.Report.Skipped)
	}
	if rec.calls("c") != 0 {
		t.Errorf("Skipped unit action was invoked %d times", rec.calls("c"))
	}

	if _, err := o.GetOutput("b", "o"); !IsNotReady(err) {
		t.Errorf("Expected NOT_READY for failed unit output, got: %v", err)
	}
}

func TestOrchestrator_ApplyDown_ReverseOrder(t *testing.T) {
	rec := newCallRecorder()
	units := []Unit{
		{Name: "base", Outputs: map[string]string{"o": "1"}, Action: applyAction(rec, "base", nil)},
		{Name: "app", Inputs: map[string]ParamRef{"v": {Producer: "base", Output: "o"}},
			Action: applyAction(rec, "app", nil)},
	}

	g, err := Plan(units)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	o := testOrchestrator()
	if _, err := o.Apply(context.Background(), g, Up); err != nil {
		t.Fatalf("Apply up failed: %v", err)
	}
	run, err := o.Apply(context.Background(), g, Down)
	if err != nil {
		t.Fatalf("Apply down failed: %v", err)
	}

	if run.Status != RunStatusSucceeded {
		t.Errorf("Expected succeeded teardown, got %s", run.Status)
	}
	if rec.indexOf("delete:app") > rec.indexOf("delete:base") {
		t.Errorf("Producer deleted before dependent: %v", rec.order)
	}
	if o.State("base") != StateAbsent || o.State("app") != StateAbsent {
		t.Errorf("Expected all units absent, got base=%s app=%s", o.State("base"), o.State("app"))
	}
}

func TestOrchestrator_ApplyDown_FailedDependentBlocksProducer(t *testing.T) {
	rec := newCallRecorder()
	units := []Unit{
		{Name: "base", Outputs: map[string]string{"o": "1"}, Action: applyAction(rec, "base", nil)},
		{Name: "app", Inputs: map[string]ParamRef{"v": {Producer: "base", Output: "o"}},
			Action: ActionFuncs{
				ApplyFunc: func(_ context.Context, _ map[string]string) (map[string]string, error) {
					return nil, nil
				},
				DeleteFunc: func(_ context.Context) error {
					return errors.New("delete failed")
				},
			}},
	}

	g, err := Plan(units)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	o := testOrchestrator()
	if _, err := o.Apply(context.Background(), g, Up); err != nil {
		t.Fatalf("Apply up failed: %v", err)
	}
	run, err := o.Apply(context.Background(), g, Down)
	if err != nil {
		t.Fatalf("Apply down failed: %v", err)
	}

	if run.Status != RunStatusFailed {
		t.Errorf("Expected failed teardown, got %s", run.Status)
	}
	if rec.calls("delete:base") != 0 {
		t.Errorf("Producer deleted while dependent still referenced it")
	}
	if len(run.Report.Skipped) != 1 || run.Report.Skipped[0] != "base" {
		t.Errorf("Skipped = %v, want [base]", run.Report.Skipped)
	}
}

func TestOrchestrator_GetOutput_Errors(t *testing.T) {
	o := testOrchestrator()

	if _, err := o.GetOutput("ghost", "o"); !IsNotFound(err) {
		t.Errorf("Expected NOT_FOUND for unknown unit, got: %v", err)
	}

	units := []Unit{{Name: "a", Outputs: map[string]string{"o": "1"}}}
	g, err := Plan(units)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if _, err := o.Apply(context.Background(), g, Up); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if _, err := o.GetOutput("a", "missing"); !IsNotFound(err) {
		t.Errorf("Expected NOT_FOUND for unknown output, got: %v", err)
	}
	if _, err := o.GetOutput("a", "o"); err != nil {
		t.Errorf("Expected output available, got: %v", err)
	}
}

// spanRecorder records span starts across workers.
type spanRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *spanRecorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *spanRecorder) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}

func (r *spanRecorder) StartRunSpan(ctx context.Context, runID, direction string) (context.Context, trace.Span) {
	r.add("run:" + direction)
	return ctx, trace.SpanFromContext(ctx)
}

func (r *spanRecorder) StartUnitSpan(ctx context.Context, unit, direction string) (context.Context, trace.Span) {
	r.add("unit:" + unit)
	return ctx, trace.SpanFromContext(ctx)
}

func TestOrchestrator_Apply_StartsSpans(t *testing.T) {
	rec := newCallRecorder()
	spans := &spanRecorder{}

	units := []Unit{
		{Name: "a", Outputs: map[string]string{"o": "1"}, Action: applyAction(rec, "a", nil)},
		{Name: "b", Inputs: map[string]ParamRef{"v": {Producer: "a", Output: "o"}},
			Action: applyAction(rec, "b", nil)},
	}

	g, err := Plan(units)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	o := NewOrchestrator(Config{MaxParallel: 4, Logger: zerolog.Nop(), Tracer: spans})
	if _, err := o.Apply(context.Background(), g, Up); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	for _, want := range []string{"run:up", "unit:a", "unit:b"} {
		if !spans.has(want) {
			t.Errorf("Missing span %s, got %v", want, spans.names)
		}
	}
}

func TestOrchestrator_Restore(t *testing.T) {
	o := testOrchestrator()
	o.Restore(map[string]UnitState{"a": StateApplied})

	if o.State("a") != StateApplied {
		t.Errorf("Expected restored state applied, got %s", o.State("a"))
	}
	if o.State("unknown") != StateAbsent {
		t.Errorf("Expected absent for unknown unit, got %s", o.State("unknown"))
	}
}
