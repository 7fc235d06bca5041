package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openstrata/strata/pkg/stores"
)

// scriptedHandler fails the first failures deliveries, then succeeds.
type scriptedHandler struct {
	failures int
	calls    int
	attempts []int
}

func (h *scriptedHandler) HandleAsync(_ context.Context, n *AsyncNotification) error {
	h.calls++
	h.attempts = append(h.attempts, n.DeliveryAttempt)
	if h.calls <= h.failures {
		return NewDependencyError("store unavailable", errors.New("io timeout"))
	}
	return nil
}

func testPump(h Handler, sink stores.QuarantineStore, maxAttempts int) *Pump {
	return NewPump(h, sink, PumpConfig{
		MaxAttempts: maxAttempts,
		RetryDelay:  time.Millisecond,
		Logger:      zerolog.Nop(),
	})
}

func TestPump_Deliver_FirstAttemptSucceeds(t *testing.T) {
	handler := &scriptedHandler{}
	sink := stores.NewMemoryStore()

	rec, err := testPump(handler, sink, 3).Deliver(context.Background(),
		&AsyncNotification{Records: []Record{{Source: "storage:objects", Key: "a"}}, DeliveryAttempt: 1})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected no quarantine record, got %+v", rec)
	}
	if handler.calls != 1 {
		t.Errorf("calls = %d, want 1", handler.calls)
	}
}

func TestPump_Deliver_RetriesThenSucceeds(t *testing.T) {
	handler := &scriptedHandler{failures: 2}
	sink := stores.NewMemoryStore()

	rec, err := testPump(handler, sink, 3).Deliver(context.Background(),
		&AsyncNotification{Records: []Record{{Source: "storage:objects", Key: "a"}}, DeliveryAttempt: 1})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected no quarantine record after recovery, got %+v", rec)
	}
	if handler.calls != 3 {
		t.Errorf("calls = %d, want 3", handler.calls)
	}
	// The handler must see the real attempt number each time.
	for i, attempt := range handler.attempts {
		if attempt != i+1 {
			t.Errorf("attempts[%d] = %d, want %d", i, attempt, i+1)
		}
	}
}

func TestPump_Deliver_QuarantinesAfterBudget(t *testing.T) {
	handler := &scriptedHandler{failures: 10}
	sink := stores.NewMemoryStore()

	n := &AsyncNotification{
		Records:         []Record{{Source: "storage:objects", Key: "poison"}},
		DeliveryAttempt: 1,
	}
	rec, err := testPump(handler, sink, 3).Deliver(context.Background(), n)
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if rec == nil {
		t.Fatal("Expected quarantine record after exhausted budget")
	}
	if handler.calls != 3 {
		t.Errorf("calls = %d, want exactly the budget of 3", handler.calls)
	}
	if rec.AttemptCount != 3 {
		t.Errorf("AttemptCount = %d, want 3", rec.AttemptCount)
	}
	if rec.Error == "" {
		t.Error("Expected quarantine record to preserve the original error")
	}

	// The record must be durable and carry the original payload.
	stored, err := sink.GetQuarantine(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetQuarantine failed: %v", err)
	}
	var replay AsyncNotification
	if err := json.Unmarshal(stored.Payload, &replay); err != nil {
		t.Fatalf("Payload is not a valid notification: %v", err)
	}
	if len(replay.Records) != 1 || replay.Records[0].Key != "poison" {
		t.Errorf("Replayed records = %+v", replay.Records)
	}
}

func TestPump_Deliver_ResumesFromTransportAttempt(t *testing.T) {
	// A notification redelivered by the transport arrives with its attempt
	// counter already advanced. The pump must not restart the budget.
	handler := &scriptedHandler{failures: 10}
	sink := stores.NewMemoryStore()

	n := &AsyncNotification{
		Records:         []Record{{Source: "storage:objects", Key: "poison"}},
		DeliveryAttempt: 3,
	}
	rec, err := testPump(handler, sink, 3).Deliver(context.Background(), n)
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if rec == nil {
		t.Fatal("Expected quarantine record")
	}
	if handler.calls != 1 {
		t.Errorf("calls = %d, want 1 (budget already nearly spent)", handler.calls)
	}
}

func TestPump_Deliver_TransportCounterPastBudget(t *testing.T) {
	// A notification can arrive with its transport counter already past
	// the budget. It must be quarantined without another attempt.
	handler := &scriptedHandler{failures: 10}
	sink := stores.NewMemoryStore()

	n := &AsyncNotification{
		Records:         []Record{{Source: "storage:objects", Key: "poison"}},
		DeliveryAttempt: 5,
	}
	rec, err := testPump(handler, sink, 3).Deliver(context.Background(), n)
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if rec == nil {
		t.Fatal("Expected quarantine record for an over-budget event")
	}
	if handler.calls != 0 {
		t.Errorf("calls = %d, want 0 (budget already exhausted)", handler.calls)
	}
	if rec.AttemptCount != 4 {
		t.Errorf("AttemptCount = %d, want 4 (attempts made before arrival)", rec.AttemptCount)
	}
	if rec.Error == "" {
		t.Error("Expected a synthesized cause on the record")
	}
	if _, err := sink.GetQuarantine(context.Background(), rec.ID); err != nil {
		t.Fatalf("Record not durable: %v", err)
	}
}

// quarantineCounter counts QuarantineWritten calls.
type quarantineCounter struct{ writes int }

func (c *quarantineCounter) QuarantineWritten() { c.writes++ }

func TestPump_Deliver_CountsQuarantineWrites(t *testing.T) {
	handler := &scriptedHandler{failures: 10}
	sink := stores.NewMemoryStore()
	counter := &quarantineCounter{}

	pump := NewPump(handler, sink, PumpConfig{
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
		Logger:      zerolog.Nop(),
		Metrics:     counter,
	})

	n := &AsyncNotification{
		Records:         []Record{{Source: "storage:objects", Key: "poison"}},
		DeliveryAttempt: 1,
	}
	rec, err := pump.Deliver(context.Background(), n)
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if rec == nil {
		t.Fatal("Expected quarantine record")
	}
	if counter.writes != 1 {
		t.Errorf("QuarantineWritten calls = %d, want 1", counter.writes)
	}
}

func TestPump_Deliver_CancelledBetweenAttempts(t *testing.T) {
	handler := &scriptedHandler{failures: 10}
	sink := stores.NewMemoryStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pump := NewPump(handler, sink, PumpConfig{
		MaxAttempts: 3,
		RetryDelay:  time.Hour,
		Logger:      zerolog.Nop(),
	})

	n := &AsyncNotification{
		Records:         []Record{{Source: "storage:objects", Key: "a"}},
		DeliveryAttempt: 1,
	}
	_, err := pump.Deliver(ctx, n)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got: %v", err)
	}

	// Cancellation does not prove the event poisonous; nothing may be
	// quarantined.
	list, listErr := sink.ListQuarantine(context.Background(), 10, 0)
	if listErr != nil {
		t.Fatalf("ListQuarantine failed: %v", listErr)
	}
	if len(list) != 0 {
		t.Errorf("Expected empty quarantine, got %d records", len(list))
	}
}
