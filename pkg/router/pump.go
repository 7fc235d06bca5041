package router

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openstrata/strata/pkg/stores"
)

// Handler consumes one async notification. *Router satisfies this via
// HandleAsync.
type Handler interface {
	HandleAsync(ctx context.Context, n *AsyncNotification) error
}

// PumpMetrics records pump outcomes. A nil recorder disables collection.
type PumpMetrics interface {
	// QuarantineWritten records one quarantine write.
	QuarantineWritten()
}

// PumpConfig configures the redelivery pump.
type PumpConfig struct {
	// MaxAttempts is the delivery budget per event, including the first
	// attempt. After the budget is exhausted the event is quarantined.
	MaxAttempts int

	// RetryDelay is the pause between redeliveries of the same event.
	RetryDelay time.Duration

	// Logger is the structured logger for delivery events.
	Logger zerolog.Logger

	// Metrics is an optional metrics recorder.
	Metrics PumpMetrics
}

// Pump drives at-least-once delivery of async notifications into a
// handler. It owns the retry budget and the quarantine sink: the handler
// only ever sees one delivery at a time and signals failure by returning
// an error. Events that exhaust the budget are written to quarantine and
// dropped from redelivery.
type Pump struct {
	handler     Handler
	quarantine  stores.QuarantineStore
	maxAttempts int
	retryDelay  time.Duration
	logger      zerolog.Logger
	metrics     PumpMetrics
}

// NewPump creates a pump delivering into handler, quarantining into sink.
func NewPump(handler Handler, sink stores.QuarantineStore, cfg PumpConfig) *Pump {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Pump{
		handler:     handler,
		quarantine:  sink,
		maxAttempts: maxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      cfg.Logger.With().Str("component", "pump").Logger(),
		metrics:     cfg.Metrics,
	}
}

// Deliver runs one event through the full delivery lifecycle: attempt,
// redeliver on failure up to the budget, then quarantine. It returns the
// quarantine record if the event was quarantined, nil on success. Context
// cancellation aborts between attempts without quarantining, since the
// event was not proven poisonous.
func (p *Pump) Deliver(ctx context.Context, n *AsyncNotification) (*stores.QuarantineRecord, error) {
	startAttempt := n.DeliveryAttempt
	if startAttempt < 1 {
		startAttempt = 1
	}

	// The transport can redeliver an event whose counter is already past
	// the budget. It goes straight to quarantine, untried.
	if startAttempt > p.maxAttempts {
		p.logger.Warn().
			Int("attempt", startAttempt).
			Int("max_attempts", p.maxAttempts).
			Msg("delivery counter past budget on arrival")
		cause := errors.New("delivery budget exhausted by transport")
		return p.quarantineEvent(ctx, n, cause, startAttempt-1)
	}

	var lastErr error
	for attempt := startAttempt; attempt <= p.maxAttempts; attempt++ {
		if attempt > startAttempt {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}

		n.DeliveryAttempt = attempt
		lastErr = p.handler.HandleAsync(ctx, n)
		if lastErr == nil {
			if attempt > startAttempt {
				p.logger.Info().Int("attempt", attempt).Msg("delivery succeeded after retry")
			}
			return nil, nil
		}

		p.logger.Warn().Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", p.maxAttempts).
			Msg("delivery attempt failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return p.quarantineEvent(ctx, n, lastErr, n.DeliveryAttempt)
}

// quarantineEvent writes the exhausted event to the quarantine sink,
// recording the last delivery attempt actually made.
func (p *Pump) quarantineEvent(ctx context.Context, n *AsyncNotification, cause error, attempts int) (*stores.QuarantineRecord, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, NewValidationError("quarantine payload encoding failed", err)
	}

	rec := &stores.QuarantineRecord{
		ID:           uuid.New().String(),
		Payload:      payload,
		Error:        cause.Error(),
		AttemptCount: attempts,
		FirstSeenAt:  time.Now().UTC(),
	}

	if err := p.quarantine.PutQuarantine(ctx, rec); err != nil {
		return nil, NewDependencyError("quarantine write failed", err)
	}

	if p.metrics != nil {
		p.metrics.QuarantineWritten()
	}

	p.logger.Error().
		Str("quarantine_id", rec.ID).
		Int("attempts", rec.AttemptCount).
		Str("cause", rec.Error).
		Msg("event quarantined")

	return rec, nil
}
