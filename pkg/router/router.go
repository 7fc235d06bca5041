package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openstrata/strata/pkg/stores"
)

// Metrics records router metrics. A nil recorder disables collection.
type Metrics interface {
	// EventRouted records one routed event by kind and outcome.
	EventRouted(kind, outcome string)

	// StoreOp records the duration of one store operation.
	StoreOp(op string, duration time.Duration)
}

// Tracer starts spans around event handling. A nil tracer disables
// tracing.
type Tracer interface {
	// StartEventSpan starts a span covering one routed event.
	StartEventSpan(ctx context.Context, kind string) (context.Context, trace.Span)
}

// Response is the sync path result.
type Response struct {
	// StatusCode is the HTTP-style status code.
	StatusCode int `json:"statusCode"`

	// Headers are the response headers.
	Headers map[string]string `json:"headers,omitempty"`

	// Body is the serialized response body.
	Body string `json:"body,omitempty"`
}

// Config configures a Router.
type Config struct {
	// StoreTimeout bounds every store lookup and write. Operations that
	// exceed it surface as dependency errors.
	StoreTimeout time.Duration

	// Logger is the structured logger for routing events.
	Logger zerolog.Logger

	// Metrics is an optional metrics recorder.
	Metrics Metrics

	// Tracer is an optional span recorder.
	Tracer Tracer
}

// Router classifies inbound events and dispatches them to the sync or
// async handling path. It is stateless across invocations: the injected
// store is the only shared dependency, created once per process and
// reused. Concurrent invocations share no other mutable state.
type Router struct {
	store   stores.MetadataStore
	timeout time.Duration
	logger  zerolog.Logger
	metrics Metrics
	tracer  Tracer
}

// NewRouter creates a router around an injected metadata store.
func NewRouter(store stores.MetadataStore, cfg Config) *Router {
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Router{
		store:   store,
		timeout: timeout,
		logger:  cfg.Logger.With().Str("component", "router").Logger(),
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
	}
}

// Route is the single entry point. Sync requests and unknown events
// always produce a response; async notifications produce an error on
// batch failure so the delivery subsystem can redeliver.
func (r *Router) Route(ctx context.Context, raw []byte) (*Response, error) {
	event, err := Decode(raw)
	if err != nil {
		r.logger.Warn().Err(err).Msg("undecodable event")
		r.count(string(KindUnknown), "rejected")
		return errorResponse(400, "malformed event"), nil
	}

	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.StartEventSpan(ctx, string(event.Kind))
		defer span.End()
	}

	switch event.Kind {
	case KindSyncRequest:
		return r.HandleSync(ctx, event.Sync), nil
	case KindAsyncNotification:
		if err := r.HandleAsync(ctx, event.Async); err != nil {
			if span != nil {
				span.RecordError(err)
			}
			return nil, err
		}
		return &Response{StatusCode: 200}, nil
	default:
		r.logger.Warn().Msg("unknown event source")
		r.count(string(KindUnknown), "rejected")
		return errorResponse(400, "unknown event source"), nil
	}
}

// HandleSync serves one request/response call. It never lets a failure
// escape the boundary: internal failures map to 500, lookup misses to
// 404, malformed routes to 400. Single attempt; retries are the caller's
// concern.
func (r *Router) HandleSync(ctx context.Context, req *SyncRequest) (resp *Response) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("sync handler panicked")
			resp = errorResponse(500, "internal server error")
			r.count(string(KindSyncRequest), "panic")
		}
	}()

	name, routeErr := parseImageRoute(req.Method, req.Path)
	if routeErr != nil {
		r.logger.Warn().Err(routeErr).Str("method", req.Method).Str("path", req.Path).
			Msg("unsupported route")
		r.count(string(KindSyncRequest), "bad_request")
		return errorResponse(400, "unsupported route")
	}

	item, err := r.getItem(ctx, name)
	switch {
	case err == nil:
	case IsNotFound(err):
		r.count(string(KindSyncRequest), "not_found")
		return errorResponse(404, "image not found")
	default:
		r.logger.Error().Err(err).Str("name", name).Msg("lookup failed")
		r.count(string(KindSyncRequest), "error")
		return errorResponse(500, "internal server error")
	}

	body, err := json.Marshal(item)
	if err != nil {
		r.logger.Error().Err(err).Msg("response encoding failed")
		r.count(string(KindSyncRequest), "error")
		return errorResponse(500, "internal server error")
	}

	r.count(string(KindSyncRequest), "ok")
	return &Response{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// HandleAsync processes every record in the batch. A record's failure
// does not stop its siblings, but any failed record fails the batch as a
// whole so the transport redelivers it. Failures are always re-signaled,
// never swallowed; this component never writes the quarantine sink.
func (r *Router) HandleAsync(ctx context.Context, n *AsyncNotification) error {
	if n == nil || len(n.Records) == 0 {
		return NewValidationError("notification has no records", nil)
	}

	var recordErrs []error
	for i := range n.Records {
		if err := r.ingestRecord(ctx, &n.Records[i], i); err != nil {
			r.logger.Error().Err(err).Int("record", i).Msg("record ingestion failed")
			recordErrs = append(recordErrs, err)
		}
	}

	if len(recordErrs) > 0 {
		r.count(string(KindAsyncNotification), "failed")
		return fmt.Errorf("%d of %d records failed: %w",
			len(recordErrs), len(n.Records), errors.Join(recordErrs...))
	}

	r.count(string(KindAsyncNotification), "ok")
	return nil
}

// ingestRecord validates one record and writes its metadata item.
func (r *Router) ingestRecord(ctx context.Context, rec *Record, index int) error {
	if rec.Key == "" {
		return NewValidationError("record has no object key", nil).WithRecord(index)
	}

	// Object keys arrive URL-encoded from the transport.
	name, err := url.QueryUnescape(rec.Key)
	if err != nil {
		return NewValidationError("record key is not URL-encoded", err).WithRecord(index)
	}

	item := &stores.MetadataItem{
		Name:         name,
		Size:         rec.Size,
		ContentType:  rec.ContentType,
		LastModified: rec.ModifiedAt,
	}

	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err = r.store.PutItem(opCtx, item)
	r.observe("put_item", time.Since(start))

	if err != nil {
		return NewDependencyError("metadata write failed", err).WithRecord(index)
	}

	r.logger.Info().Str("name", name).Int64("size", item.Size).Msg("metadata recorded")
	return nil
}

// getItem performs a bounded store lookup, mapping timeouts and store
// failures into the router taxonomy.
func (r *Router) getItem(ctx context.Context, name string) (*stores.MetadataItem, error) {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	item, err := r.store.GetItem(opCtx, name)
	r.observe("get_item", time.Since(start))

	switch {
	case err == nil:
		return item, nil
	case errors.Is(err, stores.ErrNotFound):
		return nil, NewNotFoundError(fmt.Sprintf("no item named %s", name), err)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, NewDependencyError("metadata lookup timed out", err)
	default:
		return nil, NewDependencyError("metadata lookup failed", err)
	}
}

// parseImageRoute extracts the image name from a GET /images/{name} path.
func parseImageRoute(method, path string) (string, error) {
	if !strings.EqualFold(method, "GET") {
		return "", NewValidationError(fmt.Sprintf("unsupported method %s", method), nil)
	}
	name, ok := strings.CutPrefix(path, "/images/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", NewValidationError(fmt.Sprintf("unsupported path %s", path), nil)
	}
	return name, nil
}

// errorResponse builds a JSON error body response.
func errorResponse(status int, message string) *Response {
	body, _ := json.Marshal(map[string]string{"error": message})
	return &Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func (r *Router) count(kind, outcome string) {
	if r.metrics != nil {
		r.metrics.EventRouted(kind, outcome)
	}
}

func (r *Router) observe(op string, d time.Duration) {
	if r.metrics != nil {
		r.metrics.StoreOp(op, d)
	}
}
