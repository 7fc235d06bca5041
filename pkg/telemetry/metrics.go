package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for strata. It satisfies the
// metrics interfaces of both the orchestrator and the event router. A
// disabled Metrics instance is a safe no-op.
type Metrics struct {
	config MetricsConfig

	// Orchestrator metrics
	unitsCompleted *prometheus.CounterVec
	unitDuration   *prometheus.HistogramVec
	runsCompleted  *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec

	// Router metrics
	eventsRouted   *prometheus.CounterVec
	storeOpLatency *prometheus.HistogramVec

	// Quarantine metrics
	quarantineWrites prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		unitsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_completed_total",
				Help:      "Total number of unit executions by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		unitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "unit_duration_seconds",
				Help:      "Duration of unit execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"direction"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed by direction and status",
			},
			[]string{"direction", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of run execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"direction"},
		),

		eventsRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_routed_total",
				Help:      "Total number of routed events by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		storeOpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_op_duration_seconds",
				Help:      "Duration of metadata store operations in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"op"},
		),

		quarantineWrites: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quarantine_writes_total",
				Help:      "Total number of events written to quarantine",
			},
		),
	}

	registry.MustRegister(
		m.unitsCompleted,
		m.unitDuration,
		m.runsCompleted,
		m.runDuration,
		m.eventsRouted,
		m.storeOpLatency,
		m.quarantineWrites,
	)

	return m, nil
}

// UnitCompleted records one unit execution.
func (m *Metrics) UnitCompleted(direction, outcome string, duration time.Duration) {
	if m.unitsCompleted == nil {
		return
	}
	m.unitsCompleted.WithLabelValues(direction, outcome).Inc()
	m.unitDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RunCompleted records one completed run.
func (m *Metrics) RunCompleted(direction, status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(direction, status).Inc()
	m.runDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// EventRouted records one routed event.
func (m *Metrics) EventRouted(kind, outcome string) {
	if m.eventsRouted == nil {
		return
	}
	m.eventsRouted.WithLabelValues(kind, outcome).Inc()
}

// StoreOp records the duration of one metadata store operation.
func (m *Metrics) StoreOp(op string, duration time.Duration) {
	if m.storeOpLatency == nil {
		return
	}
	m.storeOpLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// QuarantineWritten records one quarantine write.
func (m *Metrics) QuarantineWritten() {
	if m.quarantineWrites == nil {
		return
	}
	m.quarantineWrites.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve starts an HTTP server exposing the metrics endpoint. It returns
// immediately; errors after startup are delivered to errFn.
func (m *Metrics) Serve(errFn func(error)) {
	if !m.config.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if errFn != nil {
				errFn(err)
			}
		}
	}()
}
