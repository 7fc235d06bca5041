package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/openstrata/strata/pkg/config"
	"github.com/openstrata/strata/pkg/graph"
	"github.com/openstrata/strata/pkg/manifest"
	"github.com/openstrata/strata/pkg/policy"
	"github.com/openstrata/strata/pkg/router"
	"github.com/openstrata/strata/pkg/stores"
	"github.com/openstrata/strata/pkg/telemetry"
)

// runtime bundles the process-wide dependencies every command needs.
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   stores.Store
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// newRuntime loads configuration, sets up logging, and opens the store.
// Flags override environment-derived settings.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}

	tcfg := cfg.Telemetry(buildVersion)
	metrics, err := telemetry.NewMetrics(tcfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("setting up metrics: %w", err)
	}
	metrics.Serve(func(err error) {
		logger.Error().Err(err).Msg("metrics server failed")
	})

	tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion, tcfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &runtime{cfg: cfg, logger: logger, store: store, metrics: metrics, tracer: tracer}, nil
}

// openStore opens the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config) (stores.Store, error) {
	if cfg.DBPath == "" {
		return stores.NewMemoryStore(), nil
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (r *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.tracer.Shutdown(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("tracer shutdown failed")
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("store close failed")
	}
}

// orchestrator builds an orchestrator wired to the runtime's store and
// telemetry.
func (r *runtime) orchestrator() *graph.Orchestrator {
	return graph.NewOrchestrator(graph.Config{
		MaxParallel:   r.cfg.MaxParallel,
		ActionTimeout: r.cfg.ActionTimeout,
		Logger:        r.logger,
		Metrics:       r.metrics,
		Tracer:        r.tracer,
		Runs:          r.store,
	})
}

// router builds a router wired to the runtime's store and telemetry.
func (r *runtime) router() *router.Router {
	return router.NewRouter(r.store, router.Config{
		StoreTimeout: r.cfg.StoreTimeout,
		Logger:       r.logger,
		Metrics:      r.metrics,
		Tracer:       r.tracer,
	})
}

// pump builds a redelivery pump around the given handler.
func (r *runtime) pump(h router.Handler) *router.Pump {
	return router.NewPump(h, r.store, router.PumpConfig{
		MaxAttempts: r.cfg.MaxDeliveryAttempts,
		RetryDelay:  r.cfg.RetryDelay,
		Logger:      r.logger,
		Metrics:     r.metrics,
	})
}

// loadAndPlan loads a manifest and plans its dependency graph.
func loadAndPlan(path string) (*manifest.Stack, *graph.DependencyGraph, error) {
	stack, err := manifest.Load(path)
	if err != nil {
		return nil, nil, err
	}
	g, err := graph.Plan(stack.ToUnits())
	if err != nil {
		return nil, nil, err
	}
	return stack, g, nil
}

// gatePlan evaluates policies against the planned units and fails on
// denial. An empty policyDir uses built-in policies only.
func (r *runtime) gatePlan(ctx context.Context, units []graph.Unit, direction, environment, policyDir string) error {
	engine, err := policy.NewEngine(r.logger)
	if err != nil {
		return err
	}
	if policyDir != "" {
		if err := engine.LoadDir(ctx, policyDir); err != nil {
			return err
		}
	}

	result, err := engine.Evaluate(ctx, &policy.Input{
		Units:       units,
		Direction:   direction,
		Environment: environment,
	})
	if err != nil {
		return err
	}

	for _, v := range result.Violations {
		event := r.logger.Warn()
		if v.Severity == string(policy.SeverityError) {
			event = r.logger.Error()
		}
		event.Str("policy", v.Policy).Str("unit", v.Unit).Msg(v.Message)
	}

	if !result.Allowed {
		return fmt.Errorf("plan denied by policy (%d violations)", len(result.Violations))
	}
	return nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRunReport renders a completed run for humans or machines.
func printRunReport(run *graph.Run) error {
	if jsonOutput {
		return printJSON(run)
	}

	fmt.Printf("Run %s (%s): %s in %s\n", run.ID, run.Direction, run.Status, run.Duration.Round(time.Millisecond))
	for _, name := range run.Report.Applied {
		fmt.Printf("  applied  %s\n", name)
	}
	for _, name := range run.Report.Failed {
		fmt.Printf("  failed   %s\n", name)
	}
	for _, name := range run.Report.Skipped {
		fmt.Printf("  skipped  %s\n", name)
	}
	return nil
}
