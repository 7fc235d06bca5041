// Package telemetry provides the observability layer for strata:
// structured logging via zerolog, Prometheus metrics, and OpenTelemetry
// tracing. Construction is config-driven; disabled subsystems degrade to
// no-ops so callers never branch on whether telemetry is active.
package telemetry
