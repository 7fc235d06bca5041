package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/openstrata/strata/pkg/telemetry"
)

// Config is the resolved process configuration.
type Config struct {
	// DBPath is the SQLite database file path. Empty selects the
	// in-memory store.
	DBPath string `env:"STRATA_DB_PATH"`

	// LogLevel is the minimum log level.
	LogLevel string `env:"STRATA_LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log output format (console, json).
	LogFormat string `env:"STRATA_LOG_FORMAT" envDefault:"console"`

	// MaxParallel caps concurrent unit executions within one level.
	MaxParallel int `env:"STRATA_MAX_PARALLEL" envDefault:"4"`

	// ActionTimeout bounds a single unit action.
	ActionTimeout time.Duration `env:"STRATA_ACTION_TIMEOUT" envDefault:"5m"`

	// StoreTimeout bounds a single metadata store operation.
	StoreTimeout time.Duration `env:"STRATA_STORE_TIMEOUT" envDefault:"3s"`

	// MaxDeliveryAttempts is the async delivery budget before quarantine.
	MaxDeliveryAttempts int `env:"STRATA_MAX_DELIVERY_ATTEMPTS" envDefault:"3"`

	// RetryDelay is the pause between redeliveries of the same event.
	RetryDelay time.Duration `env:"STRATA_RETRY_DELAY" envDefault:"1s"`

	// MetricsEnabled controls the Prometheus endpoint.
	MetricsEnabled bool `env:"STRATA_METRICS_ENABLED" envDefault:"false"`

	// MetricsAddress is the metrics HTTP listen address.
	MetricsAddress string `env:"STRATA_METRICS_ADDRESS" envDefault:":9090"`

	// TracingEnabled controls trace export.
	TracingEnabled bool `env:"STRATA_TRACING_ENABLED" envDefault:"false"`

	// TracingExporter selects the trace exporter (otlp, stdout, none).
	TracingExporter string `env:"STRATA_TRACING_EXPORTER" envDefault:"stdout"`

	// TracingEndpoint is the OTLP endpoint.
	TracingEndpoint string `env:"STRATA_TRACING_ENDPOINT"`

	// Environment is the deployment environment label.
	Environment string `env:"STRATA_ENVIRONMENT" envDefault:"development"`
}

// Load resolves configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that tag defaults cannot.
func (c *Config) Validate() error {
	if c.MaxParallel < 1 {
		return fmt.Errorf("max parallel must be at least 1, got %d", c.MaxParallel)
	}
	if c.MaxDeliveryAttempts < 1 {
		return fmt.Errorf("max delivery attempts must be at least 1, got %d", c.MaxDeliveryAttempts)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive, got %s", c.StoreTimeout)
	}
	return nil
}

// Telemetry derives the telemetry configuration.
func (c *Config) Telemetry(version string) *telemetry.Config {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.Environment = c.Environment
	tcfg.Logging.Level = c.LogLevel
	tcfg.Logging.Format = c.LogFormat
	tcfg.Metrics.Enabled = c.MetricsEnabled
	tcfg.Metrics.ListenAddress = c.MetricsAddress
	tcfg.Tracing.Enabled = c.TracingEnabled
	tcfg.Tracing.Exporter = c.TracingExporter
	tcfg.Tracing.Endpoint = c.TracingEndpoint
	return tcfg
}
