package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.MaxParallel != 4 {
		t.Errorf("MaxParallel = %d, want 4", cfg.MaxParallel)
	}
	if cfg.MaxDeliveryAttempts != 3 {
		t.Errorf("MaxDeliveryAttempts = %d, want 3", cfg.MaxDeliveryAttempts)
	}
	if cfg.StoreTimeout != 3*time.Second {
		t.Errorf("StoreTimeout = %s, want 3s", cfg.StoreTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STRATA_LOG_LEVEL", "debug")
	t.Setenv("STRATA_MAX_PARALLEL", "8")
	t.Setenv("STRATA_ACTION_TIMEOUT", "30s")
	t.Setenv("STRATA_DB_PATH", "/tmp/strata.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.MaxParallel != 8 {
		t.Errorf("MaxParallel = %d, want 8", cfg.MaxParallel)
	}
	if cfg.ActionTimeout != 30*time.Second {
		t.Errorf("ActionTimeout = %s, want 30s", cfg.ActionTimeout)
	}
	if cfg.DBPath != "/tmp/strata.db" {
		t.Errorf("DBPath = %s", cfg.DBPath)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("STRATA_MAX_PARALLEL", "0")
	if _, err := Load(); err == nil {
		t.Error("Expected error for zero max parallel")
	}
}

func TestConfig_Telemetry(t *testing.T) {
	t.Setenv("STRATA_LOG_FORMAT", "json")
	t.Setenv("STRATA_METRICS_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tcfg := cfg.Telemetry("1.2.3")
	if tcfg.ServiceVersion != "1.2.3" {
		t.Errorf("ServiceVersion = %s", tcfg.ServiceVersion)
	}
	if tcfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %s, want json", tcfg.Logging.Format)
	}
	if !tcfg.Metrics.Enabled {
		t.Error("Expected metrics enabled")
	}
	if err := tcfg.Validate(); err != nil {
		t.Errorf("Derived telemetry config should validate: %v", err)
	}
}
