package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewValidator(Default()).Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
monitoring:
  aggregation_interval: 15s
retention:
  log_retention_days: 7
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Monitoring.AggregationInterval != 15*time.Second {
		t.Errorf("aggregation interval = %v, want 15s", cfg.Monitoring.AggregationInterval)
	}
	if cfg.Retention.LogRetentionDays != 7 {
		t.Errorf("log retention = %d, want 7", cfg.Retention.LogRetentionDays)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default", cfg.Server.Host)
	}
	if cfg.Retention.AlertRetentionDays != 90 {
		t.Errorf("alert retention = %d, want default 90", cfg.Retention.AlertRetentionDays)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("CONNWATCH_SERVER_PORT", "7777")
	t.Setenv("CONNWATCH_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want env override 7777", cfg.Server.Port)
	}
	if string(cfg.Logging.Level) != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/no/such/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for negative port")
	}
}

func TestEnvManagerEncryptedRoundTrip(t *testing.T) {
	em := NewEnvManager("unit-test-key", "CONNWATCH_TEST_")
	t.Cleanup(func() { os.Unsetenv("CONNWATCH_TEST_DB_PASSWORD") })

	if err := em.SetEncryptedString("db_password", "s3cret"); err != nil {
		t.Fatalf("set encrypted: %v", err)
	}

	raw := os.Getenv("CONNWATCH_TEST_DB_PASSWORD")
	if raw == "" || raw == "s3cret" {
		t.Fatalf("stored value must be encrypted, got %q", raw)
	}

	if got := em.GetEncryptedString("db_password", ""); got != "s3cret" {
		t.Errorf("round trip = %q, want s3cret", got)
	}
}

func TestEnvManagerPlainValuePassesThrough(t *testing.T) {
	em := NewEnvManager("unit-test-key", "CONNWATCH_TEST_")
	t.Setenv("CONNWATCH_TEST_REDIS_PASSWORD", "plain")

	if got := em.GetEncryptedString("redis_password", ""); got != "plain" {
		t.Errorf("got %q, want plain", got)
	}
}

func TestValidatorRejectsBadSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad env", func(c *Config) { c.App.Env = "prod" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"db enabled without user", func(c *Config) { c.Database.Enabled = true; c.Database.User = "" }},
		{"bad sslmode", func(c *Config) { c.Database.Enabled = true; c.Database.SSLMode = "maybe" }},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"zero aggregation interval", func(c *Config) { c.Monitoring.AggregationInterval = 0 }},
		{"breaker cap below base", func(c *Config) { c.Monitoring.Breaker.MaxBackoff = time.Second }},
		{"weights not normalized", func(c *Config) { c.Monitoring.ScoreWeights.Availability = 0.9 }},
		{"zero retention", func(c *Config) { c.Retention.LogRetentionDays = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := NewValidator(cfg).Validate(); err == nil {
				t.Error("expected validation failure")
			}
		})
	}
}
