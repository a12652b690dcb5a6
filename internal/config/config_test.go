package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Setenv("HIVE_IDEMPOTENCY_SECRET", "test-secret-0123456789abcdef")
	t.Setenv("HIVE_POLICY_PATH", "/etc/hive/policies.yaml")
	t.Setenv("HIVE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PolicyPath != "/etc/hive/policies.yaml" || cfg.LogLevel != "debug" {
		t.Fatalf("config: %+v", cfg)
	}
}

func TestLoad_DefaultLogLevel(t *testing.T) {
	t.Setenv("HIVE_IDEMPOTENCY_SECRET", "test-secret-0123456789abcdef")
	// Setenv registers the restore; the variable must be absent, not empty.
	t.Setenv("HIVE_LOG_LEVEL", "x")
	os.Unsetenv("HIVE_LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level: %q", cfg.LogLevel)
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("HIVE_IDEMPOTENCY_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing-secret error")
	}
}
