// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is everything the process reads from its environment. The
// idempotency secret is required: key computation without it is a hard
// error, never a silently weak key.
type Config struct {
	IdempotencySecret string `env:"HIVE_IDEMPOTENCY_SECRET"`
	PolicyPath        string `env:"HIVE_POLICY_PATH"`
	LogLevel          string `env:"HIVE_LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if strings.TrimSpace(cfg.IdempotencySecret) == "" {
		return nil, fmt.Errorf("HIVE_IDEMPOTENCY_SECRET is required")
	}
	return &cfg, nil
}
