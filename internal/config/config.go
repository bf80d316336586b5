// Package config parses Ops-Core's OPSCORE_* environment variables. Kept
// deliberately free of a config-framework dependency, matching the
// teacher's plain flag/env reads in cmd/cliaimonitor/main.go — the only
// addition is an optional .env loader via godotenv, used elsewhere in the
// retrieved pack for exactly this purpose.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Backend identifies which state-store implementation to use.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Config holds the OPSCORE_* settings read at startup (spec.md §6).
// OPSCORE_ALLOWED_ORIGINS is read separately by the server's event-stream
// origin check.
type Config struct {
	APIKey         string
	WebhookSecret  string
	StorageBackend Backend

	RedisHost string
	RedisPort int
	RedisDB   int

	RoutingBaseURL       string
	RoutingTimeoutSeconds int

	HTTPListenAddr string

	SeedWorkflowsPath string

	EventsNATSEmbedded bool
	EventsNATSURL      string
	EventAuditDBPath   string
}

// Load reads configuration from the environment, first attempting to
// load a local .env file (silently ignored if absent, matching
// godotenv's typical optional-load usage elsewhere in the pack).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:                os.Getenv("OPSCORE_API_KEY"),
		WebhookSecret:         os.Getenv("OPSCORE_WEBHOOK_SECRET"),
		StorageBackend:        Backend(envOrDefault("OPSCORE_STORAGE_BACKEND", string(BackendMemory))),
		RedisHost:             envOrDefault("OPSCORE_REDIS_HOST", "localhost"),
		RoutingBaseURL:        os.Getenv("OPSCORE_ROUTING_BASE_URL"),
		RoutingTimeoutSeconds: 30,
		HTTPListenAddr:        envOrDefault("OPSCORE_HTTP_LISTEN_ADDR", "0.0.0.0:8000"),
		SeedWorkflowsPath:     os.Getenv("OPSCORE_SEED_WORKFLOWS"),
		EventAuditDBPath:      envOrDefault("OPSCORE_EVENT_AUDIT_DB", "opscore-events.db"),
		EventsNATSURL:         os.Getenv("OPSCORE_EVENTS_NATS_URL"),
	}

	var err error
	if cfg.RedisPort, err = envIntOrDefault("OPSCORE_REDIS_PORT", 6379); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = envIntOrDefault("OPSCORE_REDIS_DB", 0); err != nil {
		return nil, err
	}
	if v := os.Getenv("OPSCORE_ROUTING_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("OPSCORE_ROUTING_TIMEOUT_SECONDS: %w", err)
		}
		cfg.RoutingTimeoutSeconds = n
	}
	if v := os.Getenv("OPSCORE_EVENTS_NATS_EMBEDDED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("OPSCORE_EVENTS_NATS_EMBEDDED: %w", err)
		}
		cfg.EventsNATSEmbedded = b
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisHost == "" {
			return fmt.Errorf("OPSCORE_REDIS_HOST is required when OPSCORE_STORAGE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("OPSCORE_STORAGE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.StorageBackend)
	}
	return nil
}

// RoutingTimeout returns the configured routing-client timeout as a
// time.Duration.
func (c *Config) RoutingTimeout() time.Duration {
	return time.Duration(c.RoutingTimeoutSeconds) * time.Second
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
