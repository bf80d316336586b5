package config

import (
	"os"
	"testing"
	"time"
)

func clearOpscoreEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"OPSCORE_API_KEY", "OPSCORE_WEBHOOK_SECRET", "OPSCORE_STORAGE_BACKEND",
		"OPSCORE_REDIS_HOST", "OPSCORE_REDIS_PORT", "OPSCORE_REDIS_DB",
		"OPSCORE_ROUTING_BASE_URL", "OPSCORE_ROUTING_TIMEOUT_SECONDS",
		"OPSCORE_HTTP_LISTEN_ADDR", "OPSCORE_SEED_WORKFLOWS",
		"OPSCORE_EVENTS_NATS_EMBEDDED", "OPSCORE_EVENTS_NATS_URL", "OPSCORE_EVENT_AUDIT_DB",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoadDefaultsToMemoryBackend(t *testing.T) {
	clearOpscoreEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StorageBackend != BackendMemory {
		t.Fatalf("expected default backend memory, got %s", cfg.StorageBackend)
	}
	if cfg.RoutingTimeout() != 30*time.Second {
		t.Fatalf("expected default routing timeout 30s, got %s", cfg.RoutingTimeout())
	}
}

func TestLoadRedisBackendDefaultsHost(t *testing.T) {
	clearOpscoreEnv(t)
	os.Setenv("OPSCORE_STORAGE_BACKEND", "redis")
	defer clearOpscoreEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RedisHost != "localhost" {
		t.Fatalf("expected RedisHost to default to localhost, got %q", cfg.RedisHost)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	clearOpscoreEnv(t)
	os.Setenv("OPSCORE_STORAGE_BACKEND", "bogus")
	defer clearOpscoreEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown storage backend")
	}
}

func TestLoadParsesRoutingTimeoutOverride(t *testing.T) {
	clearOpscoreEnv(t)
	os.Setenv("OPSCORE_ROUTING_TIMEOUT_SECONDS", "45")
	defer clearOpscoreEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RoutingTimeout() != 45*time.Second {
		t.Fatalf("expected 45s routing timeout, got %s", cfg.RoutingTimeout())
	}
}

func TestLoadRejectsMalformedRoutingTimeout(t *testing.T) {
	clearOpscoreEnv(t)
	os.Setenv("OPSCORE_ROUTING_TIMEOUT_SECONDS", "not-a-number")
	defer clearOpscoreEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed routing timeout")
	}
}

func TestLoadParsesNATSEmbeddedFlag(t *testing.T) {
	clearOpscoreEnv(t)
	os.Setenv("OPSCORE_EVENTS_NATS_EMBEDDED", "true")
	defer clearOpscoreEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.EventsNATSEmbedded {
		t.Fatal("expected EventsNATSEmbedded to be true")
	}
}
