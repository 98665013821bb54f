package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spool/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Backend != config.BackendSqlite {
		t.Fatalf("unexpected default backend: %s", cfg.Backend)
	}
	if cfg.Files.InlineThreshold != 1<<20 {
		t.Fatalf("unexpected inline threshold: %d", cfg.Files.InlineThreshold)
	}
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spool.toml")
	content := `
backend = "redis"
queue = "invoices"

[redis]
addr = "redis.internal:6380"
pool_size = 10

[recovery]
max_claim_age_minutes = 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s to be found, got %s exists=%v", path, resolved, exists)
	}
	if cfg.Backend != "redis" || cfg.Queue != "invoices" {
		t.Fatalf("unexpected backend/queue: %s/%s", cfg.Backend, cfg.Queue)
	}
	if cfg.Redis.Addr != "redis.internal:6380" || cfg.Redis.PoolSize != 10 {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.MaxClaimAge() != 5*time.Minute {
		t.Fatalf("unexpected max claim age: %s", cfg.MaxClaimAge())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spool.toml")
	if err := os.WriteFile(path, []byte("queue = \"from-file\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SPOOL_QUEUE", "from-env")
	t.Setenv("SPOOL_BACKEND", "mongo")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Queue != "from-env" {
		t.Fatalf("env override lost: queue = %s", cfg.Queue)
	}
	if cfg.Backend != config.BackendMongo {
		t.Fatalf("env override lost: backend = %s", cfg.Backend)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "dynamo"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "backend") {
		t.Fatalf("expected backend validation error, got %v", err)
	}
}

func TestValidateRejectsBadQueueName(t *testing.T) {
	cfg := config.Default()
	cfg.Queue = "has space"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected queue name validation error")
	}
}

func TestValidateRejectsNonPositiveThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Files.InlineThreshold = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected threshold validation error")
	}
}

func TestOutputQueue(t *testing.T) {
	cfg := config.Default()
	cfg.Queue = "qa_forms"
	if got := cfg.OutputQueue(); got != "qa_forms_output" {
		t.Fatalf("unexpected output queue: %s", got)
	}
}

func TestWriteSampleConfigRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := config.WriteSampleConfig(path); err != nil {
		t.Fatalf("WriteSampleConfig failed: %v", err)
	}
	if err := config.WriteSampleConfig(path); err == nil {
		t.Fatal("expected overwrite refusal")
	}
}
