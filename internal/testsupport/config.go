package testsupport

import (
	"path/filepath"
	"testing"

	"spool/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults to the sqlite backend and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Backend = config.BackendSqlite
	cfg.Queue = "test"
	cfg.Sqlite.Path = filepath.Join(base, "work_items.db")
	cfg.Files.Dir = filepath.Join(base, "files")
	cfg.Logging.Dir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithQueue overrides the queue name on the test config.
func WithQueue(name string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue = name
	}
}

// WithInlineThreshold overrides the attachment tier boundary.
func WithInlineThreshold(bytes int64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Files.InlineThreshold = bytes
	}
}
