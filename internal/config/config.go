package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Sqlite contains configuration for the embedded SQLite backend.
type Sqlite struct {
	Path string `toml:"path" env:"SPOOL_SQLITE_PATH"`
}

// Redis contains configuration for the Redis backend.
type Redis struct {
	Addr     string `toml:"addr" env:"SPOOL_REDIS_ADDR"`
	DB       int    `toml:"db" env:"SPOOL_REDIS_DB"`
	Password string `toml:"password" env:"SPOOL_REDIS_PASSWORD"`
	PoolSize int    `toml:"pool_size" env:"SPOOL_REDIS_POOL_SIZE"`
}

// Mongo contains configuration for the document-store backend.
type Mongo struct {
	URI      string `toml:"uri" env:"SPOOL_MONGO_URI"`
	Database string `toml:"database" env:"SPOOL_MONGO_DATABASE"`
	PoolSize uint64 `toml:"pool_size" env:"SPOOL_MONGO_POOL_SIZE"`
}

// Files contains configuration for the tiered attachment store.
type Files struct {
	Dir             string `toml:"dir" env:"SPOOL_FILES_DIR"`
	InlineThreshold int64  `toml:"inline_threshold_bytes" env:"SPOOL_INLINE_THRESHOLD_BYTES"`
}

// Recovery contains configuration for the orphan-recovery sweep.
type Recovery struct {
	MaxClaimAgeMinutes int `toml:"max_claim_age_minutes" env:"SPOOL_MAX_CLAIM_AGE_MINUTES"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"SPOOL_LOG_FORMAT"`
	Level  string `toml:"level" env:"SPOOL_LOG_LEVEL"`
	Dir    string `toml:"dir" env:"SPOOL_LOG_DIR"`
}

// Config encapsulates all configuration values for the queue engine.
//
// Sections by subsystem:
//   - Backend/Queue: storage technology selection and queue partition
//   - Sqlite/Redis/Mongo: per-backend connection targets
//   - Files: attachment tier threshold and external byte area
//   - Recovery: orphan claim age threshold
//   - Logging: log format and level
type Config struct {
	Backend string `toml:"backend" env:"SPOOL_BACKEND"`
	Queue   string `toml:"queue" env:"SPOOL_QUEUE"`

	Sqlite   Sqlite   `toml:"sqlite"`
	Redis    Redis    `toml:"redis"`
	Mongo    Mongo    `toml:"mongo"`
	Files    Files    `toml:"files"`
	Recovery Recovery `toml:"recovery"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/spool/config.toml")
}

// Load locates, parses, and validates a configuration file, then applies
// SPOOL_* environment overrides. The returned config has all path fields
// expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, "", false, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("spool.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the engine writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Files.Dir, c.Logging.Dir}
	if c.Backend == BackendSqlite {
		dirs = append(dirs, filepath.Dir(c.Sqlite.Path))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MaxClaimAge returns the orphan-recovery age threshold as a duration.
func (c *Config) MaxClaimAge() time.Duration {
	return time.Duration(c.Recovery.MaxClaimAgeMinutes) * time.Minute
}

// OutputQueue returns the derived output queue name for the configured queue.
func (c *Config) OutputQueue() string {
	return c.Queue + "_output"
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// WriteSampleConfig writes the sample config to path, refusing to overwrite.
func WriteSampleConfig(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists: %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return filepath.Abs(path)
}
