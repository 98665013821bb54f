package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCore(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateFiles(); err != nil {
		return err
	}
	if err := c.validateRecovery(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCore() error {
	if strings.TrimSpace(c.Queue) == "" {
		return errors.New("queue must be set")
	}
	if strings.ContainsAny(c.Queue, " :/") {
		return fmt.Errorf("queue %q must not contain spaces, colons, or slashes", c.Queue)
	}
	return nil
}

func (c *Config) validateBackend() error {
	switch c.Backend {
	case BackendSqlite:
		if strings.TrimSpace(c.Sqlite.Path) == "" {
			return errors.New("sqlite.path must be set when backend is sqlite")
		}
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("redis.addr must be set when backend is redis")
		}
		if c.Redis.PoolSize <= 0 {
			return errors.New("redis.pool_size must be positive")
		}
	case BackendMongo:
		if strings.TrimSpace(c.Mongo.URI) == "" {
			return errors.New("mongo.uri must be set when backend is mongo")
		}
		if strings.TrimSpace(c.Mongo.Database) == "" {
			return errors.New("mongo.database must be set when backend is mongo")
		}
	default:
		return fmt.Errorf("backend %q is not one of sqlite, redis, mongo", c.Backend)
	}
	return nil
}

func (c *Config) validateFiles() error {
	if strings.TrimSpace(c.Files.Dir) == "" {
		return errors.New("files.dir must be set")
	}
	if c.Files.InlineThreshold <= 0 {
		return errors.New("files.inline_threshold_bytes must be positive")
	}
	return nil
}

func (c *Config) validateRecovery() error {
	if c.Recovery.MaxClaimAgeMinutes <= 0 {
		return errors.New("recovery.max_claim_age_minutes must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of console, json", c.Logging.Format)
	}
	return nil
}

func (c *Config) normalize() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Queue = strings.TrimSpace(c.Queue)

	var err error
	if c.Sqlite.Path, err = expandPath(c.Sqlite.Path); err != nil {
		return fmt.Errorf("sqlite.path: %w", err)
	}
	if c.Files.Dir, err = expandPath(c.Files.Dir); err != nil {
		return fmt.Errorf("files.dir: %w", err)
	}
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}
