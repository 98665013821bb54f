package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"spool/internal/backend"
	"spool/internal/blobfs"
	"spool/internal/config"
	"spool/internal/workitem"
)

func init() {
	backend.Register(config.BackendRedis, func(cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
		return Open(cfg, logger)
	})
}

// Store manages work-item persistence backed by a Redis server.
type Store struct {
	client    *redis.Client
	blobs     *blobfs.Store
	threshold int64
	logger    *slog.Logger
}

// Open connects to the configured server, verifies the schema version, and
// returns a ready store.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	blobs, err := blobfs.New(cfg.Files.Dir)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, classify(fmt.Errorf("ping %s: %w", cfg.Redis.Addr, err))
	}

	store := &Store{
		client:    client,
		blobs:     blobs,
		threshold: cfg.Files.InlineThreshold,
		logger:    logger,
	}
	if err := store.checkSchema(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis backend ready", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// checkSchema claims the schema key for this engine's version, or refuses to
// serve a keyspace written by a newer engine.
func (s *Store) checkSchema(ctx context.Context) error {
	set, err := s.client.SetNX(ctx, schemaKey, strconv.Itoa(schemaVersion), 0).Result()
	if err != nil {
		return classify(fmt.Errorf("set schema version: %w", err))
	}
	if set {
		return nil
	}
	raw, err := s.client.Get(ctx, schemaKey).Result()
	if err != nil {
		return classify(fmt.Errorf("read schema version: %w", err))
	}
	found, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || found > schemaVersion {
		return workitem.Errorf(workitem.ErrSchemaVersion,
			"keyspace records schema %q but this engine supports up to %d", raw, schemaVersion)
	}
	return nil
}

// classify maps transport failures onto the shared error taxonomy so the
// engine facade can decide what to retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "pool timeout") {
		return workitem.Errorf(workitem.ErrPoolExhausted, "%v", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "LOADING") {
		return workitem.Errorf(workitem.ErrUnavailable, "%v", err)
	}
	return err
}

// timeLayout is fixed width so timestamps stored in hashes compare
// correctly as strings inside scripts.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseCount(value string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(value))
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
