package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"spool/internal/config"
	"spool/internal/workitem"
)

// Backend is the uniform storage contract consumed by the engine facade.
//
// Implementations must make Claim, Resolve, and Recover atomic per item with
// respect to each other: a stale read must never produce a duplicate claim,
// and a sweep must never revert an item a concurrent resolve already
// finished.
type Backend interface {
	// Enqueue creates a new claimable item and returns its id. parentID may
	// be empty; a nil payload is stored as an empty document.
	Enqueue(ctx context.Context, queue, parentID string, payload json.RawMessage) (string, error)

	// Claim atomically transitions the oldest claimable item in queue to
	// claimed and returns its id, or workitem.ErrEmptyQueue.
	Claim(ctx context.Context, queue string) (string, error)

	// Resolve moves a claimed item to a terminal state. failure is required
	// for workitem.StateFailed. Items not currently claimed yield
	// workitem.ErrStateConflict.
	Resolve(ctx context.Context, itemID string, outcome workitem.State, failure *workitem.Failure) error

	// Recover returns every item in queue claimed earlier than maxClaimAge
	// ago to the claimable pool and reports how many were recovered.
	Recover(ctx context.Context, queue string, maxClaimAge time.Duration) (int, error)

	// LoadPayload returns the item's payload document, or an empty document
	// when none was saved yet.
	LoadPayload(ctx context.Context, itemID string) (json.RawMessage, error)

	// SavePayload replaces the item's payload document.
	SavePayload(ctx context.Context, itemID string, payload json.RawMessage) error

	// ListFiles returns the attachment names for an item, sorted.
	ListFiles(ctx context.Context, itemID string) ([]string, error)

	// GetFile returns attachment content regardless of storage tier.
	GetFile(ctx context.Context, itemID, name string) ([]byte, error)

	// AddFile stores an attachment, choosing the inline or external tier by
	// size. Re-adding an existing name replaces it and re-evaluates the
	// tier.
	AddFile(ctx context.Context, itemID, name string, content []byte) error

	// RemoveFile deletes an attachment and any externally stored bytes.
	RemoveFile(ctx context.Context, itemID, name string) error

	// Get fetches a single item record.
	Get(ctx context.Context, itemID string) (*workitem.Item, error)

	// Stats counts items per state within a queue.
	Stats(ctx context.Context, queue string) (map[workitem.State]int, error)

	// Close releases connections and pools.
	Close() error
}

// BlockingClaimer is implemented by backends whose native primitive offers a
// bounded wait. The engine exposes it only when available; Claim remains the
// non-blocking default contract.
type BlockingClaimer interface {
	// ClaimWait behaves like Claim but waits up to timeout for an item
	// before reporting workitem.ErrEmptyQueue.
	ClaimWait(ctx context.Context, queue string, timeout time.Duration) (string, error)
}

// Factory constructs a backend from configuration.
type Factory func(cfg *config.Config, logger *slog.Logger) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available under the given identifier. It is
// called from backend package init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("backend: duplicate registration for %q", name))
	}
	registry[name] = factory
}

// Open resolves the configured backend identifier and constructs it.
func Open(cfg *config.Config, logger *slog.Logger) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend %q is not registered (known: %v)", cfg.Backend, Registered())
	}
	return factory(cfg, logger)
}

// Registered returns the sorted identifiers of all registered backends.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
