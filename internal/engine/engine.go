package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"spool/internal/backend"
	"spool/internal/config"
	"spool/internal/workitem"
)

// Engine dispatches the uniform operation set to a configured backend.
type Engine struct {
	store  backend.Backend
	cfg    *config.Config
	logger *slog.Logger
}

// New opens the configured backend and wraps it.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	store, err := backend.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Engine{store: store, cfg: cfg, logger: logger}, nil
}

// NewWithBackend wraps an already-open backend. Used by tests and by
// callers that manage the backend lifecycle themselves.
func NewWithBackend(store backend.Backend, cfg *config.Config, logger *slog.Logger) *Engine {
	return &Engine{store: store, cfg: cfg, logger: logger}
}

// Close releases the underlying backend.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Queue returns the configured input queue name.
func (e *Engine) Queue() string {
	return e.cfg.Queue
}

// OutputQueue returns the derived output queue name.
func (e *Engine) OutputQueue() string {
	return workitem.OutputQueueName(e.cfg.Queue)
}

// Enqueue creates a claimable item on the configured input queue.
func (e *Engine) Enqueue(ctx context.Context, payload json.RawMessage) (string, error) {
	return e.enqueue(ctx, e.cfg.Queue, "", payload)
}

// EnqueueOutput creates an item on the derived output queue, linked back to
// the producing item. The suffix keeps produced items out of the producing
// stage's own claimable pool.
func (e *Engine) EnqueueOutput(ctx context.Context, parentID string, payload json.RawMessage) (string, error) {
	return e.enqueue(ctx, e.OutputQueue(), parentID, payload)
}

// EnqueueTo creates an item on an explicit queue.
func (e *Engine) EnqueueTo(ctx context.Context, queue, parentID string, payload json.RawMessage) (string, error) {
	return e.enqueue(ctx, queue, parentID, payload)
}

func (e *Engine) enqueue(ctx context.Context, queue, parentID string, payload json.RawMessage) (string, error) {
	var id string
	err := e.withRetry(ctx, "enqueue", func() error {
		var opErr error
		id, opErr = e.store.Enqueue(ctx, queue, parentID, payload)
		return opErr
	})
	if err != nil {
		return "", err
	}
	e.logger.Info("enqueued work item", "queue", queue, "item", id, "parent", parentID)
	return id, nil
}

// Claim takes exclusive ownership of the oldest claimable item on the
// configured queue.
func (e *Engine) Claim(ctx context.Context) (string, error) {
	var id string
	err := e.withRetry(ctx, "claim", func() error {
		var opErr error
		id, opErr = e.store.Claim(ctx, e.cfg.Queue)
		return opErr
	})
	if errors.Is(err, workitem.ErrEmptyQueue) {
		e.logger.Debug("queue empty", "queue", e.cfg.Queue)
		return "", err
	}
	if err != nil {
		return "", err
	}
	e.logger.Info("claimed work item", "queue", e.cfg.Queue, "item", id)
	return id, nil
}

// ClaimWait blocks up to timeout for an item when the backend offers a
// native bounded wait; otherwise it falls back to a single non-blocking
// claim.
func (e *Engine) ClaimWait(ctx context.Context, timeout time.Duration) (string, error) {
	blocker, ok := e.store.(backend.BlockingClaimer)
	if !ok {
		return e.Claim(ctx)
	}
	var id string
	err := e.withRetry(ctx, "claim", func() error {
		var opErr error
		id, opErr = blocker.ClaimWait(ctx, e.cfg.Queue, timeout)
		return opErr
	})
	if errors.Is(err, workitem.ErrEmptyQueue) {
		e.logger.Debug("queue empty after wait", "queue", e.cfg.Queue, "timeout", timeout)
		return "", err
	}
	if err != nil {
		return "", err
	}
	e.logger.Info("claimed work item", "queue", e.cfg.Queue, "item", id)
	return id, nil
}

// SupportsBlockingClaim reports whether ClaimWait actually waits.
func (e *Engine) SupportsBlockingClaim() bool {
	_, ok := e.store.(backend.BlockingClaimer)
	return ok
}

// Complete resolves a claimed item as successfully processed.
func (e *Engine) Complete(ctx context.Context, itemID string) error {
	err := e.withRetry(ctx, "complete", func() error {
		return e.store.Resolve(ctx, itemID, workitem.StateCompleted, nil)
	})
	if err != nil {
		return err
	}
	e.logger.Info("completed work item", "item", itemID)
	return nil
}

// Fail resolves a claimed item as permanently failed with structured
// detail.
func (e *Engine) Fail(ctx context.Context, itemID string, failure *workitem.Failure) error {
	err := e.withRetry(ctx, "fail", func() error {
		return e.store.Resolve(ctx, itemID, workitem.StateFailed, failure)
	})
	if err != nil {
		return err
	}
	e.logger.Error("failed work item", "item", itemID,
		"kind", failure.Kind, "code", failure.Code, "message", failure.Message)
	return nil
}

// Recover sweeps the configured queue for claims older than the configured
// age and returns them to the claimable pool.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	return e.RecoverQueue(ctx, e.cfg.Queue)
}

// RecoverQueue sweeps an explicit queue.
func (e *Engine) RecoverQueue(ctx context.Context, queue string) (int, error) {
	var count int
	err := e.withRetry(ctx, "recover", func() error {
		var opErr error
		count, opErr = e.store.Recover(ctx, queue, e.cfg.MaxClaimAge())
		return opErr
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// LoadPayload returns an item's payload document.
func (e *Engine) LoadPayload(ctx context.Context, itemID string) (json.RawMessage, error) {
	var payload json.RawMessage
	err := e.withRetry(ctx, "load_payload", func() error {
		var opErr error
		payload, opErr = e.store.LoadPayload(ctx, itemID)
		return opErr
	})
	return payload, err
}

// SavePayload replaces an item's payload document.
func (e *Engine) SavePayload(ctx context.Context, itemID string, payload json.RawMessage) error {
	return e.withRetry(ctx, "save_payload", func() error {
		return e.store.SavePayload(ctx, itemID, payload)
	})
}

// ListFiles returns an item's attachment names, sorted.
func (e *Engine) ListFiles(ctx context.Context, itemID string) ([]string, error) {
	var names []string
	err := e.withRetry(ctx, "list_files", func() error {
		var opErr error
		names, opErr = e.store.ListFiles(ctx, itemID)
		return opErr
	})
	return names, err
}

// GetFile returns attachment content regardless of storage tier.
func (e *Engine) GetFile(ctx context.Context, itemID, name string) ([]byte, error) {
	var content []byte
	err := e.withRetry(ctx, "get_file", func() error {
		var opErr error
		content, opErr = e.store.GetFile(ctx, itemID, name)
		return opErr
	})
	return content, err
}

// AddFile stores an attachment, replacing any existing one with the same
// name.
func (e *Engine) AddFile(ctx context.Context, itemID, name string, content []byte) error {
	err := e.withRetry(ctx, "add_file", func() error {
		return e.store.AddFile(ctx, itemID, name, content)
	})
	if err != nil {
		return err
	}
	e.logger.Info("stored attachment", "item", itemID, "file", name, "size", len(content))
	return nil
}

// RemoveFile deletes an attachment.
func (e *Engine) RemoveFile(ctx context.Context, itemID, name string) error {
	err := e.withRetry(ctx, "remove_file", func() error {
		return e.store.RemoveFile(ctx, itemID, name)
	})
	if err != nil {
		return err
	}
	e.logger.Info("removed attachment", "item", itemID, "file", name)
	return nil
}

// Get fetches a single item record.
func (e *Engine) Get(ctx context.Context, itemID string) (*workitem.Item, error) {
	var item *workitem.Item
	err := e.withRetry(ctx, "get", func() error {
		var opErr error
		item, opErr = e.store.Get(ctx, itemID)
		return opErr
	})
	return item, err
}

// Stats counts items per state for the given queue.
func (e *Engine) Stats(ctx context.Context, queue string) (map[workitem.State]int, error) {
	var stats map[workitem.State]int
	err := e.withRetry(ctx, "stats", func() error {
		var opErr error
		stats, opErr = e.store.Stats(ctx, queue)
		return opErr
	})
	return stats, err
}
