package engine

import (
	"context"
	"math/rand"
	"time"

	"spool/internal/workitem"
)

const (
	retryAttempts       = 4
	retryInitialBackoff = 50 * time.Millisecond
	retryMaxBackoff     = 2 * time.Second
)

// withRetry runs op, retrying transient backend failures with exponential
// backoff and jitter. Domain outcomes like EmptyQueue and StateConflict
// surface immediately.
func (e *Engine) withRetry(ctx context.Context, name string, op func() error) error {
	delay := retryInitialBackoff
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !workitem.IsRetryable(lastErr) || attempt == retryAttempts {
			break
		}
		sleep := delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))
		e.logger.Warn("backend unavailable, retrying",
			"op", name, "attempt", attempt, "backoff", sleep, "error", lastErr)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
		if delay *= 2; delay > retryMaxBackoff {
			delay = retryMaxBackoff
		}
	}
	return lastErr
}
