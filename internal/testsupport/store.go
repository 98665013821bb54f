package testsupport

import (
	"context"
	"encoding/json"
	"testing"

	"spool/internal/backend"
	"spool/internal/config"
	"spool/internal/logging"
)

// MustOpenBackend opens the configured backend for tests and registers
// cleanup.
func MustOpenBackend(t testing.TB, cfg *config.Config) backend.Backend {
	t.Helper()

	store, err := backend.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("backend.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustEnqueue adds an item to queue and fails the test on error.
func MustEnqueue(t testing.TB, store backend.Backend, queue string, payload json.RawMessage) string {
	t.Helper()

	id, err := store.Enqueue(context.Background(), queue, "", payload)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return id
}

// Bytes returns a deterministic byte pattern of the requested size, handy
// for exercising both attachment tiers.
func Bytes(size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte('a' + i%26)
	}
	return buf
}
