package redis_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"spool/internal/backend"
	"spool/internal/backend/redis"
	"spool/internal/config"
	"spool/internal/logging"
	"spool/internal/testsupport"
	"spool/internal/workitem"
)

// openStore connects to a local server, skipping the suite when none is
// reachable. Every call gets a fresh queue name so runs against a shared
// server do not interfere.
func openStore(t *testing.T) (*redis.Store, *config.Config) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Backend = config.BackendRedis
	if addr := os.Getenv("SPOOL_TEST_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	cfg.Queue = fmt.Sprintf("test-%d", time.Now().UnixNano())
	cfg.Files.InlineThreshold = 1024

	store, err := redis.Open(cfg, logging.NewNop())
	if errors.Is(err, workitem.ErrUnavailable) {
		t.Skipf("no redis server at %s: %v", cfg.Redis.Addr, err)
	}
	if err != nil {
		t.Fatalf("redis.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, cfg
}

func TestClaimFollowsEnqueueOrder(t *testing.T) {
	store, cfg := openStore(t)
	ctx := context.Background()

	var want []string
	for i := 0; i < 5; i++ {
		id, err := store.Enqueue(ctx, cfg.Queue, "", json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		want = append(want, id)
	}
	for i, expected := range want {
		got, err := store.Claim(ctx, cfg.Queue)
		if err != nil {
			t.Fatalf("Claim %d: %v", i, err)
		}
		if got != expected {
			t.Fatalf("claim %d: expected %s, got %s", i, expected, got)
		}
	}
	if _, err := store.Claim(ctx, cfg.Queue); !errors.Is(err, workitem.ErrEmptyQueue) {
		t.Fatalf("expected empty queue error, got %v", err)
	}
}

func TestClaimWait(t *testing.T) {
	store, cfg := openStore(t)
	ctx := context.Background()

	start := time.Now()
	if _, err := store.ClaimWait(ctx, cfg.Queue, 200*time.Millisecond); !errors.Is(err, workitem.ErrEmptyQueue) {
		t.Fatalf("expected empty queue after wait, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("ClaimWait returned too early: %v", elapsed)
	}

	done := make(chan string, 1)
	go func() {
		id, err := store.ClaimWait(ctx, cfg.Queue, 5*time.Second)
		if err != nil {
			t.Errorf("ClaimWait: %v", err)
			done <- ""
			return
		}
		done <- id
	}()

	time.Sleep(50 * time.Millisecond)
	enqueued, err := store.Enqueue(ctx, cfg.Queue, "", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got := <-done; got != enqueued {
		t.Fatalf("expected waiter to claim %s, got %s", enqueued, got)
	}

	item, err := store.Get(ctx, enqueued)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.State != workitem.StateClaimed {
		t.Fatalf("expected claimed after wait, got %s", item.State)
	}
}

func TestResolveAndRecover(t *testing.T) {
	store, cfg := openStore(t)
	ctx := context.Background()

	stale, err := store.Enqueue(ctx, cfg.Queue, "", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Claim(ctx, cfg.Queue); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	resolved, err := store.Enqueue(ctx, cfg.Queue, "", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Claim(ctx, cfg.Queue); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	failure := &workitem.Failure{Kind: "transient", Code: "E_TIMEOUT", Message: "worker timed out"}
	if err := store.Resolve(ctx, resolved, workitem.StateFailed, failure); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	count, err := store.Recover(ctx, cfg.Queue, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recovered item, got %d", count)
	}

	item, err := store.Get(ctx, stale)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.State != workitem.StateClaimable || item.ClaimedAt != nil {
		t.Fatalf("expected recovered claimable without claimed_at, got %#v", item)
	}
	failed, err := store.Get(ctx, resolved)
	if err != nil {
		t.Fatalf("Get resolved: %v", err)
	}
	if failed.State != workitem.StateFailed || failed.Failure == nil {
		t.Fatalf("recovery disturbed a resolved item: %#v", failed)
	}

	// The recovered item must be the next claim out.
	next, err := store.Claim(ctx, cfg.Queue)
	if err != nil {
		t.Fatalf("Claim after recover: %v", err)
	}
	if next != stale {
		t.Fatalf("expected recovered item %s next, got %s", stale, next)
	}

	if err := store.Resolve(ctx, stale, workitem.StateCompleted, nil); err != nil {
		t.Fatalf("Resolve recovered: %v", err)
	}
	if err := store.Resolve(ctx, stale, workitem.StateCompleted, nil); !errors.Is(err, workitem.ErrStateConflict) {
		t.Fatalf("expected state conflict on double resolve, got %v", err)
	}
	if err := store.Resolve(ctx, "no-such-item", workitem.StateCompleted, nil); !errors.Is(err, workitem.ErrStateConflict) {
		t.Fatalf("expected state conflict for unknown id, got %v", err)
	}
}

func TestRecoverPreservesEnqueueOrder(t *testing.T) {
	store, cfg := openStore(t)
	ctx := context.Background()

	var want []string
	for i := 0; i < 3; i++ {
		id, err := store.Enqueue(ctx, cfg.Queue, "", nil)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		want = append(want, id)
	}
	for i := range want {
		if _, err := store.Claim(ctx, cfg.Queue); err != nil {
			t.Fatalf("Claim %d: %v", i, err)
		}
	}

	time.Sleep(30 * time.Millisecond)
	count, err := store.Recover(ctx, cfg.Queue, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if count != len(want) {
		t.Fatalf("expected %d recovered items, got %d", len(want), count)
	}

	for i, expected := range want {
		got, err := store.Claim(ctx, cfg.Queue)
		if err != nil {
			t.Fatalf("Claim after recover %d: %v", i, err)
		}
		if got != expected {
			t.Fatalf("claim %d after recovery: expected %s, got %s", i, expected, got)
		}
	}
}

func TestStatsCountsPerState(t *testing.T) {
	store, cfg := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Enqueue(ctx, cfg.Queue, "", nil); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	claimed, err := store.Claim(ctx, cfg.Queue)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.Resolve(ctx, claimed, workitem.StateCompleted, nil); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := store.Claim(ctx, cfg.Queue); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	stats, err := store.Stats(ctx, cfg.Queue)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := map[workitem.State]int{
		workitem.StateClaimable: 1,
		workitem.StateClaimed:   1,
		workitem.StateCompleted: 1,
		workitem.StateFailed:    0,
	}
	for state, count := range want {
		if stats[state] != count {
			t.Fatalf("state %s: expected %d, got %d (all: %v)", state, count, stats[state], stats)
		}
	}
}

func TestAttachmentTiers(t *testing.T) {
	store, cfg := openStore(t)
	ctx := context.Background()

	id, err := store.Enqueue(ctx, cfg.Queue, "", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	small := testsupport.Bytes(64)
	large := testsupport.Bytes(4096)
	if err := store.AddFile(ctx, id, "small.bin", small); err != nil {
		t.Fatalf("AddFile small: %v", err)
	}
	if err := store.AddFile(ctx, id, "large.bin", large); err != nil {
		t.Fatalf("AddFile large: %v", err)
	}

	gotSmall, err := store.GetFile(ctx, id, "small.bin")
	if err != nil {
		t.Fatalf("GetFile small: %v", err)
	}
	if !bytes.Equal(gotSmall, small) {
		t.Fatal("small attachment content mismatch")
	}
	gotLarge, err := store.GetFile(ctx, id, "large.bin")
	if err != nil {
		t.Fatalf("GetFile large: %v", err)
	}
	if !bytes.Equal(gotLarge, large) {
		t.Fatal("large attachment content mismatch")
	}

	external := filepath.Join(cfg.Files.Dir, id, "large.bin")
	if _, err := os.Stat(external); err != nil {
		t.Fatalf("expected external bytes at %s: %v", external, err)
	}

	// Shrink below the threshold: bytes move inline, external copy goes.
	if err := store.AddFile(ctx, id, "large.bin", small); err != nil {
		t.Fatalf("AddFile replacement: %v", err)
	}
	if _, err := os.Stat(external); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("stale external bytes not removed after re-tier")
	}

	names, err := store.ListFiles(ctx, id)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(names) != 2 || names[0] != "large.bin" || names[1] != "small.bin" {
		t.Fatalf("unexpected file list: %v", names)
	}

	if err := store.RemoveFile(ctx, id, "small.bin"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	if _, err := store.GetFile(ctx, id, "small.bin"); !errors.Is(err, workitem.ErrFileNotFound) {
		t.Fatalf("expected file not found, got %v", err)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	store, cfg := openStore(t)
	ctx := context.Background()

	id, err := store.Enqueue(ctx, cfg.Queue, "", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	initial, err := store.LoadPayload(ctx, id)
	if err != nil {
		t.Fatalf("LoadPayload: %v", err)
	}
	if string(initial) != "{}" {
		t.Fatalf("expected empty document, got %s", initial)
	}
	doc := json.RawMessage(`{"source":"disc-1"}`)
	if err := store.SavePayload(ctx, id, doc); err != nil {
		t.Fatalf("SavePayload: %v", err)
	}
	loaded, err := store.LoadPayload(ctx, id)
	if err != nil {
		t.Fatalf("LoadPayload: %v", err)
	}
	if string(loaded) != string(doc) {
		t.Fatalf("payload mismatch: %s", loaded)
	}
	if _, err := store.LoadPayload(ctx, "no-such-item"); !errors.Is(err, workitem.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegistryOpensRedis(t *testing.T) {
	_, cfg := openStore(t)

	store, err := backend.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("backend.Open: %v", err)
	}
	defer store.Close()

	if _, ok := store.(backend.BlockingClaimer); !ok {
		t.Fatal("expected redis backend to support blocking claims")
	}
}
