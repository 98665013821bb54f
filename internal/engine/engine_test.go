package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"spool/internal/backend"
	"spool/internal/engine"
	"spool/internal/logging"
	"spool/internal/testsupport"
	"spool/internal/workitem"
)

// fakeBackend counts calls and fails the first failures invocations of
// each operation with the configured error.
type fakeBackend struct {
	failures int
	failWith error
	calls    map[string]int

	enqueued []string
	claimID  string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: map[string]int{}}
}

func (f *fakeBackend) maybeFail(op string) error {
	f.calls[op]++
	if f.calls[op] <= f.failures {
		return f.failWith
	}
	return nil
}

func (f *fakeBackend) Enqueue(ctx context.Context, queue, parentID string, payload json.RawMessage) (string, error) {
	if err := f.maybeFail("enqueue"); err != nil {
		return "", err
	}
	f.enqueued = append(f.enqueued, queue)
	return "item-1", nil
}

func (f *fakeBackend) Claim(ctx context.Context, queue string) (string, error) {
	if err := f.maybeFail("claim"); err != nil {
		return "", err
	}
	if f.claimID == "" {
		return "", workitem.Errorf(workitem.ErrEmptyQueue, "queue %q has no claimable items", queue)
	}
	return f.claimID, nil
}

func (f *fakeBackend) Resolve(ctx context.Context, itemID string, outcome workitem.State, failure *workitem.Failure) error {
	return f.maybeFail("resolve")
}

func (f *fakeBackend) Recover(ctx context.Context, queue string, maxClaimAge time.Duration) (int, error) {
	if err := f.maybeFail("recover"); err != nil {
		return 0, err
	}
	return 2, nil
}

func (f *fakeBackend) LoadPayload(ctx context.Context, itemID string) (json.RawMessage, error) {
	if err := f.maybeFail("load_payload"); err != nil {
		return nil, err
	}
	return json.RawMessage("{}"), nil
}

func (f *fakeBackend) SavePayload(ctx context.Context, itemID string, payload json.RawMessage) error {
	return f.maybeFail("save_payload")
}

func (f *fakeBackend) ListFiles(ctx context.Context, itemID string) ([]string, error) {
	return nil, f.maybeFail("list_files")
}

func (f *fakeBackend) GetFile(ctx context.Context, itemID, name string) ([]byte, error) {
	return nil, f.maybeFail("get_file")
}

func (f *fakeBackend) AddFile(ctx context.Context, itemID, name string, content []byte) error {
	return f.maybeFail("add_file")
}

func (f *fakeBackend) RemoveFile(ctx context.Context, itemID, name string) error {
	return f.maybeFail("remove_file")
}

func (f *fakeBackend) Get(ctx context.Context, itemID string) (*workitem.Item, error) {
	return nil, f.maybeFail("get")
}

func (f *fakeBackend) Stats(ctx context.Context, queue string) (map[workitem.State]int, error) {
	return nil, f.maybeFail("stats")
}

func (f *fakeBackend) Close() error { return nil }

func newEngine(t *testing.T, store backend.Backend) *engine.Engine {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return engine.NewWithBackend(store, cfg, logging.NewNop())
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	fake := newFakeBackend()
	fake.failures = 2
	fake.failWith = workitem.Errorf(workitem.ErrUnavailable, "backend down")
	eng := newEngine(t, fake)

	id, err := eng.Enqueue(context.Background(), nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id != "item-1" {
		t.Fatalf("unexpected id %s", id)
	}
	if fake.calls["enqueue"] != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.calls["enqueue"])
	}
}

func TestRetryGivesUpAfterBudget(t *testing.T) {
	fake := newFakeBackend()
	fake.failures = 100
	fake.failWith = workitem.Errorf(workitem.ErrPoolExhausted, "pool exhausted")
	eng := newEngine(t, fake)

	if _, err := eng.Enqueue(context.Background(), nil); !errors.Is(err, workitem.ErrPoolExhausted) {
		t.Fatalf("expected pool exhausted, got %v", err)
	}
	if fake.calls["enqueue"] != 4 {
		t.Fatalf("expected 4 attempts, got %d", fake.calls["enqueue"])
	}
}

func TestNoRetryOnDomainOutcomes(t *testing.T) {
	t.Run("empty queue", func(t *testing.T) {
		fake := newFakeBackend()
		eng := newEngine(t, fake)
		if _, err := eng.Claim(context.Background()); !errors.Is(err, workitem.ErrEmptyQueue) {
			t.Fatalf("expected empty queue, got %v", err)
		}
		if fake.calls["claim"] != 1 {
			t.Fatalf("expected a single attempt, got %d", fake.calls["claim"])
		}
	})

	t.Run("state conflict", func(t *testing.T) {
		fake := newFakeBackend()
		fake.failures = 100
		fake.failWith = workitem.Errorf(workitem.ErrStateConflict, "item x is not claimed")
		eng := newEngine(t, fake)
		if err := eng.Complete(context.Background(), "x"); !errors.Is(err, workitem.ErrStateConflict) {
			t.Fatalf("expected state conflict, got %v", err)
		}
		if fake.calls["resolve"] != 1 {
			t.Fatalf("expected a single attempt, got %d", fake.calls["resolve"])
		}
	})
}

func TestEnqueueOutputDerivesQueueName(t *testing.T) {
	fake := newFakeBackend()
	eng := newEngine(t, fake)

	if _, err := eng.Enqueue(context.Background(), nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := eng.EnqueueOutput(context.Background(), "item-1", nil); err != nil {
		t.Fatalf("EnqueueOutput: %v", err)
	}
	if len(fake.enqueued) != 2 {
		t.Fatalf("expected 2 enqueues, got %d", len(fake.enqueued))
	}
	if fake.enqueued[0] != eng.Queue() {
		t.Fatalf("expected input queue %q, got %q", eng.Queue(), fake.enqueued[0])
	}
	want := eng.Queue() + "_output"
	if fake.enqueued[1] != want {
		t.Fatalf("expected output queue %q, got %q", want, fake.enqueued[1])
	}
}

func TestClaimWaitFallsBackWithoutBlockingSupport(t *testing.T) {
	fake := newFakeBackend()
	fake.claimID = "item-9"
	eng := newEngine(t, fake)

	if eng.SupportsBlockingClaim() {
		t.Fatal("fake backend should not support blocking claims")
	}
	id, err := eng.ClaimWait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("ClaimWait: %v", err)
	}
	if id != "item-9" {
		t.Fatalf("unexpected id %s", id)
	}
	if fake.calls["claim"] != 1 {
		t.Fatalf("expected fallback to a single non-blocking claim, got %d", fake.calls["claim"])
	}
}

// blockingFake adds a native bounded wait on top of fakeBackend.
type blockingFake struct {
	*fakeBackend
}

func (f *blockingFake) ClaimWait(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	if err := f.maybeFail("claim_wait"); err != nil {
		return "", err
	}
	if f.claimID == "" {
		return "", workitem.Errorf(workitem.ErrEmptyQueue, "queue %q has no claimable items", queue)
	}
	return f.claimID, nil
}

func TestClaimWaitRetriesTransientFailure(t *testing.T) {
	fake := &blockingFake{fakeBackend: newFakeBackend()}
	fake.failures = 2
	fake.failWith = workitem.Errorf(workitem.ErrUnavailable, "backend down")
	fake.claimID = "item-9"
	eng := newEngine(t, fake)

	if !eng.SupportsBlockingClaim() {
		t.Fatal("expected blocking claim support")
	}
	id, err := eng.ClaimWait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("ClaimWait: %v", err)
	}
	if id != "item-9" {
		t.Fatalf("unexpected id %s", id)
	}
	if fake.calls["claim_wait"] != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.calls["claim_wait"])
	}
	if fake.calls["claim"] != 0 {
		t.Fatalf("expected no fallback to non-blocking claim, got %d", fake.calls["claim"])
	}
}

func TestRecoverUsesConfiguredAge(t *testing.T) {
	fake := newFakeBackend()
	eng := newEngine(t, fake)

	count, err := eng.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 recovered, got %d", count)
	}
}
