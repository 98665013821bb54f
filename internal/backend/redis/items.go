package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"spool/internal/workitem"
)

// Enqueue creates a claimable item at the tail of the queue. The hash write
// and the list push run in one MULTI/EXEC so a reader never sees an id
// without its metadata.
func (s *Store) Enqueue(ctx context.Context, queue, parentID string, payload json.RawMessage) (string, error) {
	if queue == "" {
		return "", workitem.Errorf(workitem.ErrInvalid, "queue name required")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return "", workitem.Errorf(workitem.ErrInvalid, "payload is not valid JSON")
	}

	seq, err := s.client.Incr(ctx, seqKey(queue)).Result()
	if err != nil {
		return "", classify(fmt.Errorf("advance queue sequence: %w", err))
	}

	id := uuid.NewString()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, itemKey(id),
		"queue_name", queue,
		"parent_id", parentID,
		"payload", string(payload),
		"state", string(workitem.StateClaimable),
		"seq", seq,
		"created_at", formatTime(time.Now()))
	pipe.RPush(ctx, claimableKey(queue), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", classify(fmt.Errorf("insert work item: %w", err))
	}
	return id, nil
}

// Claim transitions the oldest claimable item to claimed.
func (s *Store) Claim(ctx context.Context, queue string) (string, error) {
	res, err := claimScript.Run(ctx, s.client,
		[]string{claimableKey(queue), claimedKey(queue)},
		itemKeyPrefix, formatTime(time.Now())).Result()
	if errors.Is(err, redis.Nil) {
		return "", workitem.Errorf(workitem.ErrEmptyQueue, "queue %q has no claimable items", queue)
	}
	if err != nil {
		return "", classify(fmt.Errorf("claim from %q: %w", queue, err))
	}
	id, ok := res.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("claim from %q: unexpected script result %v", queue, res)
	}
	return id, nil
}

// ClaimWait behaves like Claim but blocks up to timeout for an item to
// arrive, using BLMOVE as the wait primitive. The finish script detects a
// sweep that raced the move and retries with the remaining budget.
func (s *Store) ClaimWait(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", workitem.Errorf(workitem.ErrEmptyQueue, "queue %q has no claimable items", queue)
		}
		id, err := s.client.BLMove(ctx, claimableKey(queue), claimedKey(queue),
			"LEFT", "RIGHT", remaining).Result()
		if errors.Is(err, redis.Nil) {
			return "", workitem.Errorf(workitem.ErrEmptyQueue, "queue %q has no claimable items", queue)
		}
		if err != nil {
			return "", classify(fmt.Errorf("claim wait on %q: %w", queue, err))
		}
		finished, err := claimFinishScript.Run(ctx, s.client,
			[]string{itemKey(id), claimedKey(queue)},
			id, formatTime(time.Now())).Int()
		if err != nil {
			return "", classify(fmt.Errorf("finish claim of %s: %w", id, err))
		}
		if finished == 1 {
			return id, nil
		}
		// A sweep returned the id to the claimable list first; take the
		// next one.
	}
}

// Resolve finishes a claimed item. The script re-checks the claimed state
// so a concurrent sweep or double resolve loses cleanly.
func (s *Store) Resolve(ctx context.Context, itemID string, outcome workitem.State, failure *workitem.Failure) error {
	if !outcome.IsTerminal() {
		return workitem.Errorf(workitem.ErrInvalid, "outcome %q is not terminal", outcome)
	}
	if outcome == workitem.StateFailed {
		if err := failure.Validate(); err != nil {
			return err
		}
	} else if failure != nil {
		return workitem.Errorf(workitem.ErrInvalid, "failure detail only valid for failed outcome")
	}

	queue, err := s.client.HGet(ctx, itemKey(itemID), "queue_name").Result()
	if errors.Is(err, redis.Nil) {
		return workitem.Errorf(workitem.ErrStateConflict, "item %s is not claimed", itemID)
	}
	if err != nil {
		return classify(fmt.Errorf("resolve %s: %w", itemID, err))
	}

	var kind, code, message string
	if failure != nil {
		kind, code, message = failure.Kind, failure.Code, failure.Message
	}
	res, err := resolveScript.Run(ctx, s.client,
		[]string{itemKey(itemID), claimedKey(queue), statsKey(queue)},
		itemID, string(outcome), formatTime(time.Now()), kind, code, message).Text()
	if err != nil {
		return classify(fmt.Errorf("resolve %s: %w", itemID, err))
	}
	if res != "ok" {
		return workitem.Errorf(workitem.ErrStateConflict, "item %s is not claimed", itemID)
	}
	return nil
}

// Recover returns stale claims in queue to the claimable pool.
func (s *Store) Recover(ctx context.Context, queue string, maxClaimAge time.Duration) (int, error) {
	if maxClaimAge <= 0 {
		return 0, workitem.Errorf(workitem.ErrInvalid, "max claim age must be positive")
	}
	cutoff := formatTime(time.Now().Add(-maxClaimAge))
	count, err := recoverScript.Run(ctx, s.client,
		[]string{claimedKey(queue), claimableKey(queue)},
		itemKeyPrefix, cutoff).Int()
	if err != nil {
		return 0, classify(fmt.Errorf("recover %q: %w", queue, err))
	}
	if count > 0 {
		s.logger.Info("recovered orphaned items", "queue", queue, "count", count)
	}
	return count, nil
}

// LoadPayload returns the item's payload document.
func (s *Store) LoadPayload(ctx context.Context, itemID string) (json.RawMessage, error) {
	payload, err := s.client.HGet(ctx, itemKey(itemID), "payload").Result()
	if errors.Is(err, redis.Nil) {
		exists, existsErr := s.client.Exists(ctx, itemKey(itemID)).Result()
		if existsErr != nil {
			return nil, classify(fmt.Errorf("load payload for %s: %w", itemID, existsErr))
		}
		if exists == 0 {
			return nil, workitem.Errorf(workitem.ErrNotFound, "item %s not found", itemID)
		}
		return json.RawMessage("{}"), nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("load payload for %s: %w", itemID, err))
	}
	if payload == "" {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(payload), nil
}

// SavePayload replaces the item's payload document.
func (s *Store) SavePayload(ctx context.Context, itemID string, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return workitem.Errorf(workitem.ErrInvalid, "payload is not valid JSON")
	}
	if err := s.requireItem(ctx, itemID); err != nil {
		return err
	}
	if err := s.client.HSet(ctx, itemKey(itemID), "payload", string(payload)).Err(); err != nil {
		return classify(fmt.Errorf("save payload for %s: %w", itemID, err))
	}
	return nil
}

// Get fetches a single item record by id, regardless of queue.
func (s *Store) Get(ctx context.Context, itemID string) (*workitem.Item, error) {
	fields, err := s.client.HGetAll(ctx, itemKey(itemID)).Result()
	if err != nil {
		return nil, classify(fmt.Errorf("get item %s: %w", itemID, err))
	}
	if len(fields) == 0 {
		return nil, workitem.Errorf(workitem.ErrNotFound, "item %s not found", itemID)
	}
	return itemFromHash(itemID, fields)
}

// Stats counts the items in queue per state. Pending counts come from list
// lengths; terminal counts from the counters the resolve script maintains.
func (s *Store) Stats(ctx context.Context, queue string) (map[workitem.State]int, error) {
	pipe := s.client.Pipeline()
	claimable := pipe.LLen(ctx, claimableKey(queue))
	claimed := pipe.LLen(ctx, claimedKey(queue))
	terminal := pipe.HGetAll(ctx, statsKey(queue))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, classify(fmt.Errorf("stats for %q: %w", queue, err))
	}

	counts := make(map[workitem.State]int, len(workitem.AllStates()))
	for _, state := range workitem.AllStates() {
		counts[state] = 0
	}
	counts[workitem.StateClaimable] = int(claimable.Val())
	counts[workitem.StateClaimed] = int(claimed.Val())
	for raw, value := range terminal.Val() {
		state, ok := workitem.ParseState(raw)
		if !ok || !state.IsTerminal() {
			continue
		}
		n, err := parseCount(value)
		if err != nil {
			return nil, fmt.Errorf("stats for %q: bad counter %q: %w", queue, value, err)
		}
		counts[state] = n
	}
	return counts, nil
}

func (s *Store) requireItem(ctx context.Context, itemID string) error {
	exists, err := s.client.Exists(ctx, itemKey(itemID)).Result()
	if err != nil {
		return classify(fmt.Errorf("check item %s: %w", itemID, err))
	}
	if exists == 0 {
		return workitem.Errorf(workitem.ErrNotFound, "item %s not found", itemID)
	}
	return nil
}

func itemFromHash(id string, fields map[string]string) (*workitem.Item, error) {
	state, ok := workitem.ParseState(fields["state"])
	if !ok {
		return nil, fmt.Errorf("item %s has unknown state %q", id, fields["state"])
	}
	item := &workitem.Item{
		ID:        id,
		QueueName: fields["queue_name"],
		ParentID:  fields["parent_id"],
		State:     state,
	}
	if raw := fields["seq"]; raw != "" {
		seq, err := parseCount(raw)
		if err != nil {
			return nil, fmt.Errorf("item %s has bad seq %q: %w", id, raw, err)
		}
		item.Sequence = int64(seq)
	}
	if fields["failure_kind"] != "" || fields["failure_code"] != "" || fields["failure_message"] != "" {
		item.Failure = &workitem.Failure{
			Kind:    fields["failure_kind"],
			Code:    fields["failure_code"],
			Message: fields["failure_message"],
		}
	}
	created, err := parseTimeString(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("item %s has bad created_at: %w", id, err)
	}
	item.CreatedAt = created
	if raw := fields["claimed_at"]; raw != "" {
		t, err := parseTimeString(raw)
		if err != nil {
			return nil, fmt.Errorf("item %s has bad claimed_at: %w", id, err)
		}
		item.ClaimedAt = &t
	}
	if raw := fields["resolved_at"]; raw != "" {
		t, err := parseTimeString(raw)
		if err != nil {
			return nil, fmt.Errorf("item %s has bad resolved_at: %w", id, err)
		}
		item.ResolvedAt = &t
	}
	return item, nil
}
