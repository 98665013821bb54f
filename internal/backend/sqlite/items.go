package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spool/internal/workitem"
)

const itemColumns = `id, queue_name, parent_id, payload, state, seq,
	failure_kind, failure_code, failure_message,
	created_at, claimed_at, resolved_at`

// Enqueue inserts a new claimable item at the tail of the queue's FIFO
// order. The per-queue sequence and the item row commit in one
// transaction so sequence numbers are dense and never reused.
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

	id := uuid.NewString()
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin enqueue tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		var seq int64
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO queue_sequences (queue_name, next_seq) VALUES (?, 1)
			 ON CONFLICT(queue_name) DO UPDATE SET next_seq = next_seq + 1
			 RETURNING next_seq`, queue).Scan(&seq); err != nil {
			return fmt.Errorf("advance queue sequence: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO work_items (id, queue_name, parent_id, payload, state, seq, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, queue, nullableString(parentID), string(payload),
			string(workitem.StateClaimable), seq, formatTime(time.Now())); err != nil {
			return fmt.Errorf("insert work item: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Claim transitions the oldest claimable item to claimed. Selection and
// transition are one statement; the outer state re-check makes the race
// between two workers resolve to exactly one winner.
func (s *Store) Claim(ctx context.Context, queue string) (string, error) {
	var id string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`UPDATE work_items SET state = ?, claimed_at = ?
			 WHERE id = (
				SELECT id FROM work_items
				WHERE queue_name = ? AND state = ?
				ORDER BY seq ASC LIMIT 1
			 ) AND state = ?
			 RETURNING id`,
			string(workitem.StateClaimed), formatTime(time.Now()),
			queue, string(workitem.StateClaimable), string(workitem.StateClaimable)).Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", workitem.Errorf(workitem.ErrEmptyQueue, "queue %q has no claimable items", queue)
	}
	if err != nil {
		return "", fmt.Errorf("claim from %q: %w", queue, err)
	}
	return id, nil
}

// Resolve finishes a claimed item. The WHERE clause re-checks the claimed
// state so a concurrent recovery sweep or double resolve loses cleanly.
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

	var kind, code, message any
	if failure != nil {
		kind, code, message = failure.Kind, failure.Code, failure.Message
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE work_items
		 SET state = ?, resolved_at = ?, failure_kind = ?, failure_code = ?, failure_message = ?
		 WHERE id = ? AND state = ?`,
		string(outcome), formatTime(time.Now()), kind, code, message,
		itemID, string(workitem.StateClaimed))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", itemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve %s: %w", itemID, err)
	}
	if affected == 0 {
		return workitem.Errorf(workitem.ErrStateConflict, "item %s is not claimed", itemID)
	}
	return nil
}

// Recover returns items claimed longer ago than maxClaimAge to the
// claimable pool. The cutoff and state filter live in the UPDATE itself,
// so an item resolved between sweep start and row update is untouched.
func (s *Store) Recover(ctx context.Context, queue string, maxClaimAge time.Duration) (int, error) {
	if maxClaimAge <= 0 {
		return 0, workitem.Errorf(workitem.ErrInvalid, "max claim age must be positive")
	}
	cutoff := formatTime(time.Now().Add(-maxClaimAge))
	res, err := s.execWithRetry(ctx,
		`UPDATE work_items SET state = ?, claimed_at = NULL
		 WHERE queue_name = ? AND state = ? AND claimed_at IS NOT NULL AND claimed_at < ?`,
		string(workitem.StateClaimable), queue, string(workitem.StateClaimed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("recover %q: %w", queue, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover %q: %w", queue, err)
	}
	if affected > 0 {
		s.logger.Info("recovered orphaned items", "queue", queue, "count", affected)
	}
	return int(affected), nil
}

// LoadPayload returns the item's payload document. A row with no saved
// payload yields an empty document rather than an error.
func (s *Store) LoadPayload(ctx context.Context, itemID string) (json.RawMessage, error) {
	var payload sql.NullString
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT payload FROM work_items WHERE id = ?", itemID).Scan(&payload)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workitem.Errorf(workitem.ErrNotFound, "item %s not found", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("load payload for %s: %w", itemID, err)
	}
	if !payload.Valid || payload.String == "" {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(payload.String), nil
}

// SavePayload replaces the item's payload document.
func (s *Store) SavePayload(ctx context.Context, itemID string, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return workitem.Errorf(workitem.ErrInvalid, "payload is not valid JSON")
	}
	res, err := s.execWithRetry(ctx,
		"UPDATE work_items SET payload = ? WHERE id = ?", string(payload), itemID)
	if err != nil {
		return fmt.Errorf("save payload for %s: %w", itemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save payload for %s: %w", itemID, err)
	}
	if affected == 0 {
		return workitem.Errorf(workitem.ErrNotFound, "item %s not found", itemID)
	}
	return nil
}

// Get fetches a single item record by id, regardless of queue.
func (s *Store) Get(ctx context.Context, itemID string) (*workitem.Item, error) {
	var item *workitem.Item
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			"SELECT "+itemColumns+" FROM work_items WHERE id = ?", itemID)
		var scanErr error
		item, scanErr = scanItem(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workitem.Errorf(workitem.ErrNotFound, "item %s not found", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	return item, nil
}

// Stats counts the items in queue per state. States with no items are
// present with a zero count so callers always see the full breakdown.
func (s *Store) Stats(ctx context.Context, queue string) (map[workitem.State]int, error) {
	counts := make(map[workitem.State]int, len(workitem.AllStates()))
	for _, state := range workitem.AllStates() {
		counts[state] = 0
	}
	err := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT state, COUNT(*) FROM work_items WHERE queue_name = ? GROUP BY state", queue)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				raw   string
				count int
			)
			if err := rows.Scan(&raw, &count); err != nil {
				return err
			}
			if state, ok := workitem.ParseState(raw); ok {
				counts[state] = count
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("stats for %q: %w", queue, err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*workitem.Item, error) {
	var (
		item       workitem.Item
		parentID   sql.NullString
		payload    sql.NullString
		rawState   string
		kind       sql.NullString
		code       sql.NullString
		message    sql.NullString
		createdAt  string
		claimedAt  sql.NullString
		resolvedAt sql.NullString
	)
	if err := row.Scan(&item.ID, &item.QueueName, &parentID, &payload, &rawState, &item.Sequence,
		&kind, &code, &message, &createdAt, &claimedAt, &resolvedAt); err != nil {
		return nil, err
	}

	item.ParentID = parentID.String
	state, ok := workitem.ParseState(rawState)
	if !ok {
		return nil, fmt.Errorf("item %s has unknown state %q", item.ID, rawState)
	}
	item.State = state

	if kind.Valid || code.Valid || message.Valid {
		item.Failure = &workitem.Failure{
			Kind:    kind.String,
			Code:    code.String,
			Message: message.String,
		}
	}

	created, err := parseTimeString(createdAt)
	if err != nil {
		return nil, fmt.Errorf("item %s has bad created_at: %w", item.ID, err)
	}
	item.CreatedAt = created

	if claimedAt.Valid && claimedAt.String != "" {
		t, err := parseTimeString(claimedAt.String)
		if err != nil {
			return nil, fmt.Errorf("item %s has bad claimed_at: %w", item.ID, err)
		}
		item.ClaimedAt = &t
	}
	if resolvedAt.Valid && resolvedAt.String != "" {
		t, err := parseTimeString(resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("item %s has bad resolved_at: %w", item.ID, err)
		}
		item.ResolvedAt = &t
	}
	return &item, nil
}
