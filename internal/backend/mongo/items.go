package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"spool/internal/workitem"
)

type failureDoc struct {
	Kind    string `bson:"kind"`
	Code    string `bson:"code"`
	Message string `bson:"message"`
}

type itemDoc struct {
	ID         string      `bson:"_id"`
	QueueName  string      `bson:"queue_name"`
	ParentID   string      `bson:"parent_id,omitempty"`
	Payload    string      `bson:"payload"`
	State      string      `bson:"state"`
	Seq        int64       `bson:"seq"`
	Failure    *failureDoc `bson:"failure,omitempty"`
	CreatedAt  time.Time   `bson:"created_at"`
	ClaimedAt  *time.Time  `bson:"claimed_at,omitempty"`
	ResolvedAt *time.Time  `bson:"resolved_at,omitempty"`
}

func (d *itemDoc) toItem() (*workitem.Item, error) {
	state, ok := workitem.ParseState(d.State)
	if !ok {
		return nil, fmt.Errorf("item %s has unknown state %q", d.ID, d.State)
	}
	item := &workitem.Item{
		ID:         d.ID,
		QueueName:  d.QueueName,
		ParentID:   d.ParentID,
		State:      state,
		Sequence:   d.Seq,
		CreatedAt:  d.CreatedAt,
		ClaimedAt:  d.ClaimedAt,
		ResolvedAt: d.ResolvedAt,
	}
	if d.Failure != nil {
		item.Failure = &workitem.Failure{
			Kind:    d.Failure.Kind,
			Code:    d.Failure.Code,
			Message: d.Failure.Message,
		}
	}
	return item, nil
}

// nextSequence advances the per-queue counter with an atomic upsert.
func (s *Store) nextSequence(ctx context.Context, queue string) (int64, error) {
	var counter struct {
		NextSeq int64 `bson:"next_seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": queue},
		bson.M{"$inc": bson.M{"next_seq": int64(1)}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, classify(fmt.Errorf("advance queue sequence: %w", err))
	}
	return counter.NextSeq, nil
}

// Enqueue creates a new claimable item at the tail of the queue.
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

	seq, err := s.nextSequence(ctx, queue)
	if err != nil {
		return "", err
	}

	doc := itemDoc{
		ID:        uuid.NewString(),
		QueueName: queue,
		ParentID:  parentID,
		Payload:   string(payload),
		State:     string(workitem.StateClaimable),
		Seq:       seq,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.items.InsertOne(ctx, doc); err != nil {
		return "", classify(fmt.Errorf("insert work item: %w", err))
	}
	return doc.ID, nil
}

// Claim transitions the oldest claimable item to claimed. Selection and
// transition are one FindOneAndUpdate whose filter re-checks the state, so
// racing workers resolve to exactly one winner.
func (s *Store) Claim(ctx context.Context, queue string) (string, error) {
	now := time.Now().UTC()
	var doc struct {
		ID string `bson:"_id"`
	}
	err := s.items.FindOneAndUpdate(ctx,
		bson.M{"queue_name": queue, "state": string(workitem.StateClaimable)},
		bson.M{"$set": bson.M{"state": string(workitem.StateClaimed), "claimed_at": now}},
		options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "seq", Value: 1}}).
			SetProjection(bson.M{"_id": 1}).
			SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", workitem.Errorf(workitem.ErrEmptyQueue, "queue %q has no claimable items", queue)
	}
	if err != nil {
		return "", classify(fmt.Errorf("claim from %q: %w", queue, err))
	}
	return doc.ID, nil
}

// Resolve finishes a claimed item. The filter re-checks the claimed state
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

	set := bson.M{
		"state":       string(outcome),
		"resolved_at": time.Now().UTC(),
	}
	if failure != nil {
		set["failure"] = failureDoc{Kind: failure.Kind, Code: failure.Code, Message: failure.Message}
	}
	res, err := s.items.UpdateOne(ctx,
		bson.M{"_id": itemID, "state": string(workitem.StateClaimed)},
		bson.M{"$set": set})
	if err != nil {
		return classify(fmt.Errorf("resolve %s: %w", itemID, err))
	}
	if res.MatchedCount == 0 {
		return workitem.Errorf(workitem.ErrStateConflict, "item %s is not claimed", itemID)
	}
	return nil
}

// Recover returns items claimed longer ago than maxClaimAge to the
// claimable pool. The cutoff lives in the filter, so an item resolved
// between sweep start and document update is untouched.
func (s *Store) Recover(ctx context.Context, queue string, maxClaimAge time.Duration) (int, error) {
	if maxClaimAge <= 0 {
		return 0, workitem.Errorf(workitem.ErrInvalid, "max claim age must be positive")
	}
	cutoff := time.Now().UTC().Add(-maxClaimAge)
	res, err := s.items.UpdateMany(ctx,
		bson.M{
			"queue_name": queue,
			"state":      string(workitem.StateClaimed),
			"claimed_at": bson.M{"$lt": cutoff},
		},
		bson.M{
			"$set":   bson.M{"state": string(workitem.StateClaimable)},
			"$unset": bson.M{"claimed_at": ""},
		})
	if err != nil {
		return 0, classify(fmt.Errorf("recover %q: %w", queue, err))
	}
	if res.ModifiedCount > 0 {
		s.logger.Info("recovered orphaned items", "queue", queue, "count", res.ModifiedCount)
	}
	return int(res.ModifiedCount), nil
}

// LoadPayload returns the item's payload document.
func (s *Store) LoadPayload(ctx context.Context, itemID string) (json.RawMessage, error) {
	var doc struct {
		Payload string `bson:"payload"`
	}
	err := s.items.FindOne(ctx,
		bson.M{"_id": itemID},
		options.FindOne().SetProjection(bson.M{"payload": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, workitem.Errorf(workitem.ErrNotFound, "item %s not found", itemID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("load payload for %s: %w", itemID, err))
	}
	if doc.Payload == "" {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(doc.Payload), nil
}

// SavePayload replaces the item's payload document.
func (s *Store) SavePayload(ctx context.Context, itemID string, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return workitem.Errorf(workitem.ErrInvalid, "payload is not valid JSON")
	}
	res, err := s.items.UpdateOne(ctx,
		bson.M{"_id": itemID},
		bson.M{"$set": bson.M{"payload": string(payload)}})
	if err != nil {
		return classify(fmt.Errorf("save payload for %s: %w", itemID, err))
	}
	if res.MatchedCount == 0 {
		return workitem.Errorf(workitem.ErrNotFound, "item %s not found", itemID)
	}
	return nil
}

// Get fetches a single item record by id, regardless of queue.
func (s *Store) Get(ctx context.Context, itemID string) (*workitem.Item, error) {
	var doc itemDoc
	err := s.items.FindOne(ctx, bson.M{"_id": itemID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, workitem.Errorf(workitem.ErrNotFound, "item %s not found", itemID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get item %s: %w", itemID, err))
	}
	return doc.toItem()
}

// Stats counts the items in queue per state using a single aggregation.
func (s *Store) Stats(ctx context.Context, queue string) (map[workitem.State]int, error) {
	cursor, err := s.items.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"queue_name": queue}}},
		{{Key: "$group", Value: bson.M{"_id": "$state", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, classify(fmt.Errorf("stats for %q: %w", queue, err))
	}
	defer cursor.Close(ctx)

	counts := make(map[workitem.State]int, len(workitem.AllStates()))
	for _, state := range workitem.AllStates() {
		counts[state] = 0
	}
	for cursor.Next(ctx) {
		var row struct {
			State string `bson:"_id"`
			Count int    `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("stats for %q: %w", queue, err)
		}
		if state, ok := workitem.ParseState(row.State); ok {
			counts[state] = row.Count
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, classify(fmt.Errorf("stats for %q: %w", queue, err))
	}
	return counts, nil
}

func (s *Store) requireItem(ctx context.Context, itemID string) error {
	count, err := s.items.CountDocuments(ctx, bson.M{"_id": itemID}, options.Count().SetLimit(1))
	if err != nil {
		return classify(fmt.Errorf("check item %s: %w", itemID, err))
	}
	if count == 0 {
		return workitem.Errorf(workitem.ErrNotFound, "item %s not found", itemID)
	}
	return nil
}
