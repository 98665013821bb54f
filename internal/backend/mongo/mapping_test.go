package mongo

import (
	"errors"
	"testing"
	"time"

	"spool/internal/workitem"
)

func TestItemDocMapping(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	claimed := created.Add(time.Minute)

	doc := itemDoc{
		ID:        "id-1",
		QueueName: "media",
		ParentID:  "parent-1",
		Payload:   `{"n":1}`,
		State:     "CLAIMED",
		Seq:       7,
		CreatedAt: created,
		ClaimedAt: &claimed,
	}
	item, err := doc.toItem()
	if err != nil {
		t.Fatalf("toItem: %v", err)
	}
	if item.State != workitem.StateClaimed || item.Sequence != 7 || item.ParentID != "parent-1" {
		t.Fatalf("unexpected item: %#v", item)
	}
	if item.ClaimedAt == nil || !item.ClaimedAt.Equal(claimed) {
		t.Fatalf("unexpected claimed_at: %v", item.ClaimedAt)
	}

	doc.State = "FAILED"
	doc.Failure = &failureDoc{Kind: "permanent", Code: "E_CORRUPT", Message: "bad input"}
	item, err = doc.toItem()
	if err != nil {
		t.Fatalf("toItem with failure: %v", err)
	}
	if item.Failure == nil || item.Failure.Code != "E_CORRUPT" {
		t.Fatalf("expected failure detail, got %#v", item.Failure)
	}

	doc.State = "DANCING"
	if _, err := doc.toItem(); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"nil passes", nil, nil},
		{"pool wait", errors.New("timed out while checking out a connection from connection pool"), workitem.ErrPoolExhausted},
		{"server selection", errors.New("server selection error: context deadline exceeded"), workitem.ErrUnavailable},
		{"refused", errors.New("dial tcp 127.0.0.1:27017: connect: connection refused"), workitem.ErrUnavailable},
	}
	for _, tc := range cases {
		got := classify(tc.err)
		if tc.want == nil {
			if got != nil {
				t.Errorf("%s: expected nil, got %v", tc.name, got)
			}
			continue
		}
		if !errors.Is(got, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
