package redis

import (
	"errors"
	"net"
	"testing"
	"time"

	"spool/internal/workitem"
)

func TestKeyLayout(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"claimable", claimableKey("media"), "spool:q:media:claimable"},
		{"claimed", claimedKey("media"), "spool:q:media:claimed"},
		{"seq", seqKey("media"), "spool:q:media:seq"},
		{"stats", statsKey("media"), "spool:q:media:stats"},
		{"item", itemKey("abc-123"), "spool:item:abc-123"},
		{"files", filesKey("abc-123"), "spool:files:abc-123"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s key: expected %q, got %q", tc.name, tc.want, tc.got)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"nil passes", nil, nil},
		{"pool timeout", errors.New("redis: connection pool timeout"), workitem.ErrPoolExhausted},
		{"refused", errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"), workitem.ErrUnavailable},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("timeout")}, workitem.ErrUnavailable},
		{"loading", errors.New("LOADING Redis is loading the dataset in memory"), workitem.ErrUnavailable},
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

func TestClassifyLeavesDomainErrors(t *testing.T) {
	err := workitem.Errorf(workitem.ErrStateConflict, "item x is not claimed")
	if got := classify(err); !errors.Is(got, workitem.ErrStateConflict) {
		t.Fatalf("expected state conflict preserved, got %v", got)
	}
}

func TestItemFromHash(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	claimed := created.Add(time.Minute)

	fields := map[string]string{
		"queue_name": "media",
		"parent_id":  "parent-1",
		"payload":    `{"n":1}`,
		"state":      "CLAIMED",
		"seq":        "7",
		"created_at": formatTime(created),
		"claimed_at": formatTime(claimed),
	}
	item, err := itemFromHash("id-1", fields)
	if err != nil {
		t.Fatalf("itemFromHash: %v", err)
	}
	if item.State != workitem.StateClaimed || item.Sequence != 7 || item.ParentID != "parent-1" {
		t.Fatalf("unexpected item: %#v", item)
	}
	if item.ClaimedAt == nil || !item.ClaimedAt.Equal(claimed) {
		t.Fatalf("unexpected claimed_at: %v", item.ClaimedAt)
	}
	if item.Failure != nil {
		t.Fatalf("unexpected failure detail: %#v", item.Failure)
	}

	fields["state"] = "FAILED"
	fields["failure_kind"] = "permanent"
	fields["failure_code"] = "E_CORRUPT"
	fields["failure_message"] = "bad input"
	item, err = itemFromHash("id-1", fields)
	if err != nil {
		t.Fatalf("itemFromHash with failure: %v", err)
	}
	if item.Failure == nil || item.Failure.Code != "E_CORRUPT" {
		t.Fatalf("expected failure detail, got %#v", item.Failure)
	}

	fields["state"] = "DANCING"
	if _, err := itemFromHash("id-1", fields); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestTimestampsCompareAsStrings(t *testing.T) {
	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		older := formatTime(base.Add(time.Duration(i) * time.Millisecond))
		newer := formatTime(base.Add(time.Duration(i+1) * 250 * time.Millisecond))
		if !(older < newer) {
			t.Fatalf("expected %q < %q", older, newer)
		}
	}
	// Whole-second values must still order against sub-second ones.
	whole := formatTime(base.Truncate(time.Second))
	frac := formatTime(base.Truncate(time.Second).Add(500 * time.Millisecond))
	if !(whole < frac) {
		t.Fatalf("expected %q < %q", whole, frac)
	}
}
