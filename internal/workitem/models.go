package workitem

import (
	"strings"
	"time"
)

// State represents the lifecycle of a work item.
type State string

const (
	StateClaimable State = "CLAIMABLE"
	StateClaimed   State = "CLAIMED"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

var allStates = []State{
	StateClaimable,
	StateClaimed,
	StateCompleted,
	StateFailed,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a state admits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Failure records why an item ended in the Failed state.
type Failure struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validate reports whether the failure carries all required detail.
func (f *Failure) Validate() error {
	if f == nil {
		return Errorf(ErrInvalid, "failure detail required")
	}
	if strings.TrimSpace(f.Kind) == "" || strings.TrimSpace(f.Code) == "" || strings.TrimSpace(f.Message) == "" {
		return Errorf(ErrInvalid, "failure requires kind, code, and message")
	}
	return nil
}

// Item is a single unit of producer-consumer work.
type Item struct {
	ID         string
	QueueName  string
	ParentID   string
	State      State
	Sequence   int64
	Failure    *Failure
	CreatedAt  time.Time
	ClaimedAt  *time.Time
	ResolvedAt *time.Time
}

// OutputQueueName derives the queue an item's outputs are enqueued to.
// The suffix keeps freshly produced items out of the producing stage's own
// claimable pool.
func OutputQueueName(queue string) string {
	return queue + "_output"
}

// ValidateFilename rejects attachment names that cannot be addressed on
// every backend tier.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return Errorf(ErrInvalid, "filename required")
	}
	if strings.ContainsAny(name, `/\`) {
		return Errorf(ErrInvalid, "filename %q contains path separators", name)
	}
	if len(name) > MaxFilenameLength {
		return Errorf(ErrInvalid, "filename exceeds %d bytes", MaxFilenameLength)
	}
	return nil
}

const (
	// MaxFilenameLength bounds attachment names for filesystem tiers.
	MaxFilenameLength = 255

	// MaxAttachmentSize caps a single attachment at 100 MiB.
	MaxAttachmentSize = 100 << 20

	// DefaultInlineThreshold is the tier boundary: attachments at or above
	// this size go to external storage.
	DefaultInlineThreshold = 1 << 20
)
