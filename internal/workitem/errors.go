package workitem

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conditions callers branch on. Backends wrap these
// with context via Errorf so errors.Is matching keeps working through the
// facade.
var (
	// ErrEmptyQueue signals no claimable item existed at the time of the
	// attempt. Expected during normal draining, not a failure.
	ErrEmptyQueue = errors.New("no claimable work items")

	// ErrFileNotFound signals the attachment name is absent for the item.
	ErrFileNotFound = errors.New("attachment not found")

	// ErrStateConflict signals a resolve against an item that is not
	// currently claimed (double resolve, resolve after recovery, or an
	// unknown id).
	ErrStateConflict = errors.New("work item state conflict")

	// ErrNotFound signals an unknown work item id on a payload or
	// attachment operation.
	ErrNotFound = errors.New("work item not found")

	// ErrInvalid signals a caller error: bad outcome, missing failure
	// detail, or an unusable filename.
	ErrInvalid = errors.New("invalid argument")

	// ErrUnavailable signals a transient backend outage that is safe to
	// retry.
	ErrUnavailable = errors.New("backend temporarily unavailable")

	// ErrPoolExhausted signals the local connection pool limit was hit;
	// safe to retry after backoff.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrSchemaVersion signals the stored schema is newer than this engine
	// understands. Fatal at startup.
	ErrSchemaVersion = errors.New("schema version mismatch")
)

// Errorf wraps a sentinel with formatted context.
func Errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

// IsRetryable reports whether an error is worth retrying with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrPoolExhausted)
}
