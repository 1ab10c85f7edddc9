package syncer

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleGeneration marks a hydration whose results were discarded
	// because the session changed translation or user while the fetch
	// was in flight.
	ErrStaleGeneration = errors.New("hydration superseded by a newer session state")

	// ErrUnknownBook marks a hydration request for a book id missing
	// from the catalog.
	ErrUnknownBook = errors.New("unknown book")
)

// SyncErrorCode categorizes coordinator failures.
type SyncErrorCode string

const (
	// ErrCodeHydration indicates a window fetch failed. Prior state is
	// kept; the next hydration attempt retries.
	ErrCodeHydration SyncErrorCode = "HYDRATION_FAILURE"

	// ErrCodeWriteThrough indicates a backend create/update/delete
	// failed. Local optimistic state is not rolled back; a later
	// hydration reconciles.
	ErrCodeWriteThrough SyncErrorCode = "WRITE_THROUGH_FAILURE"

	// ErrCodePendingID indicates an edit targeted a row whose id is a
	// provisional placeholder and the drain that would confirm it
	// failed. The edit stays queued against the placeholder.
	ErrCodePendingID SyncErrorCode = "PENDING_ID_CONFLICT"
)

// SyncError wraps a coordinator failure with its category and the verse
// it concerned. None of these are fatal: callers log and continue, and
// the next sync opportunity retries.
type SyncError struct {
	Code  SyncErrorCode
	Verse string
	Err   error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Verse != "" {
		return fmt.Sprintf("%s: %s (verse=%s)", e.Code, e.Err, e.Verse)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsHydrationError reports whether err is a window-fetch failure.
func IsHydrationError(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Code == ErrCodeHydration
}

// IsWriteThroughError reports whether err is a backend write failure.
func IsWriteThroughError(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Code == ErrCodeWriteThrough
}
