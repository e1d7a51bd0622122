package types

import "errors"

// Error taxonomy. Packages wrap these with the underlying cause, e.g.
//
//	fmt.Errorf("%w: read %s: %w", types.ErrIO, path, err)
//
// so callers can match both the category and the cause with errors.Is.
var (
	// ErrIO covers open, read, write and traversal failures.
	ErrIO = errors.New("i/o error")

	// ErrStore covers baseline open, get, put and flush failures.
	ErrStore = errors.New("baseline store error")

	// ErrFlush is returned when pending baseline writes cannot be made
	// durable. It always also matches ErrStore.
	ErrFlush = flushError{}

	// ErrSerialization means a stored record is unreadable or has an
	// incompatible layout.
	ErrSerialization = errors.New("baseline record unreadable")

	// ErrSizeLimit means the target file exceeds the configured ceiling.
	ErrSizeLimit = errors.New("file exceeds size limit")

	// ErrNoBaseline means a fix was requested for an untracked path.
	ErrNoBaseline = errors.New("no baseline for path")

	// ErrRecoveryExhausted means no single bit flip explains the mismatch.
	ErrRecoveryExhausted = errors.New("no single-bit flip reproduces the baseline digest")
)

type flushError struct{}

func (flushError) Error() string { return "baseline flush failed" }

// Is reports flush failures as store errors as well.
func (flushError) Is(target error) bool { return target == ErrStore }
