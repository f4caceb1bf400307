package errors

import "errors"

var (
	// ErrCorruptArchive marks an uploaded bundle that cannot be opened or
	// whose structure is invalid. The whole batch aborts; nothing is published.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrThrottled is a quota/throttling signal from an external service.
	// Callers retry with backoff up to their attempt ceiling.
	ErrThrottled = errors.New("throttled")
	// ErrRejected is a terminal input rejection (malformed image, unsupported
	// format). Never retried.
	ErrRejected = errors.New("input rejected")
	// ErrNotAttempted is synthesized for items that were never dispatched
	// because the execution deadline expired first.
	ErrNotAttempted = errors.New("not attempted")
	// ErrNotFound is a generic sentinel for missing store objects.
	ErrNotFound = errors.New("not found")
)

// Retryable reports whether err carries the throttling signal.
func Retryable(err error) bool {
	return errors.Is(err, ErrThrottled)
}
