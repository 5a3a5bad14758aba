package pool

import "errors"

var (
	// ErrClosed is returned by Acquire once the pool has been Closed.
	ErrClosed = errors.New("pool: closed")

	// ErrUnknownSource is returned when a caller names a source the
	// pool was not configured with.
	ErrUnknownSource = errors.New("pool: unknown source")

	// ErrNoSources is returned by New when given zero sources.
	ErrNoSources = errors.New("pool: at least one source is required")
)
