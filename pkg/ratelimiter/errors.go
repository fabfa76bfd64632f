package ratelimiter

import "errors"

// Configuration errors, raised at construction time rather than swallowed
// like the transient store errors the Syncer logs and moves past.
var (
	// ErrInvalidWindowSize is returned when a configured window size is
	// below the minimum of 3 (two boundary offsets plus at least one live
	// slot).
	ErrInvalidWindowSize = errors.New("ratelimiter: window size must be >= 3")

	// ErrNilStore is returned when a Syncer is constructed without a Store.
	ErrNilStore = errors.New("ratelimiter: store must not be nil")
)
