package ratelimiter

import (
	"context"
	"sync/atomic"
	"time"
)

// Clock exposes the current wall-clock second as a single integer. Every
// algorithm in this package is keyed on integer seconds; no other time
// primitive is used on the admission path, which avoids a syscall per call
// and makes tests deterministic via injection.
type Clock interface {
	Now() int64
}

// SystemClock is a Clock backed by the real wall clock, cached and
// refreshed from a background goroutine so that Now is a single atomic
// load with no syscall.
type SystemClock struct {
	second atomic.Int64
	refresh time.Duration
}

// NewSystemClock returns a SystemClock primed with the current second. The
// caller must call Start to begin background refresh; refresh should be
// <= 1s to keep Now from drifting by more than a second from real time.
func NewSystemClock(refresh time.Duration) *SystemClock {
	if refresh <= 0 {
		refresh = 250 * time.Millisecond
	}
	c := &SystemClock{refresh: refresh}
	c.second.Store(time.Now().Unix())
	return c
}

// Now returns the cached current second.
func (c *SystemClock) Now() int64 {
	return c.second.Load()
}

// Start runs the refresh loop until ctx is done.
func (c *SystemClock) Start(ctx context.Context) {
	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.second.Store(time.Now().Unix())
		}
	}
}

// FixedClock is a Clock with a value set explicitly by tests.
type FixedClock struct {
	second atomic.Int64
}

// NewFixedClock returns a FixedClock starting at t.
func NewFixedClock(t int64) *FixedClock {
	c := &FixedClock{}
	c.second.Store(t)
	return c
}

// Now returns the current fixed second.
func (c *FixedClock) Now() int64 {
	return c.second.Load()
}

// Set advances (or rewinds) the fixed clock.
func (c *FixedClock) Set(t int64) {
	c.second.Store(t)
}

// Advance moves the fixed clock forward by delta seconds and returns the
// new value.
func (c *FixedClock) Advance(delta int64) int64 {
	return c.second.Add(delta)
}
