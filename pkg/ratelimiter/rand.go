package ratelimiter

import (
	"math/rand"
	"sync"
)

// RandSource is the injectable randomness used by Slot's fractional-boundary
// admission decision. Tests substitute a deterministic or scripted source to
// make the probabilistic grant reproducible.
type RandSource interface {
	Float64() float64
}

// lockedRand wraps a *rand.Rand with a mutex; math/rand.Rand is not safe for
// concurrent use and one Limiter's Slots are accessed from many goroutines.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandSource returns a concurrency-safe RandSource seeded from seed.
func NewRandSource(seed int64) RandSource {
	return &lockedRand{rnd: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Float64()
}

// ScriptedRand replays a fixed sequence of values, cycling once exhausted.
// Used by tests that need the fractional-boundary decision to go a
// particular way.
type ScriptedRand struct {
	mu     sync.Mutex
	values []float64
	i      int
}

// NewScriptedRand returns a RandSource that yields values in order, wrapping
// around when exhausted.
func NewScriptedRand(values ...float64) *ScriptedRand {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &ScriptedRand{values: values}
}

func (s *ScriptedRand) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.i%len(s.values)]
	s.i++
	return v
}
