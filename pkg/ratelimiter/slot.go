package ratelimiter

import "sync"

// Slot is the accounting record for one second of one resource on one
// instance. All of its mutating and reading methods are mutually exclusive;
// a Slot is an internal critical section, not a set of independent fields.
type Slot struct {
	mu sync.Mutex

	instanceTime          int64
	instanceRequestCount  int64
	instanceReleasedCount int64
	limit                 float64
	exhausted             bool

	clusterTime         int64
	clusterRequestCount int64
}

// init resets the instance-local counters for a new second. limit,
// clusterTime, and clusterRequestCount are left untouched; they are set by
// the owning Limiter.
func (s *Slot) init(t int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instanceTime = t
	s.instanceRequestCount = 0
	s.instanceReleasedCount = 0
	s.exhausted = false
}

// setLimit assigns the effective per-second cap for this slot. Called once
// per slot roll by the Limiter.
func (s *Slot) setLimit(limit float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = limit
}

// tryAcquireToken is the admission decision for a single request against
// this slot.
//
// instanceRequestCount is incremented unconditionally, even for denied
// requests: refresh's weight calculation reflects demand, not grants, so a
// request that arrives but is denied still counts toward this instance's
// observed traffic share.
func (s *Slot) tryAcquireToken(rng RandSource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instanceRequestCount++

	if s.exhausted {
		return false
	}
	if float64(s.instanceReleasedCount) > s.limit {
		// Paranoia: should not happen under a correct driver.
		return false
	}
	if float64(s.instanceReleasedCount+1) <= s.limit {
		s.instanceReleasedCount++
		return true
	}

	// Fractional boundary: at most one more grant, decided probabilistically
	// so the long-run expected grants equal s.limit exactly.
	s.exhausted = true
	delta := s.limit - float64(s.instanceReleasedCount)
	if delta > 0 && rng.Float64() < delta {
		s.instanceReleasedCount++
		return true
	}
	return false
}

// isInstanceExpired reports whether this slot's instance-local data is too
// stale to be considered current (or was never initialized).
func (s *Slot) isInstanceExpired(now int64, windowSize int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instanceTime == 0 || now-s.instanceTime >= int64(windowSize)
}

// isClusterExpired reports whether this slot's cluster-derived data is too
// stale to be trusted (or was never refreshed).
func (s *Slot) isClusterExpired(now int64, windowSize int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clusterTime == 0 || now-s.clusterTime >= int64(windowSize)
}

// setClusterRequestCount records the cluster-wide request count for this
// slot's second (the sum of every instance's published
// instanceRequestCount), as read from the store. Driven exclusively by the Syncer.
func (s *Slot) setClusterRequestCount(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusterRequestCount = v
}

// setClusterTime records the second for which clusterRequestCount was last
// refreshed. Driven exclusively by the Syncer.
func (s *Slot) setClusterTime(t int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusterTime = t
}

// getRemain returns the unspent budget carried out of this slot: zero once
// exhausted, otherwise the gap between limit and what has been released.
func (s *Slot) getRemain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exhausted {
		return 0
	}
	return s.limit - float64(s.instanceReleasedCount)
}

// snapshot captures every field under one lock acquisition, for the Syncer
// and for diagnostics (Limiter.Snapshot). It never blocks the admission path
// for longer than a field copy.
type slotSnapshot struct {
	instanceTime          int64
	instanceRequestCount  int64
	instanceReleasedCount int64
	limit                 float64
	exhausted             bool
	clusterTime           int64
	clusterRequestCount   int64
}

func (s *Slot) snapshot() slotSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slotSnapshot{
		instanceTime:          s.instanceTime,
		instanceRequestCount:  s.instanceRequestCount,
		instanceReleasedCount: s.instanceReleasedCount,
		limit:                 s.limit,
		exhausted:             s.exhausted,
		clusterTime:           s.clusterTime,
		clusterRequestCount:   s.clusterRequestCount,
	}
}
