package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// maxRemainMultiple bounds how many multiples of the weighted QPS a slot's
// carry-over remainder may hold after a weight refresh, preventing an idle
// instance from accumulating unbounded credit.
const maxRemainMultiple = 8.0

// storeKeyPrefix namespaces every coordination-store key this package
// writes.
const storeKeyPrefix = "rate-limiter:request:"

// storeKeyTTL is the TTL applied to every coordination-store key.
const storeKeyTTL = 3600 * time.Second

// storeKey returns the literal coordination-store key for resource r at
// second t.
func storeKey(r string, t int64) string {
	return storeKeyPrefix + r + ":" + strconv.FormatInt(t, 10)
}

// Limiter is the per-resource-key owner of one window of Slots, the
// instance's current weight, and its carry-over remainder. A Limiter's
// identity is stable for the life of the process unless the configured
// window size changes, in which case LimiterRegistry discards it and
// installs a fresh one.
type Limiter struct {
	resourceKey string
	windowSize  int
	window      []*Slot

	lastAcquireSecond atomic.Int64
	refreshedFlag     atomic.Bool

	weightBits atomic.Uint64
	remainBits atomic.Uint64

	clock   Clock
	rng     RandSource
	metrics MetricsRecorder
	logger  zerolog.Logger

	logEnabled bool
}

// newLimiter constructs a Limiter with weight=1, remain=0, and a fresh ring
// of windowSize Slots.
func newLimiter(resourceKey string, windowSize int, clock Clock, rng RandSource, metrics MetricsRecorder, logger zerolog.Logger, logEnabled bool) *Limiter {
	l := &Limiter{
		resourceKey: resourceKey,
		windowSize:  windowSize,
		window:      make([]*Slot, windowSize),
		clock:       clock,
		rng:         rng,
		metrics:     metrics,
		logger:      logger,
		logEnabled:  logEnabled,
	}
	for i := range l.window {
		l.window[i] = &Slot{}
	}
	l.weightBits.Store(math.Float64bits(1.0))
	// No second has been observed yet; a zero value would make a first call
	// at second 0 look like a repeat and skip the slot roll.
	l.lastAcquireSecond.Store(math.MinInt64)
	return l
}

func (l *Limiter) loadWeight() float64 { return math.Float64frombits(l.weightBits.Load()) }
func (l *Limiter) storeWeight(w float64) { l.weightBits.Store(math.Float64bits(w)) }
func (l *Limiter) loadRemain() float64 { return math.Float64frombits(l.remainBits.Load()) }
func (l *Limiter) storeRemain(r float64) { l.remainBits.Store(math.Float64bits(r)) }

// slotAt returns the ring slot for second t.
func (l *Limiter) slotAt(t int64) *Slot {
	idx := t % int64(l.windowSize)
	if idx < 0 {
		idx += int64(l.windowSize)
	}
	return l.window[idx]
}

// getOrUpdateSlot rolls the active slot at most once per second: the first
// caller of a new second (elected via an atomic swap on lastAcquireSecond)
// initializes the slot, consumes a pending weight-refresh clamp, and sets
// the slot's effective limit from the current qps/weight/remain.
func (l *Limiter) getOrUpdateSlot(qps float64) *Slot {
	t := l.clock.Now()
	s := l.slotAt(t)

	if prev := l.lastAcquireSecond.Swap(t); prev == t {
		return s
	}

	s.init(t)

	if l.refreshedFlag.CompareAndSwap(true, false) {
		maxRemain := qps * l.loadWeight() * maxRemainMultiple
		if l.loadRemain() > maxRemain {
			l.storeRemain(maxRemain)
		}
	}

	limit := qps*l.loadWeight() + l.loadRemain()
	s.setLimit(limit)

	if l.logEnabled {
		l.logger.Debug().
			Str("resource", l.resourceKey).
			Int64("second", t).
			Float64("limit", limit).
			Float64("weight", l.loadWeight()).
			Float64("remain", l.loadRemain()).
			Msg("rate limiter slot rolled")
	}

	return s
}

// TryAcquire is the admission decision for one request against qps, the
// current operator-configured cluster-wide target for this resource.
func (l *Limiter) TryAcquire(qps float64) bool {
	s := l.getOrUpdateSlot(qps)
	ok := s.tryAcquireToken(l.rng)
	l.storeRemain(s.getRemain())

	l.metrics.Add("rate_limiter.admission", 1, map[string]string{
		"service_name": l.resourceKey,
		"limited":      strconv.FormatBool(!ok),
	})

	return ok
}

// postProcessor runs after a Syncer tick's pipeline has been flushed.
type postProcessor func()

// sync stages this Limiter's upload and download operations onto pipe and
// returns a closure to run once pipe has been executed.
//
// The upload phase publishes the slot quiescent two seconds ago (tU = now-2):
// late local writers for that second are guaranteed done by the time it is
// uploaded, which sidesteps read-modify-write races between instances. The
// download phase reads the slot from five seconds ago (tD = now-5), giving
// every other instance's own 2s-delayed upload time to land plus
// propagation headroom before this instance reuses that ring position.
func (l *Limiter) sync(ctx context.Context, now int64, pipe Pipeliner) postProcessor {
	tU := now - 2
	sU := l.slotAt(tU)
	if !sU.isInstanceExpired(tU, l.windowSize) {
		snap := sU.snapshot()
		key := storeKey(l.resourceKey, tU)
		pipe.IncrBy(ctx, key, snap.instanceRequestCount)
		pipe.Expire(ctx, key, storeKeyTTL)
	}

	tD := now - 5
	sD := l.slotAt(tD)
	getRes := pipe.Get(ctx, storeKey(l.resourceKey, tD))

	return func() {
		val, err := getRes.Result()
		if err != nil && !errors.Is(err, ErrNotFound) {
			l.logger.Warn().
				Err(err).
				Str("resource", l.resourceKey).
				Int64("second", tD).
				Msg("rate limiter cluster count fetch failed; slot keeps prior cluster data")
			return
		}

		var count int64
		if err == nil {
			count, err = strconv.ParseInt(val, 10, 64)
			if err != nil {
				l.logger.Warn().
					Err(err).
					Str("resource", l.resourceKey).
					Str("value", val).
					Msg("rate limiter cluster count parse failed; slot fields left untouched")
				return
			}
		}
		// errors.Is(err, ErrNotFound): missing key parses as 0, matching an
		// instance (or the whole cluster) that sent nothing for that second.

		sD.setClusterRequestCount(count)
		sD.setClusterTime(tD)
	}
}

// refresh recomputes this instance's weight from a full window of
// cluster-vs-local traffic. Invoked by the Syncer when now is
// window-aligned (now % windowSize == 0).
//
// The scan walks now+1..now+windowSize-1, visiting every ring position
// except the current one, and filters against now-1 rather than now.
// Changing either bound shifts which slot absorbs a late cluster update
// and silently alters the carry-over math downstream.
func (l *Limiter) refresh(now int64) {
	l.refreshedFlag.Store(true)

	var total, local int64
	w := int64(l.windowSize)
	for off := int64(1); off <= w-1; off++ {
		s := l.slotAt(now + off)
		if s.isClusterExpired(now-1, l.windowSize) {
			continue
		}
		snap := s.snapshot()
		total += snap.clusterRequestCount
		local += snap.instanceRequestCount
	}

	var weight float64
	if total == 0 || local == 0 {
		weight = 1.0
	} else {
		weight = float64(local) / float64(total)
		// Stale or partial cluster data can leave total below local; an
		// instance never owns more than the whole cluster's share.
		if weight > 1.0 {
			weight = 1.0
		}
	}
	l.storeWeight(weight)

	tags := map[string]string{"service_name": l.resourceKey}
	l.metrics.Observe("rate_limiter.weight", weight, tags)
	l.metrics.Observe("rate_limiter.remain", l.loadRemain(), tags)

	if l.logEnabled {
		l.logger.Debug().
			Str("resource", l.resourceKey).
			Int64("second", now).
			Int64("cluster_total", total).
			Int64("instance_local", local).
			Float64("weight", weight).
			Msg("rate limiter weight refreshed")
	}
}

// Snapshot exposes the Limiter's current diagnostic state: weight, carried
// remainder, and the live second's limit/instanceReleasedCount if
// available. It performs only atomic loads and one Slot lock acquisition,
// so it is safe to call from metrics-scrape or debug-endpoint paths.
type Snapshot struct {
	ResourceKey string
	Weight      float64
	Remain      float64
	Second      int64
	Limit       float64
	Released    int64
	Requested   int64
}

// Snapshot returns the Limiter's current diagnostic state.
func (l *Limiter) Snapshot() Snapshot {
	now := l.clock.Now()
	s := l.slotAt(now)
	snap := s.snapshot()
	return Snapshot{
		ResourceKey: l.resourceKey,
		Weight:      l.loadWeight(),
		Remain:      l.loadRemain(),
		Second:      now,
		Limit:       snap.limit,
		Released:    snap.instanceReleasedCount,
		Requested:   snap.instanceRequestCount,
	}
}

// String implements fmt.Stringer for debug logging.
func (s Snapshot) String() string {
	return fmt.Sprintf("%s[second=%d weight=%.3f remain=%.3f limit=%.3f released=%d requested=%d]",
		s.ResourceKey, s.Second, s.Weight, s.Remain, s.Limit, s.Released, s.Requested)
}
