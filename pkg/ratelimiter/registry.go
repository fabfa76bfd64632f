package ratelimiter

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LimiterRegistry is a lazy, concurrent map from resource key to Limiter.
// Limiters are created on first use and replaced wholesale if the
// registry's configured window size changes; otherwise a Limiter lives for
// the process.
type LimiterRegistry struct {
	mu         sync.RWMutex
	limiters   map[string]*Limiter
	windowSize int

	enabled         bool
	logResourceKeys map[string]struct{}

	clock   Clock
	rng     RandSource
	metrics MetricsRecorder
	logger  zerolog.Logger
}

// RegistryOption configures a LimiterRegistry at construction time.
type RegistryOption func(*LimiterRegistry)

// WithMetrics injects a MetricsRecorder. Defaults to NoOpMetricsRecorder.
func WithMetrics(m MetricsRecorder) RegistryOption {
	return func(r *LimiterRegistry) { r.metrics = m }
}

// WithLogger injects a zerolog.Logger. Defaults to a disabled logger.
func WithLogger(l zerolog.Logger) RegistryOption {
	return func(r *LimiterRegistry) { r.logger = l }
}

// WithRandSource injects the randomness used by every Limiter's
// fractional-boundary decision. Defaults to a process-seeded RandSource.
func WithRandSource(rng RandSource) RegistryOption {
	return func(r *LimiterRegistry) { r.rng = rng }
}

// WithClock injects a Clock. Defaults to a SystemClock the caller is
// expected to Start separately.
func WithClock(c Clock) RegistryOption {
	return func(r *LimiterRegistry) { r.clock = c }
}

// WithLogResourceKeys enables verbose per-slot logging for the named
// resource keys.
func WithLogResourceKeys(keys ...string) RegistryOption {
	return func(r *LimiterRegistry) {
		for _, k := range keys {
			r.logResourceKeys[k] = struct{}{}
		}
	}
}

// NewLimiterRegistry constructs a registry. windowSize must be >= 3
// (ErrInvalidWindowSize otherwise); enabled is the master switch. When
// false, every admission through this registry fails open.
func NewLimiterRegistry(windowSize int, enabled bool, opts ...RegistryOption) (*LimiterRegistry, error) {
	if windowSize < 3 {
		return nil, ErrInvalidWindowSize
	}
	r := &LimiterRegistry{
		limiters:        make(map[string]*Limiter),
		windowSize:      windowSize,
		enabled:         enabled,
		logResourceKeys: make(map[string]struct{}),
		clock:           NewSystemClock(250 * time.Millisecond),
		rng:             NewRandSource(time.Now().UnixNano()),
		metrics:         NoOpMetricsRecorder{},
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Enabled reports the registry's master switch.
func (r *LimiterRegistry) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled flips the master switch at runtime.
func (r *LimiterRegistry) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// WindowSize reports the registry's currently configured window size.
func (r *LimiterRegistry) WindowSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.windowSize
}

// SetWindowSize reconfigures the ring length for every Limiter obtained
// from this registry going forward. Existing Limiters are not mutated in
// place; each is discarded and replaced, lazily, the next time Get
// observes the mismatch — a deliberate reset rather than an in-place
// resize, since a live ring cannot be resized without losing in-flight
// accounting.
func (r *LimiterRegistry) SetWindowSize(windowSize int) error {
	if windowSize < 3 {
		return ErrInvalidWindowSize
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windowSize = windowSize
	return nil
}

// Get returns the Limiter for key, constructing it lazily (or replacing it,
// if the registry's window size has since been reconfigured).
func (r *LimiterRegistry) Get(key string) *Limiter {
	r.mu.RLock()
	l, ok := r.limiters[key]
	windowSize := r.windowSize
	r.mu.RUnlock()

	if ok && l.windowSize == windowSize {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[key]; ok && l.windowSize == r.windowSize {
		return l
	}

	_, logEnabled := r.logResourceKeys[key]
	l = newLimiter(key, r.windowSize, r.clock, r.rng, r.metrics, r.logger, logEnabled)
	r.limiters[key] = l
	return l
}

// TryAcquire is the public admission API: it returns true unconditionally
// when the registry is disabled (fail-open) or qps is not positive,
// otherwise it defers to the resource key's Limiter.
func (r *LimiterRegistry) TryAcquire(resourceKey string, qps float64) bool {
	if !r.Enabled() {
		return true
	}
	if qps <= 0 {
		return true
	}
	return r.Get(resourceKey).TryAcquire(qps)
}

// Range calls f for every currently-installed Limiter. Used by the Syncer
// to drive a tick across every resource key without holding the registry
// lock for the duration of the store round trip.
func (r *LimiterRegistry) Range(f func(*Limiter)) {
	r.mu.RLock()
	snapshot := make([]*Limiter, 0, len(r.limiters))
	for _, l := range r.limiters {
		snapshot = append(snapshot, l)
	}
	r.mu.RUnlock()

	for _, l := range snapshot {
		f(l)
	}
}
