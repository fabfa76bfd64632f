package ratelimiter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// syncInterval is the Syncer's poll period. It is not a correctness knob:
// the only reason it matters is collapsing sub-second polling into
// per-second work once the clock actually advances (see tick).
const syncInterval = 200 * time.Millisecond

// StoreResolver maps a resource key to the Store that should handle its
// coordination-store operations. The resolver from NewSingleStore always
// returns the same Store; ShardedStore.StoreFor implements this by resource-key hash.
type StoreResolver interface {
	StoreFor(resourceKey string) Store
}

// singleStore is the StoreResolver for the common, unsharded deployment:
// every resource key is handled by the same Store, so a Syncer tick is
// exactly one pipelined round trip for every Limiter.
type singleStore struct {
	store Store
}

// NewSingleStore wraps one Store as a StoreResolver.
func NewSingleStore(store Store) StoreResolver {
	return &singleStore{store: store}
}

func (s *singleStore) StoreFor(string) Store { return s.store }

// Syncer is the single background task, shared across every Limiter in a
// LimiterRegistry, that moves counts to and from the coordination store and
// triggers weight refreshes at window boundaries.
type Syncer struct {
	registry *LimiterRegistry
	stores   StoreResolver
	clock    Clock
	logger   zerolog.Logger

	previousSyncSecond atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSyncer wires a LimiterRegistry to a StoreResolver. store must not be
// nil.
func NewSyncer(registry *LimiterRegistry, stores StoreResolver, clock Clock, logger zerolog.Logger) (*Syncer, error) {
	if stores == nil {
		return nil, ErrNilStore
	}
	s := &Syncer{
		registry: registry,
		stores:   stores,
		clock:    clock,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.previousSyncSecond.Store(0)
	return s, nil
}

// Start runs the Syncer's tick loop until ctx is done or Stop is called.
// Any panic inside a single tick is recovered and logged; the task never
// dies.
func (s *Syncer) Start(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.safeTick(ctx)
		}
	}
}

// Stop signals the tick loop to exit and blocks until it has.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *Syncer) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("rate limiter syncer tick panicked; continuing")
		}
	}()
	s.tick(ctx)
}

// tick is one 200ms poll. It is a no-op unless the wall-clock second has
// actually advanced since the previous tick.
func (s *Syncer) tick(ctx context.Context) {
	now := s.clock.Now()
	if prev := s.previousSyncSecond.Swap(now); prev == now {
		return
	}

	windowSize := s.registry.WindowSize()
	if windowSize > 0 && now%int64(windowSize) == 0 {
		s.registry.Range(func(l *Limiter) { l.refresh(now) })
	}

	type pending struct {
		pipe  Pipeliner
		posts []postProcessor
	}
	byShard := make(map[Store]*pending)

	s.registry.Range(func(l *Limiter) {
		store := s.stores.StoreFor(l.resourceKey)
		p, ok := byShard[store]
		if !ok {
			p = &pending{pipe: store.Pipeline()}
			byShard[store] = p
		}
		post := l.sync(ctx, now, p.pipe)
		p.posts = append(p.posts, post)
	})

	for _, p := range byShard {
		if err := p.pipe.Exec(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("rate limiter syncer pipeline flush failed; tick is a no-op for this shard")
			continue
		}
		for _, post := range p.posts {
			s.runPost(post)
		}
	}
}

func (s *Syncer) runPost(post postProcessor) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("rate limiter syncer post-processor panicked; continuing")
		}
	}()
	post()
}
