package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncer_SkipsTickIfSecondHasNotAdvanced(t *testing.T) {
	clock := NewFixedClock(100)
	r, err := NewLimiterRegistry(30, true, WithClock(clock), WithRandSource(NewScriptedRand(0.0)))
	require.NoError(t, err)
	store := newFakeStore()
	s, err := NewSyncer(r, NewSingleStore(store), clock, zerolog.Nop())
	require.NoError(t, err)

	l := r.Get("checkout")
	l.TryAcquire(10)
	clock.Set(102) // quiescent slot at 100 becomes uploadable once now>=102
	s.tick(context.Background())
	first := len(store.data)
	s.tick(context.Background()) // clock unchanged: must be a no-op
	assert.Len(t, store.data, first)
}

func TestSyncer_UploadsSlotFromTwoSecondsBack(t *testing.T) {
	clock := NewFixedClock(0)
	r, err := NewLimiterRegistry(30, true, WithClock(clock), WithRandSource(NewScriptedRand(0.0)))
	require.NoError(t, err)
	store := newFakeStore()
	s, err := NewSyncer(r, NewSingleStore(store), clock, zerolog.Nop())
	require.NoError(t, err)

	l := r.Get("checkout")
	clock.Set(10)
	require.True(t, l.TryAcquire(5))
	require.True(t, l.TryAcquire(5))

	clock.Set(12)
	s.tick(context.Background())

	key := storeKey("checkout", 10)
	assert.Equal(t, int64(2), store.data[key])
}

func TestSyncer_RefreshesAtWindowBoundary(t *testing.T) {
	clock := NewFixedClock(29)
	r, err := NewLimiterRegistry(30, true, WithClock(clock), WithRandSource(NewScriptedRand(0.0)))
	require.NoError(t, err)
	store := newFakeStore()
	s, err := NewSyncer(r, NewSingleStore(store), clock, zerolog.Nop())
	require.NoError(t, err)

	l := r.Get("checkout")
	l.refreshedFlag.Store(false)

	clock.Set(30) // window-aligned: 30 % 30 == 0
	s.tick(context.Background())
	assert.True(t, l.refreshedFlag.Load(), "a window-aligned tick must call refresh on every limiter")
}

func TestSyncer_PipelineFailureIsNoOpAndLogged(t *testing.T) {
	clock := NewFixedClock(0)
	r, err := NewLimiterRegistry(30, true, WithClock(clock), WithRandSource(NewScriptedRand(0.0)))
	require.NoError(t, err)
	store := newFakeStore()
	store.failExec = true
	s, err := NewSyncer(r, NewSingleStore(store), clock, zerolog.Nop())
	require.NoError(t, err)

	l := r.Get("checkout")
	clock.Set(10)
	l.TryAcquire(5)
	clock.Set(12)

	assert.NotPanics(t, func() { s.tick(context.Background()) })
}

func TestSyncer_NilStoreRejected(t *testing.T) {
	r, err := NewLimiterRegistry(30, true)
	require.NoError(t, err)
	_, err = NewSyncer(r, nil, NewFixedClock(0), zerolog.Nop())
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestSyncer_StartStop(t *testing.T) {
	clock := NewSystemClock(50 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go clock.Start(ctx)

	r, err := NewLimiterRegistry(30, true, WithClock(clock))
	require.NoError(t, err)
	s, err := NewSyncer(r, NewSingleStore(newFakeStore()), clock, zerolog.Nop())
	require.NoError(t, err)

	go s.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	s.Stop()
}

func TestSyncer_ShardsRouteByResourceKey(t *testing.T) {
	clock := NewFixedClock(10)
	r, err := NewLimiterRegistry(30, true, WithClock(clock), WithRandSource(NewScriptedRand(0.0)))
	require.NoError(t, err)

	storeA, storeB := newFakeStore(), newFakeStore()
	sharded := NewShardedStore(map[string]Store{"a": storeA, "b": storeB})

	keys := []string{"resource-1", "resource-2", "resource-3", "resource-4"}
	for _, k := range keys {
		r.Get(k).TryAcquire(5)
	}

	s, err := NewSyncer(r, ResolverFor(sharded), clock, zerolog.Nop())
	require.NoError(t, err)

	clock.Set(12)
	s.tick(context.Background())

	total := 0
	for k := range storeA.data {
		_ = k
		total++
	}
	for k := range storeB.data {
		_ = k
		total++
	}
	assert.Equal(t, len(keys), total, "every resource key's upload should land on exactly one shard")
}
