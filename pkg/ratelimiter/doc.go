// Package ratelimiter provides a distributed, per-resource requests-per-second
// ceiling enforced across a fleet of instances that share a coordination
// store.
//
// The primary entry point is the LimiterRegistry:
//
//	ok := registry.TryAcquire("checkout-api", qps)
//
// Each instance grants or denies admission locally, in microseconds, with no
// round trip on the hot path. A background Syncer periodically reconciles
// each instance's local counts with cluster-wide counts pulled from the
// store and rebalances each instance's share of the configured QPS in
// proportion to its observed traffic.
//
// # Overview
//
// This package implements a windowed, probabilistic token-accounting scheme:
//
//   - Each resource key owns a Limiter, which owns a ring of one-second Slots.
//   - Each Slot tracks how many requests were observed and how many were
//     granted during that second, against a limit derived from the
//     resource's configured QPS and this instance's current weight.
//   - A fractional limit (for example 37.4) is resolved at the boundary by a
//     single probabilistic grant, so the long-run expected grants equal the
//     limit exactly rather than being biased by flooring or ceiling.
//
// # Core Types
//
//   - Clock: a cheap, cached source of the current wall-clock second.
//   - Slot: the accounting record for one second of one resource on one
//     instance.
//   - Limiter: one per resource key; owns the ring of Slots, the current
//     weight, and the carry-over remainder.
//   - LimiterRegistry: a lazy, concurrent map from resource key to Limiter.
//   - Syncer: the single background task that moves counts to and from the
//     store and triggers weight refreshes at window boundaries.
//
// # Backends
//
// The coordination store is abstracted behind the Store interface (atomic
// INCRBY, TTL'd keys, pipelined GET). RedisStore is the production
// implementation, backed by go-redis. A ShardedStore spreads resource keys
// across multiple Redis endpoints using rendezvous hashing, for deployments
// that shard their coordination store.
//
// # Concurrency
//
// The admission path (LimiterRegistry.Get + Limiter.TryAcquire) never
// blocks on the store and performs no I/O. It is safe for concurrent use
// from many goroutines. The Syncer runs on its own goroutine and is the
// sole writer of cluster-derived state; admission goroutines are the sole
// writers of instance-local state.
//
// # Fail-Open Stance
//
// When the registry's enabled flag is false, TryAcquire unconditionally
// grants. The limiter is an advisory shaper, not a safety gate: it admits
// bounded overshoot under burst and coordination-store staleness rather than
// ever blocking or erroring out to the caller.
//
// # Configuration
//
// Config is loaded from YAML (see Load) and covers the enable flag, window
// size, per-resource verbose logging, and the underlying store's connection
// settings. Per-call QPS is supplied by the caller on every TryAcquire, since
// it may change without a restart.
package ratelimiter
