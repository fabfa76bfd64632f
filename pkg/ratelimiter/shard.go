package ratelimiter

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// ShardedStore spreads resource keys across multiple coordination-store
// shards using rendezvous (highest random weight) hashing: each resource
// key maps to exactly one shard, and adding or removing a shard only
// reshuffles the keys owned by that shard, not the whole keyspace. This
// generalizes the single-Store case to a deployment that shards its Redis
// fleet.
type ShardedStore struct {
	nodes  []string
	lookup *rendezvous.Rendezvous
	stores map[string]Store
}

// NewShardedStore builds a ShardedStore from a set of named shards. Every
// name must have a corresponding Store.
func NewShardedStore(stores map[string]Store) *ShardedStore {
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	return &ShardedStore{
		nodes:  names,
		lookup: rendezvous.New(names, xxhash.Sum64String),
		stores: stores,
	}
}

// StoreFor returns the shard Store that owns resourceKey.
func (s *ShardedStore) StoreFor(resourceKey string) Store {
	name := s.lookup.Lookup(resourceKey)
	return s.stores[name]
}

// Shards returns the distinct underlying Stores, keyed by shard name. The
// Syncer does not use it; it groups resource keys by the Store that
// StoreFor returns.
func (s *ShardedStore) Shards() map[string]Store {
	return s.stores
}
