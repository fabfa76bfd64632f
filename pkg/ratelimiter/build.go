package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BuildStore constructs the Store described by a Redis config: a single
// RedisStore for one address, or a ShardedStore (rendezvous-hashed across
// one RedisStore per address) for more than one. It pings every address
// before returning so construction-time failures surface immediately
// rather than on the first admission-path-adjacent Syncer tick.
func BuildStore(cfg Redis) (any, func(), error) {
	if len(cfg.Addrs) == 0 {
		return nil, nil, fmt.Errorf("ratelimiter: no redis addrs configured")
	}

	clients := make([]redis.UniversalClient, 0, len(cfg.Addrs))
	closeAll := func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}

	if len(cfg.Addrs) == 1 {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addrs[0],
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := pingWithTimeout(client); err != nil {
			return nil, nil, fmt.Errorf("ratelimiter: connect %s: %w", cfg.Addrs[0], err)
		}
		return NewRedisStore(client), func() { _ = client.Close() }, nil
	}

	shards := make(map[string]Store, len(cfg.Addrs))
	for _, addr := range cfg.Addrs {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := pingWithTimeout(client); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("ratelimiter: connect %s: %w", addr, err)
		}
		clients = append(clients, client)
		shards[addr] = NewRedisStore(client)
	}

	sharded := NewShardedStore(shards)
	return sharded, closeAll, nil
}

func pingWithTimeout(client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// ResolverFor adapts a Store into a StoreResolver: a plain Store always
// resolves to itself; a *ShardedStore resolves per resource key.
func ResolverFor(store any) StoreResolver {
	if sharded, ok := store.(*ShardedStore); ok {
		return &shardedResolver{sharded: sharded}
	}
	return NewSingleStore(store.(Store))
}

type shardedResolver struct {
	sharded *ShardedStore
}

func (r *shardedResolver) StoreFor(resourceKey string) Store {
	return r.sharded.StoreFor(resourceKey)
}
