package ratelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is the store-agnostic "key did not exist or had expired"
// sentinel a GetResult yields instead of a count. RedisStore translates
// go-redis's redis.Nil into this; fakes used in tests can do the same,
// without leaking a Redis-specific error through the Store abstraction.
var ErrNotFound = errors.New("ratelimiter: key not found")

// IncrResult is the deferred result of a pipelined INCRBY.
type IncrResult interface {
	Result() (int64, error)
}

// GetResult is the deferred result of a pipelined GET.
type GetResult interface {
	Result() (string, error)
}

// Pipeliner is the small capability set the Syncer needs from the
// coordination store: atomic increment, TTL, and a batched GET, all staged
// for one round trip. It mirrors the store's actual wire contract rather
// than exposing the whole client.
type Pipeliner interface {
	IncrBy(ctx context.Context, key string, value int64) IncrResult
	Expire(ctx context.Context, key string, ttl time.Duration)
	Get(ctx context.Context, key string) GetResult
	Exec(ctx context.Context) error
}

// Store is the coordination store collaborator. Any store supporting
// atomic increment, TTL'd keys, and pipelined GET can implement it; the
// store itself is an external concern, modeled only as this capability
// set.
type Store interface {
	Pipeline() Pipeliner
}

// RedisStore is the production Store, backed by go-redis.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing go-redis client (a *redis.Client or
// *redis.ClusterClient) as a Store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Pipeline stages a new batch of operations against Redis.
func (s *RedisStore) Pipeline() Pipeliner {
	return &redisPipeline{p: s.client.Pipeline()}
}

type redisPipeline struct {
	p redis.Pipeliner
}

func (r *redisPipeline) IncrBy(ctx context.Context, key string, value int64) IncrResult {
	return r.p.IncrBy(ctx, key, value)
}

func (r *redisPipeline) Expire(ctx context.Context, key string, ttl time.Duration) {
	r.p.Expire(ctx, key, ttl)
}

func (r *redisPipeline) Get(ctx context.Context, key string) GetResult {
	return &redisGetResult{cmd: r.p.Get(ctx, key)}
}

func (r *redisPipeline) Exec(ctx context.Context) error {
	_, err := r.p.Exec(ctx)
	if err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// redisGetResult adapts a *redis.StringCmd onto GetResult, translating
// go-redis's redis.Nil into the store-agnostic ErrNotFound.
type redisGetResult struct {
	cmd *redis.StringCmd
}

func (g *redisGetResult) Result() (string, error) {
	v, err := g.cmd.Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return v, err
}
