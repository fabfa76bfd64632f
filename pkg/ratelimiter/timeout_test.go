package ratelimiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedisStore_ContextCancellation(t *testing.T) {
	client := dialTestRedis(t)
	defer client.Close()

	store := NewRedisStore(client)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipe := store.Pipeline()
	pipe.IncrBy(ctx, "ratelimiter_it_cancel", 1)
	err := pipe.Exec(ctx)

	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestRedisStore_Deadline(t *testing.T) {
	client := dialTestRedis(t)
	defer client.Close()

	store := NewRedisStore(client)
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	pipe := store.Pipeline()
	pipe.IncrBy(ctx, "ratelimiter_it_deadline", 1)
	err := pipe.Exec(ctx)

	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
