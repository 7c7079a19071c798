package adapter

import (
	"context"
	"testing"
	"time"

	"go-stranger/internal/infrastructure/cache/port"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableClient points at a port nothing listens on.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCacheKeyPrefix(t *testing.T) {
	assert.Equal(t, "api:presence:count", NewRedisCache(nil, "api").key("presence:count"))
	assert.Equal(t, "presence:count", NewRedisCache(nil, "").key("presence:count"))
}

func TestRedisCacheBackendFailureIsNotAMiss(t *testing.T) {
	c := NewRedisCache(unreachableClient(t), "test")
	ctx := context.Background()

	_, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, port.ErrMiss)
	assert.Error(t, c.Ping(ctx))

	n, err := c.Del(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisCacheCloseLeavesSharedClientOpen(t *testing.T) {
	client := unreachableClient(t)
	require.NoError(t, NewRedisCache(client, "").Close())
	// A closed client reports redis.ErrClosed instead of a dial error.
	assert.NotErrorIs(t, client.Ping(context.Background()).Err(), redis.ErrClosed)
}

func TestNewRedisClientRequiresURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "")
	assert.Error(t, err)

	_, err = NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
