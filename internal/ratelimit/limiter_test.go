package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	l := NewLimiter(client, MessageRule(1, time.Second))
	ok, err := l.Allow(context.Background(), 7)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestLimiter_Window(t *testing.T) {
	addr := os.Getenv("BAPPOOL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BAPPOOL_TEST_REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, Ping(context.Background(), client))

	rule := Rule{Key: "bappool:test:" + uuid.NewString() + ":", Limit: 3, Window: time.Second}
	l := NewLimiter(client, rule)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok, "call %d", i+1)
	}
	ok, err := l.Allow(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := client.Get(ctx, rule.Key+"1").Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(4), count, "rejected calls still count")

	ok, err = l.Allow(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok, "limits are per user")

	ttl, err := client.TTL(ctx, rule.Key+"1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
