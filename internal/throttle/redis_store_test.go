package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, "test:throttle"), mr
}

func TestRedisStoreThrottleAndIsThrottled(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.IsThrottled(ctx, "src1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Throttle(ctx, "src1", time.Minute))

	ok, err = store.IsThrottled(ctx, "src1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStoreExpiresEntries(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Throttle(ctx, "src1", time.Second))
	mr.FastForward(2 * time.Second)

	ok, err := store.IsThrottled(ctx, "src1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreDefaultRetryAfter(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Throttle(ctx, "src1", 0))
	ok, err := store.IsThrottled(ctx, "src1")
	require.NoError(t, err)
	assert.True(t, ok)
}
