package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisConfig{
		URL:    "redis://" + mr.Addr(),
		Prefix: "clinic:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{URL: "invalid://url"})
	assert.Error(t, err)
}

func TestRedisStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStore(t)

	require.NoError(t, s.Set(ctx, "license:current", map[string]string{"status": "active"}, time.Minute))
	assert.True(t, mr.Exists("clinic:license:current"))

	var got map[string]string
	require.NoError(t, s.Get(ctx, "license:current", &got))
	assert.Equal(t, "active", got["status"])

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, s.Get(ctx, "license:current", &got), ErrMiss)
}

func TestRedisStore_DeletePattern(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStore(t)

	for _, k := range []string{"user:1:perms:a", "user:1:role", "user:2:role"} {
		require.NoError(t, s.Set(ctx, k, k, time.Minute))
	}
	require.NoError(t, s.DeletePattern(ctx, "user:1:*"))

	assert.False(t, mr.Exists("clinic:user:1:perms:a"))
	assert.False(t, mr.Exists("clinic:user:1:role"))
	assert.True(t, mr.Exists("clinic:user:2:role"))
}

func TestRedisStore_Incr(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStore(t)

	n, ttl, err := s.Incr(ctx, "rl:user:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, ttl)
	assert.Equal(t, time.Minute, mr.TTL("clinic:rl:user:1"))

	n, _, err = s.Incr(ctx, "rl:user:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mr.FastForward(61 * time.Second)
	n, _, err = s.Incr(ctx, "rl:user:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStore_FlushKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStore(t)

	require.NoError(t, mr.Set("other:key", "x"))
	require.NoError(t, s.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, s.Flush(ctx))

	assert.False(t, mr.Exists("clinic:a"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisStore_UnavailableDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStore(t)
	mr.Close()

	var v string
	assert.ErrorIs(t, s.Get(ctx, "anything", &v), ErrMiss)
}
