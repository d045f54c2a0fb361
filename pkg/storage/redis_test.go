package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStorage(t *testing.T, opts ...Option) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(&RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewRedisStorage(client, append([]Option{WithLogger(discardLogger())}, opts...)...), mr
}

func TestNewRedisClient(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewRedisClient(nil)
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, err := NewRedisClient(&RedisConfig{Address: addr})
		assert.Error(t, err)
	})

	t.Run("defaults pool size", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := &RedisConfig{Address: mr.Addr()}
		client, err := NewRedisClient(cfg)
		require.NoError(t, err)
		defer client.Close()
		assert.Equal(t, 10, cfg.PoolSize)
	})
}

func TestRedisStorage_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStorage(t)

	require.NoError(t, s.Store(ctx, "with_ttl", &Record{AccessToken: "a", ExpiresIn: 3600}))
	assert.InDelta(t, 3960, mr.TTL(DefaultRedisPrefix+"with_ttl").Seconds(), 1)

	ttl, ok := s.TTL(ctx, "with_ttl")
	require.True(t, ok)
	assert.InDelta(t, 3960, ttl.Seconds(), 1)

	require.NoError(t, s.Store(ctx, "no_ttl", &Record{AccessToken: "b"}))
	assert.Zero(t, mr.TTL(DefaultRedisPrefix+"no_ttl"))
	_, ok = s.TTL(ctx, "no_ttl")
	assert.False(t, ok)

	extended, err := s.ExtendTTL(ctx, "no_ttl", time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.Equal(t, time.Minute, mr.TTL(DefaultRedisPrefix+"no_ttl"))

	extended, err = s.ExtendTTL(ctx, "missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, extended)

	// records disappear once Redis expires them
	mr.FastForward(4000 * time.Second)
	_, ok = s.Get(ctx, "with_ttl")
	assert.False(t, ok)
}

func TestRedisStorage_CorruptValueIsDeleted(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStorage(t)

	require.NoError(t, mr.Set(DefaultRedisPrefix+"bad", "{not json"))

	_, ok := s.Get(ctx, "bad")
	assert.False(t, ok)
	assert.False(t, mr.Exists(DefaultRedisPrefix+"bad"))
}

func TestRedisStorage_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStorage(t, WithKeyPrefix("team-a:"))

	require.NoError(t, mr.Set("unrelated", "keep me"))
	require.NoError(t, s.Store(ctx, "k", &Record{AccessToken: "a"}))
	assert.True(t, mr.Exists("team-a:k"))

	require.NoError(t, s.ClearAll(ctx))
	assert.False(t, mr.Exists("team-a:k"))
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisStorage_ConnectionLossReadsAbsent(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStorage(t)

	require.NoError(t, s.Store(ctx, "k", &Record{AccessToken: "a"}))
	mr.Close()

	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
	assert.Error(t, s.Store(ctx, "k", &Record{AccessToken: "b"}))
}
