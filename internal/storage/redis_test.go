package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client)
	t.Cleanup(func() {
		_ = store.Close()
		mr.Close()
	})
	return store, mr
}

func TestRedisStore_HashOps(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.HSet(ctx, "embeddings:text", "0", "a"))
	require.NoError(t, store.HSet(ctx, "embeddings:text", "1", "b"))

	all, err := store.HGetAll(ctx, "embeddings:text")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0": "a", "1": "b"}, all)

	vals, err := store.HMGet(ctx, "embeddings:text", "1", "9", "0")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	require.NotNil(t, vals[0])
	assert.Equal(t, "b", *vals[0])
	assert.Nil(t, vals[1])
	require.NotNil(t, vals[2])
	assert.Equal(t, "a", *vals[2])

	require.NoError(t, store.Del(ctx, "embeddings:text"))
	all, err = store.HGetAll(ctx, "embeddings:text")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRedisStore_Expire(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.HSet(ctx, "k", "0", "v"))
	require.NoError(t, store.Expire(ctx, "k", time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("k"))

	mr.FastForward(2 * time.Hour)
	all, err := store.HGetAll(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRedisStore_ExpireNonPositiveDeletes(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.HSet(ctx, "k", "0", "v"))
	require.NoError(t, store.Expire(ctx, "k", 0))
	assert.False(t, mr.Exists("k"))
}

func TestNewRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store, err := NewRedisStore(context.Background(), "redis://"+mr.Addr()+"/0", nil)
	require.NoError(t, err)
	defer store.Close()
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-url", nil)
	assert.Error(t, err)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = NewRedisStore(ctx, "redis://"+addr+"/0", nil)
	assert.Error(t, err)
}
