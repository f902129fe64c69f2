package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+mr.Addr()+"/0", time.Minute, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestRedisCache_SetGet(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	pet := &Pet{ID: "p1", Rev: "1-a", Name: "fido", Category: "dog", Available: true, Gender: GenderMale, Birthday: NewDate(2019, time.March, 14)}
	require.NoError(t, cache.Set(ctx, pet))
	assert.True(t, mr.Exists(RedisKeyPrefix+"p1"))

	got, found, err := cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, pet, got)
}

func TestRedisCache_GetNotFound(t *testing.T) {
	cache, _ := newTestRedisCache(t)

	got, found, err := cache.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestRedisCache_TTL(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &Pet{ID: "p1", Name: "fido", Gender: GenderMale, Birthday: Today()}))
	mr.FastForward(2 * time.Minute)

	_, found, err := cache.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_Delete(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &Pet{ID: "p1", Name: "fido", Gender: GenderMale, Birthday: Today()}))
	require.NoError(t, cache.Delete(ctx, "p1"))

	_, found, err := cache.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_FlushKeepsForeignKeys(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Set(ctx, &Pet{ID: id, Name: id, Gender: GenderUnknown, Birthday: Today()}))
	}
	require.NoError(t, mr.Set("session:42", "keep"))

	require.NoError(t, cache.Flush(ctx))

	assert.False(t, mr.Exists(RedisKeyPrefix+"a"))
	assert.False(t, mr.Exists(RedisKeyPrefix+"c"))
	assert.True(t, mr.Exists("session:42"))
}

func TestRedisCache_SetRequiresID(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	assert.Error(t, cache.Set(context.Background(), &Pet{Name: "anon"}))
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache("http://nope", time.Minute, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}
