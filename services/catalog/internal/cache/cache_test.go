package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookfinder/pkg/domain"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[domain.Book](2, time.Minute)

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", domain.Book{ID: "a"}))
	require.NoError(t, c.Set(ctx, "b", domain.Book{ID: "b"}))
	require.NoError(t, c.Set(ctx, "c", domain.Book{ID: "c"}))
	assert.Equal(t, 2, c.Len())

	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry evicted")
	got, ok, _ := c.Get(ctx, "c")
	require.True(t, ok)
	assert.Equal(t, "c", got.ID)

	require.NoError(t, c.Purge(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[string](10, 20*time.Millisecond)
	require.NoError(t, c.Set(ctx, "k", "v"))
	require.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func newRedisCache(t *testing.T, prefix string) (*miniredis.Miniredis, *Redis[domain.SearchResult]) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := NewRedis[domain.SearchResult](client, prefix, 5*time.Minute)
	require.NoError(t, err)
	return mr, c
}

func TestRedisCacheRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	mr, c := newRedisCache(t, "test:search")

	want := domain.SearchResult{Total: 1, Items: []domain.Book{{ID: "1", Title: "Dune", Authors: []string{}}}}
	require.NoError(t, c.Set(ctx, "0:20:dune", want))
	assert.Equal(t, 5*time.Minute, mr.TTL("test:search:0:20:dune"))

	got, ok, err := c.Get(ctx, "0:20:dune")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	mr.FastForward(6 * time.Minute)
	_, ok, err = c.Get(ctx, "0:20:dune")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisPurgeKeepsOtherPrefixes(t *testing.T) {
	ctx := context.Background()
	mr, c := newRedisCache(t, "test:search")
	require.NoError(t, mr.Set("test:book:1", "{}"))
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, domain.SearchResult{}))
	}

	require.NoError(t, c.Purge(ctx))
	for _, k := range []string{"a", "b", "c"} {
		_, ok, err := c.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.True(t, mr.Exists("test:book:1"))
}

func TestRedisCacheReportsErrors(t *testing.T) {
	mr, c := newRedisCache(t, "test:search")
	mr.Close()
	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestNewRedisValidates(t *testing.T) {
	_, err := NewRedis[string](nil, "p", time.Minute)
	assert.Error(t, err)
}
