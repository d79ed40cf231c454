package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	cache := NewLocalCache(3, time.Hour)

	for i := 0; i < 100; i++ {
		require.NoError(t, cache.Set(ctx, fmt.Sprintf("question %d", i), Lookup{}))
	}
	assert.Equal(t, 3, cache.Len())

	_, ok, err := cache.Get(ctx, "question 0")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cache.Get(ctx, "question 97")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cache.Set(ctx, "question 100", Lookup{Found: true}))
	_, ok, _ = cache.Get(ctx, "question 97")
	assert.True(t, ok)
	_, ok, _ = cache.Get(ctx, "question 98")
	assert.False(t, ok)
}

func TestLocalCacheExpiresEntries(t *testing.T) {
	ctx := context.Background()
	cache := NewLocalCache(10, 50*time.Millisecond)

	require.NoError(t, cache.Set(ctx, "when can you start", Lookup{Found: false}))
	_, ok, err := cache.Get(ctx, "when can you start")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok, _ := cache.Get(ctx, "when can you start")
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLocalCacheDefaultsAndReset(t *testing.T) {
	ctx := context.Background()
	cache := NewLocalCache(0, 0)
	require.NoError(t, cache.Set(ctx, "a", Lookup{}))
	require.NoError(t, cache.Set(ctx, "b", Lookup{}))
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Reset(ctx))
	assert.Zero(t, cache.Len())
}
