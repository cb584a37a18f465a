package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheMarkAndCheck(t *testing.T) {
	cache := NewMemoryCache(time.Hour)
	ctx := context.Background()

	processed, err := cache.IsProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, cache.MarkProcessed(ctx, "msg-1"))

	processed, err = cache.IsProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, processed)

	// Unrelated ids remain unmarked.
	processed, err = cache.IsProcessed(ctx, "msg-2")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(time.Hour)
	ctx := context.Background()

	current := time.Now()
	cache.now = func() time.Time { return current }

	require.NoError(t, cache.MarkProcessed(ctx, "msg-1"))

	processed, err := cache.IsProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, processed)

	// Just inside the window the mark still holds.
	current = current.Add(59 * time.Minute)
	processed, err = cache.IsProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, processed)

	// Past the window the mark is gone and the message counts as new again.
	current = current.Add(2 * time.Minute)
	processed, err = cache.IsProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, processed)
}
