package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewFromClient(client), mr
}

type cachedPayload struct {
	Date  string   `json:"date"`
	Names []string `json:"names"`
}

func TestCacheRoundTrip(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	t.Run("miss returns absent without error", func(t *testing.T) {
		var out cachedPayload
		found, err := c.GetJSON(ctx, CompositionKey("2024-12-16"), &out)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("set then get returns the payload", func(t *testing.T) {
		in := cachedPayload{Date: "2024-12-16", Names: []string{"AAPL", "MSFT"}}
		require.NoError(t, c.SetJSON(ctx, CompositionKey("2024-12-16"), in, DefaultTTL))

		var out cachedPayload
		found, err := c.GetJSON(ctx, CompositionKey("2024-12-16"), &out)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, in, out)
	})

	t.Run("entries carry the requested TTL", func(t *testing.T) {
		key := PerformanceKey("2024-12-01", "2024-12-31")
		require.NoError(t, c.SetJSON(ctx, key, cachedPayload{Date: "2024-12-31"}, DefaultTTL))
		assert.Equal(t, DefaultTTL, mr.TTL(key))
	})

	t.Run("corrupt payload surfaces a decode error", func(t *testing.T) {
		require.NoError(t, mr.Set("broken", "{not json"))

		var out cachedPayload
		_, err := c.GetJSON(ctx, "broken", &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode cached payload")
	})
}

func TestCacheDelete(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, CompositionKey("2024-12-16"), cachedPayload{}, DefaultTTL))
	require.NoError(t, c.SetJSON(ctx, CompositionKey("2024-12-17"), cachedPayload{}, DefaultTTL))

	require.NoError(t, c.Delete(ctx, CompositionKey("2024-12-16")))

	var out cachedPayload
	found, err := c.GetJSON(ctx, CompositionKey("2024-12-16"), &out)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = c.GetJSON(ctx, CompositionKey("2024-12-17"), &out)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCacheDeleteByPattern(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, PerformanceKey("2024-12-01", "2024-12-31"), cachedPayload{}, DefaultTTL))
	require.NoError(t, c.SetJSON(ctx, PerformanceKey("2024-11-01", "2024-11-30"), cachedPayload{}, DefaultTTL))
	require.NoError(t, c.SetJSON(ctx, ChangesKey("2024-12-01", "2024-12-31"), cachedPayload{}, DefaultTTL))

	require.NoError(t, c.DeleteByPattern(ctx, "index_performance:*"))

	var out cachedPayload
	found, err := c.GetJSON(ctx, PerformanceKey("2024-12-01", "2024-12-31"), &out)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = c.GetJSON(ctx, PerformanceKey("2024-11-01", "2024-11-30"), &out)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = c.GetJSON(ctx, ChangesKey("2024-12-01", "2024-12-31"), &out)
	require.NoError(t, err)
	assert.True(t, found, "other key families survive the pattern delete")

	assert.NoError(t, c.DeleteByPattern(ctx, "index_performance:*"), "no matches is not an error")
}

func TestCacheNilReceiverIsSafe(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var out cachedPayload
	found, err := c.GetJSON(ctx, "anything", &out)
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, c.SetJSON(ctx, "anything", cachedPayload{}, time.Minute))
	assert.NoError(t, c.Delete(ctx, "anything"))
	assert.NoError(t, c.DeleteByPattern(ctx, "*"))
	assert.NoError(t, c.Close())
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "index_composition:2024-12-16", CompositionKey("2024-12-16"))
	assert.Equal(t, "index_performance:2024-12-01:2024-12-31", PerformanceKey("2024-12-01", "2024-12-31"))
	assert.Equal(t, "composition_changes:2024-12-01:2024-12-31", ChangesKey("2024-12-01", "2024-12-31"))
}
