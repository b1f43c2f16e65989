package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
)

func TestLRUAdapter_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLRUAdapter(10, time.Minute)

	_, err := c.Get(ctx, "missing")
	assert.True(t, errors.Is(err, providers.ErrCacheMiss))

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 60))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	ok, _ := c.Exists(ctx, "k")
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "k"))
	ok, _ = c.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestLRUAdapter_PerEntryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUAdapter(10, time.Hour)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("x"), 5))
	now = now.Add(6 * time.Second)

	_, err := c.Get(ctx, "short")
	assert.True(t, errors.Is(err, providers.ErrCacheMiss))
}

func TestLRUAdapter_Increment(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUAdapter(10, time.Hour)
	c.now = func() time.Time { return now }

	for want := int64(1); want <= 3; want++ {
		n, err := c.Increment(ctx, "login:1.2.3.4", 60)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	// the window is anchored at the first increment
	now = now.Add(61 * time.Second)
	n, err := c.Increment(ctx, "login:1.2.3.4", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLRUAdapter_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUAdapter(2, time.Hour)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	ok, _ := c.Exists(ctx, "a")
	assert.False(t, ok)
	ok, _ = c.Exists(ctx, "c")
	assert.True(t, ok)
}
