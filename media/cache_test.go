package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	c := NewMemoryCache(0)
	c.now = func() time.Time { return now }
	defer c.Close()

	c.Set(ctx, "k", []SearchResult{{VideoID: "a", Title: "A"}}, time.Minute)

	var got []SearchResult
	require.True(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "A", got[0].Title)
	assert.False(t, c.Get(ctx, "missing", &got))

	now = now.Add(2 * time.Minute)
	assert.False(t, c.Get(ctx, "k", &got))
	assert.Equal(t, 1, c.Len())
	c.sweep()
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_CloseTwice(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestNewCache(t *testing.T) {
	c, err := NewCache("")
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
	c.Close()

	_, err = NewCache("not a url")
	assert.Error(t, err)

	c, err = NewCache("redis://localhost:6379/0")
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)
	c.Close()
}
