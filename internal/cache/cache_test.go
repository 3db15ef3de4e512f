package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "job_insights:abc:counts", Key("abc", "counts"))
	assert.Equal(t, "job_insights:abc:averages:views_count:sector", Key("abc", "averages", "views_count", "sector"))
	assert.Equal(t, "job_insights:abc:recent:10", Key("abc", "recent", 10))
	assert.NotEqual(t, Key("load-1", "counts"), Key("load-2", "counts"))
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}))

	var got map[string]int
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
	assert.NoError(t, c.Close())
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.ParseURL")
}
