package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tally/internal/badge"
	"github.com/smallbiznis/tally/internal/clock"
	"github.com/smallbiznis/tally/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTTLCacheExpiry(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := newTTLCache[string, int](fake.Now)

	c.Set("a", 1, time.Minute)
	c.Set("forever", 2, 0)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got)

	fake.Advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Empty(t, c.entries["a"])

	got, ok = c.Get("forever")
	require.True(t, ok)
	assert.Equal(t, 2, got)

	c.Delete("forever")
	_, ok = c.Get("forever")
	assert.False(t, ok)
}

func TestMemorySiteCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySiteCache(time.Minute)
	cfg := badge.Config{Style: badge.StylePlastic, Color: "red", Label: "hits"}

	_, ok := c.GetBadgeConfig(ctx, "42")
	assert.False(t, ok)

	c.SetBadgeConfig(ctx, " 42 ", cfg)
	got, ok := c.GetBadgeConfig(ctx, "42")
	require.True(t, ok)
	assert.Equal(t, cfg, got)

	c.Invalidate(ctx, "42")
	_, ok = c.GetBadgeConfig(ctx, "42")
	assert.False(t, ok)
}

func TestRedisSiteCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisSiteCache(client, 30*time.Second, zap.NewNop())
	cfg := badge.Config{Style: badge.StyleForTheBadge, Color: "blue", Label: "views", Logo: "★"}

	c.SetBadgeConfig(ctx, "7", cfg)
	assert.True(t, mr.Exists("tally:site:7:badge"))
	assert.Equal(t, 30*time.Second, mr.TTL("tally:site:7:badge"))

	got, ok := c.GetBadgeConfig(ctx, "7")
	require.True(t, ok)
	assert.Equal(t, cfg, got)

	mr.FastForward(31 * time.Second)
	_, ok = c.GetBadgeConfig(ctx, "7")
	assert.False(t, ok)

	c.SetBadgeConfig(ctx, "7", cfg)
	c.Invalidate(ctx, "7")
	_, ok = c.GetBadgeConfig(ctx, "7")
	assert.False(t, ok)
}

func TestRedisSiteCacheDegradesToMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisSiteCache(client, time.Minute, zap.NewNop())

	require.NoError(t, mr.Set("tally:site:9:badge", "{not json"))
	_, ok := c.GetBadgeConfig(context.Background(), "9")
	assert.False(t, ok)

	mr.Close()
	_, ok = c.GetBadgeConfig(context.Background(), "9")
	assert.False(t, ok)
}

func TestNewSiteCacheFallsBackToMemory(t *testing.T) {
	c := NewSiteCache(config.Config{SiteCacheTTL: time.Second}, nil, zap.NewNop())
	_, isMemory := c.(*memorySiteCache)
	assert.True(t, isMemory)
}
