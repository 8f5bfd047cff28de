package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tally/internal/badge"
	"go.uber.org/zap"
)

const (
	defaultSiteTTL = 30 * time.Second
	keySiteBadge   = "tally:site:%s:badge"
)

// SiteCache stores per-site badge configuration snapshots. Counters are never
// cached.
type SiteCache interface {
	GetBadgeConfig(ctx context.Context, siteID string) (badge.Config, bool)
	SetBadgeConfig(ctx context.Context, siteID string, cfg badge.Config)
	Invalidate(ctx context.Context, siteID string)
}

type memorySiteCache struct {
	configs Cache[string, badge.Config]
	ttl     time.Duration
}

// NewMemorySiteCache returns a process-local SiteCache.
func NewMemorySiteCache(ttl time.Duration) SiteCache {
	if ttl <= 0 {
		ttl = defaultSiteTTL
	}
	return &memorySiteCache{
		configs: NewTTLCache[string, badge.Config](),
		ttl:     ttl,
	}
}

func (c *memorySiteCache) GetBadgeConfig(_ context.Context, siteID string) (badge.Config, bool) {
	return c.configs.Get(cacheKey(siteID))
}

func (c *memorySiteCache) SetBadgeConfig(_ context.Context, siteID string, cfg badge.Config) {
	if key := cacheKey(siteID); key != "" {
		c.configs.Set(key, cfg, c.ttl)
	}
}

func (c *memorySiteCache) Invalidate(_ context.Context, siteID string) {
	c.configs.Delete(cacheKey(siteID))
}

type redisSiteCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisSiteCache returns a SiteCache shared by every instance pointed at
// the same redis. Redis errors degrade to cache misses.
func NewRedisSiteCache(client *redis.Client, ttl time.Duration, log *zap.Logger) SiteCache {
	if ttl <= 0 {
		ttl = defaultSiteTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &redisSiteCache{client: client, ttl: ttl, log: log.Named("cache.site")}
}

type cachedBadge struct {
	Style string `json:"style"`
	Color string `json:"color"`
	Label string `json:"label"`
	Logo  string `json:"logo,omitempty"`
}

func (c *redisSiteCache) GetBadgeConfig(ctx context.Context, siteID string) (badge.Config, bool) {
	key := cacheKey(siteID)
	if key == "" {
		return badge.Config{}, false
	}
	raw, err := c.client.Get(ctx, fmt.Sprintf(keySiteBadge, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("site cache read failed", zap.Error(err))
		}
		return badge.Config{}, false
	}
	var stored cachedBadge
	if err := json.Unmarshal(raw, &stored); err != nil {
		c.log.Warn("site cache entry corrupt", zap.Error(err))
		return badge.Config{}, false
	}
	return badge.Config{
		Style: badge.Style(stored.Style),
		Color: stored.Color,
		Label: stored.Label,
		Logo:  stored.Logo,
	}, true
}

func (c *redisSiteCache) SetBadgeConfig(ctx context.Context, siteID string, cfg badge.Config) {
	key := cacheKey(siteID)
	if key == "" {
		return
	}
	raw, err := json.Marshal(cachedBadge{
		Style: string(cfg.Style),
		Color: cfg.Color,
		Label: cfg.Label,
		Logo:  cfg.Logo,
	})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, fmt.Sprintf(keySiteBadge, key), raw, c.ttl).Err(); err != nil {
		c.log.Warn("site cache write failed", zap.Error(err))
	}
}

func (c *redisSiteCache) Invalidate(ctx context.Context, siteID string) {
	key := cacheKey(siteID)
	if key == "" {
		return
	}
	if err := c.client.Del(ctx, fmt.Sprintf(keySiteBadge, key)).Err(); err != nil {
		c.log.Warn("site cache invalidate failed", zap.Error(err))
	}
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
