package group

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	versionKeyPrefix = "wikiforge:groups:ver:"
	entryKeyPrefix   = "wikiforge:groups:"

	// listSeparator joins group names in a cache value. Newlines cannot
	// appear in document names.
	listSeparator = "\n"
)

// RedisCache shares resolved memberships across requests and processes.
// Invalidation bumps a per-wiki version counter instead of scanning keys, so
// stale entries simply age out of Redis via their TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache with the given entry TTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) version(ctx context.Context, wikiID string) (string, error) {
	v, err := c.client.Get(ctx, versionKeyPrefix+strings.ToLower(wikiID)).Result()
	if err == redis.Nil {
		return "0", nil
	}
	return v, err
}

func (c *RedisCache) key(wikiID, version, member string) string {
	return entryKeyPrefix + strings.ToLower(wikiID) + ":" + version + ":" + member
}

// Get implements Cache. A cache error is treated as a miss.
func (c *RedisCache) Get(ctx context.Context, wikiID, member string) ([]string, bool) {
	ver, err := c.version(ctx, wikiID)
	if err != nil {
		slog.DebugContext(ctx, "group cache version lookup failed", "wiki", wikiID, "error", err)
		return nil, false
	}

	v, err := c.client.Get(ctx, c.key(wikiID, ver, member)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.DebugContext(ctx, "group cache read failed", "wiki", wikiID, "error", err)
		return nil, false
	}
	if v == "" {
		return nil, true
	}
	return strings.Split(v, listSeparator), true
}

// Set implements Cache. Failures are logged and ignored; the cache is an
// optimization, not a source of truth.
func (c *RedisCache) Set(ctx context.Context, wikiID, member string, groups []string) {
	ver, err := c.version(ctx, wikiID)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(wikiID, ver, member), strings.Join(groups, listSeparator), c.ttl).Err(); err != nil {
		slog.DebugContext(ctx, "group cache write failed", "wiki", wikiID, "error", err)
	}
}

// Invalidate implements Cache by bumping the wiki's version counter.
func (c *RedisCache) Invalidate(ctx context.Context, wikiID string) error {
	return c.client.Incr(ctx, versionKeyPrefix+strings.ToLower(wikiID)).Err()
}

var _ Cache = (*RedisCache)(nil)
