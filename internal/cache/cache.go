// Package cache keeps rendered site manifests in Redis so agent traffic does
// not hit the database on every fetch.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ManifestCache stores serialized manifests keyed by site id.
type ManifestCache interface {
	Get(ctx context.Context, siteID string) ([]byte, bool, error)
	Set(ctx context.Context, siteID string, body []byte) error
	Invalidate(ctx context.Context, siteID string) error
}

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis parses a redis:// URL and verifies the connection with a PING.
func NewRedis(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func manifestKey(siteID string) string {
	return "storefront:manifest:" + siteID
}

func (c *RedisCache) Get(ctx context.Context, siteID string) ([]byte, bool, error) {
	body, err := c.rdb.Get(ctx, manifestKey(siteID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get manifest: %w", err)
	}
	return body, true, nil
}

func (c *RedisCache) Set(ctx context.Context, siteID string, body []byte) error {
	if err := c.rdb.Set(ctx, manifestKey(siteID), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set manifest: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, siteID string) error {
	if err := c.rdb.Del(ctx, manifestKey(siteID)).Err(); err != nil {
		return fmt.Errorf("redis del manifest: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// Noop is used when no Redis URL is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error         { return nil }
func (Noop) Invalidate(context.Context, string) error          { return nil }
