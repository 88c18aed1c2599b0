// Package cache provides the two caching layers used for shop settings: an
// in-process otter cache (L1) and Redis holding JSON documents with a TTL (L2).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service is the L2 contract.
type Service interface {
	// GetJSON decodes the value at key into dst. It reports false, with a nil
	// error, when the key does not exist.
	GetJSON(ctx context.Context, key string, dst any) (bool, error)

	// SetJSON encodes value and stores it under key for ttl.
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error

	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	HealthCheck(ctx context.Context) error
	Close() error
}

var _ Service = (*RedisCache)(nil)

// RedisCache implements Service on a go-redis client. Every key is namespaced
// with prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an already connected client.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %q from cache: %w", key, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached %q: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q for cache: %w", key, err)
	}

	if err := c.client.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %q in cache: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = c.key(k)
	}

	if err := c.client.Del(ctx, namespaced...).Err(); err != nil {
		return fmt.Errorf("failed to delete %d cache keys: %w", len(keys), err)
	}
	return nil
}

// HealthCheck pings the server.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
