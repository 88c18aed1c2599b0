package cache

import (
	"fmt"
	"time"

	"github.com/maypok86/otter"
)

// MemoryCache is the in-process L1 layer: a bounded S3-FIFO cache (otter)
// whose entries expire after a fixed TTL.
type MemoryCache[V any] struct {
	store otter.Cache[string, V]
}

// NewMemoryCache creates an L1 cache holding at most capacity entries, each
// living for ttl.
func NewMemoryCache[V any](capacity int, ttl time.Duration) (*MemoryCache[V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache: capacity must be positive, got %d", capacity)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache: ttl must be positive, got %s", ttl)
	}

	store, err := otter.MustBuilder[string, V](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("cache: failed to build memory cache: %w", err)
	}

	return &MemoryCache[V]{store: store}, nil
}

// Get returns the cached value and whether it was present and unexpired.
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	return c.store.Get(key)
}

// Set stores value under key with the cache's TTL.
func (c *MemoryCache[V]) Set(key string, value V) {
	c.store.Set(key, value)
}

// Del evicts key.
func (c *MemoryCache[V]) Del(key string) {
	c.store.Delete(key)
}

// Close stops otter's background maintenance.
func (c *MemoryCache[V]) Close() {
	c.store.Close()
}
