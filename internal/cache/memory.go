package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultMemoryCleanupInterval = time.Minute

// MemoryCache is an in-memory implementation of Cache.
// Use this for development/testing or single-instance deployments.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates a new in-memory cache with automatic cleanup.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultMemoryCleanupInterval
	}
	return &MemoryCache{
		items: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Get retrieves a value by key.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	item, ok := c.items.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	body, ok := item.([]byte)
	if !ok {
		return nil, ErrCacheMiss
	}

	result := make([]byte, len(body))
	copy(result, body)
	return result, nil
}

// Set stores a value with the given TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	c.items.Set(key, valueCopy, ttl)
	return nil
}

// Delete removes a value by key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.items.Delete(key)
	return nil
}

// DeleteMany removes several keys.
func (c *MemoryCache) DeleteMany(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		c.items.Delete(key)
	}
	return nil
}

// Keys lists the unexpired keys starting with prefix.
func (c *MemoryCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	// Items already skips expired entries.
	items := c.items.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Flush removes all entries from the cache.
func (c *MemoryCache) Flush(ctx context.Context) error {
	c.items.Flush()
	return nil
}

// Ping always succeeds for the in-process cache.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op; the janitor goroutine stops when the cache is collected.
func (c *MemoryCache) Close() error {
	return nil
}

var _ Cache = (*MemoryCache)(nil)
