package cache

import (
	"context"
	"time"
)

// Cache defines the key/value operations the datastore needs.
// This abstraction allows swapping between memory cache (development)
// and Redis cache (production) without changing the datastore.
type Cache interface {
	// Get retrieves a value by key. Returns ErrCacheMiss if not found or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A ttl <= 0 stores the value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteMany removes several keys at once.
	DeleteMany(ctx context.Context, keys ...string) error

	// Keys lists the keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Flush removes all entries from the cache, not only the datastore's.
	Flush(ctx context.Context) error

	// Ping checks the cache is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Common cache errors
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"

	// ErrUnavailable indicates the cache backend could not be reached.
	ErrUnavailable CacheError = "cache unavailable"
)
