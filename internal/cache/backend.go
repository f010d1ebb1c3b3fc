// Package cache provides the key/value backends the client layer persists
// small records in: wallet connections and resolved Lightning addresses.
package cache

import (
	"context"
	"time"
)

// Backend defines the interface for cache implementations
type Backend interface {
	// Get retrieves a value from the cache
	// Returns (value, found, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL; ttl <= 0 means no expiry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Close closes the cache connection
	Close() error
}

// Open returns a Redis backend when redisURL is set and an in-memory one
// otherwise.
func Open(redisURL, prefix string) (Backend, error) {
	if redisURL == "" {
		return NewMemoryBackend(10000, time.Minute), nil
	}
	return NewRedisBackend(redisURL, prefix)
}
