// Package cache stores crawl results between runs.
//
// Walking a whole filesystem for package.json files is by far the slowest
// part of a reuse pass, and the set of manifests under a root rarely changes
// between two invocations a few minutes apart. The crawler stores the sorted
// manifest list per root under a key from [CrawlKey]; entries expire after a
// TTL. Every candidate found through a cached manifest is re-checked on disk
// before it is used.
//
// [FileCache] is used by the CLI and [NullCache] disables caching.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
type Cache interface {
	// Get returns the stored value and whether it was found and not expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl <= 0 means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the cache.
	Close() error
}
