package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
)

// hashKey generates a cache key by hashing the components.
// The key format is: prefix:hash(parts...)
func hashKey(prefix string, parts ...interface{}) string {
	data, _ := json.Marshal(parts)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(hash[:]))
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// CrawlKey returns the key under which the manifest list of root is cached.
// The exclusion set is part of the key so that changing the configured
// exclusions never serves a list built under different rules. Order of
// excludes does not matter.
func CrawlKey(root, installDir string, excludes []string) string {
	sorted := slices.Clone(excludes)
	slices.Sort(sorted)
	return hashKey("crawl", filepath.Clean(root), installDir, sorted)
}
