// Package cache stores compiled graphs between CLI runs.
//
// Entries are opaque byte slices addressed by keys from a [Keyer]. The
// pipeline caches the exported JSON of a partitioned (and optionally
// unfolded) graph under a key derived from the input document and the pass
// options, so re-running the same compile is a file read.
//
// Two implementations are provided: [FileCache] for the CLI and [NullCache]
// to disable caching.
package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// Cache is a byte store with optional expiry.
type Cache interface {
	// Get returns the value stored under key and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error
}

// DefaultDir returns the cache directory used by the CLI:
// $XDG_CACHE_HOME/gepart, or the platform equivalent.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "gepart"), nil
}
