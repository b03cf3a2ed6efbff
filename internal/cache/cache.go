// Package cache stores rendered post HTML so repeat renders of an unchanged
// post skip the block renderer.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrCacheMiss is returned when a key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")
	// ErrCacheClosed is returned by operations on a closed cache.
	ErrCacheClosed = errors.New("cache is closed")
)

// Cache holds rendered HTML keyed by RenderKey.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores html; a ttl of zero uses the cache's default.
	Set(ctx context.Context, key, html string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// RenderKey identifies one version of a post. A save changes updatedAt, so
// stale entries are never read and simply expire.
func RenderKey(postID string, updatedAt time.Time) string {
	return postID + "@" + strconv.FormatInt(updatedAt.UnixNano(), 10)
}
