package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	html      string
	expiresAt time.Time
}

// MemoryCache is a process-local Cache. When full, the entry closest to
// expiry is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]memoryEntry
	maxItems   int
	defaultTTL time.Duration
	closed     bool
	now        func() time.Time
}

// NewMemoryCache creates a cache holding at most maxItems entries
// (unbounded when maxItems <= 0).
func NewMemoryCache(maxItems int, defaultTTL time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &MemoryCache{
		items:      make(map[string]memoryEntry),
		maxItems:   maxItems,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrCacheClosed
	}
	e, ok := c.items[key]
	if !ok {
		return "", ErrCacheMiss
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.items, key)
		return "", ErrCacheMiss
	}
	return e.html, nil
}

func (c *MemoryCache) Set(_ context.Context, key, html string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evictLocked()
	}
	c.items[key] = memoryEntry{html: html, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	delete(c.items, key)
	return nil
}

// Len is the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.items = nil
	return nil
}

func (c *MemoryCache) evictLocked() {
	var (
		victim string
		soon   time.Time
	)
	for k, e := range c.items {
		if victim == "" || e.expiresAt.Before(soon) {
			victim, soon = k, e.expiresAt
		}
	}
	delete(c.items, victim)
}
