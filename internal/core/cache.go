package core

// cache.go holds completed merge artifacts keyed by the content fingerprint
// of the source set. Re-uploading the same files in the same order hits the
// cache and skips the whole merge. The cache is explicit state with
// explicit invalidation, bounded by both entry count and age.

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cached artifact stays valid.
const DefaultCacheTTL = 15 * time.Minute

// DefaultCacheMaxEntries bounds the number of cached artifacts.
const DefaultCacheMaxEntries = 32

type cacheEntry struct {
	result   *JobResult
	storedAt time.Time
}

// ResultCache is a fingerprint-keyed cache of finished merge results.
type ResultCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*cacheEntry
}

// NewResultCache creates a cache with the given TTL and capacity.
// Non-positive arguments fall back to the defaults.
func NewResultCache(ttl time.Duration, maxEntries int) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &ResultCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
	}
}

// Get returns the cached result for a fingerprint, if present and fresh.
// Expired entries are dropped on access.
func (c *ResultCache) Get(fingerprint string) (*JobResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		delete(c.entries, fingerprint)
		return nil, false
	}
	return entry.result, true
}

// Put stores a result under its fingerprint. When the cache is full the
// oldest entry is evicted first.
func (c *ResultCache) Put(fingerprint string, result *JobResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[fingerprint]; !ok && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[fingerprint] = &cacheEntry{result: result, storedAt: time.Now()}
}

// Invalidate removes the entry for a fingerprint. Reports whether an entry
// was present.
func (c *ResultCache) Invalidate(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[fingerprint]
	delete(c.entries, fingerprint)
	return ok
}

// Purge drops every entry and returns how many were removed.
func (c *ResultCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*cacheEntry)
	return n
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldestLocked removes the entry with the oldest store time.
// Caller holds c.mu.
func (c *ResultCache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range c.entries {
		if oldestKey == "" || entry.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
