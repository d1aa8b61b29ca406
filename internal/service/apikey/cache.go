package apikey

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long a resolved key is trusted without a store check.
const DefaultTTL = 5 * time.Minute

type cacheEntry struct {
	projectID string
	expiresAt time.Time
}

// Cache maps API keys to project ids for a bounded time.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	// version advances on every invalidation so a lookup that started
	// before a revocation cannot repopulate the revoked key.
	version uint64
}

// NewCache returns an empty cache. A non-positive ttl selects DefaultTTL and
// a nil clock selects time.Now.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{entries: make(map[string]cacheEntry), ttl: ttl, now: now}
}

// Get returns the cached project id while the entry is fresh.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.projectID, true
}

// Version returns the invalidation counter. Pass it to SetIfCurrent after a
// store lookup.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// SetIfCurrent records key → projectID only when no Invalidate or Clear has
// run since version was read. It reports whether the entry was stored.
func (c *Cache) SetIfCurrent(key, projectID string, version uint64) bool {
	expires := c.now().Add(c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != version {
		return false
	}
	c.entries[key] = cacheEntry{projectID: projectID, expiresAt: expires}
	return true
}

// Invalidate drops one key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.version++
	c.mu.Unlock()
}

// Clear drops every key.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.version++
	c.mu.Unlock()
}

// Len reports the number of stored entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
