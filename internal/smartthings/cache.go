package smartthings

import (
	"sync"
	"time"
)

// statusCache is a TTL cache for device status payloads.
//
// Expiry is lazy: entries are checked against their deadline on read and
// dropped when stale. There is no background sweeper; the cache is small
// (one entry per device) and reads are frequent enough that stale entries
// never accumulate.
type statusCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry

	// now is swappable for tests.
	now func() time.Time
}

type cacheEntry struct {
	status    Status
	expiresAt time.Time
}

func newStatusCache(ttl time.Duration) *statusCache {
	return &statusCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached status for a device if present and fresh.
func (c *statusCache) Get(deviceID string) (Status, bool) {
	c.mu.RLock()
	entry, ok := c.entries[deviceID]
	c.mu.RUnlock()

	if !ok {
		return Status{}, false
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the entry.
		if cur, ok := c.entries[deviceID]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, deviceID)
		}
		c.mu.Unlock()
		return Status{}, false
	}

	return entry.status, true
}

// Set stores a status payload with a fresh TTL deadline.
func (c *statusCache) Set(deviceID string, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[deviceID] = cacheEntry{
		status:    status,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate removes a single device entry. Called after a successful
// command so the next read reflects post-command state.
func (c *statusCache) Invalidate(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, deviceID)
}

// Clear drops every entry.
func (c *statusCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries, including any not yet lazily expired.
func (c *statusCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
