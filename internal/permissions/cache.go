package permissions

import (
	"sync"
	"time"
)

// decisionCache holds recent (user, permission) -> bool decisions. Entries
// are advisory only: the bounded TTL caps how long a stale decision can
// outlive a role or grant change, and the store remains the source of truth.
// When the cache grows past its size cap the oldest quarter of entries is
// evicted.
type decisionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]decisionEntry
	order   []string

	now func() time.Time
}

type decisionEntry struct {
	allowed bool
	addedAt time.Time
}

func newDecisionCache(ttl time.Duration, maxSize int) *decisionCache {
	return &decisionCache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]decisionEntry),
		now:     time.Now,
	}
}

func (c *decisionCache) get(key string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if c.now().Sub(entry.addedAt) > c.ttl {
		delete(c.entries, key)
		return false, false
	}
	return entry.allowed, true
}

// set stores a decision. Concurrent writers for the same key race benignly:
// last write wins and both converge to the same storage-backed answer.
func (c *decisionCache) set(key string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictOldestQuarter()
	}
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = decisionEntry{allowed: allowed, addedAt: c.now()}
}

func (c *decisionCache) evictOldestQuarter() {
	drop := len(c.entries) / 4
	if drop == 0 {
		drop = 1
	}
	kept := c.order[:0]
	for _, key := range c.order {
		if drop > 0 {
			if _, ok := c.entries[key]; ok {
				delete(c.entries, key)
				drop--
				continue
			}
			continue
		}
		if _, ok := c.entries[key]; ok {
			kept = append(kept, key)
		}
	}
	c.order = append([]string(nil), kept...)
}

func (c *decisionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
