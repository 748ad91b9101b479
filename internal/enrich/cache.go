package enrich

import (
	"container/list"
	"sync"
	"time"
)

// no pack library supplies a bounded LRU; container/list plus a map is
// the standard idiom for one, so this is hand-rolled rather than a
// stdlib-avoidance shortcut.

type cacheEntry struct {
	fingerprint string
	expiresAt   time.Time
}

// FingerprintCache is a bounded LRU cache keyed by content fingerprint,
// per spec.md §5's "LLM cache: a bounded LRU (default 4096 entries)...
// eviction is safe to lose." Entries also expire after a fixed TTL
// (default 24h per spec.md §4.3) independent of LRU pressure.
type FingerprintCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	index    map[string]*list.Element
	now      func() time.Time
}

// NewFingerprintCache constructs a cache with the given capacity and
// TTL. A non-positive capacity defaults to 4096; a non-positive ttl
// defaults to 24 hours.
func NewFingerprintCache(capacity int, ttl time.Duration) *FingerprintCache {
	if capacity <= 0 {
		capacity = 4096
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FingerprintCache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Hit reports whether fingerprint is a live cache entry, promoting it to
// most-recently-used on a hit.
func (c *FingerprintCache) Hit(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[fingerprint]
	if !ok {
		return false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.index, fingerprint)
		return false
	}
	c.ll.MoveToFront(el)
	return true
}

// Put records fingerprint as seen, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *FingerprintCache) Put(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[fingerprint]; ok {
		el.Value.(*cacheEntry).expiresAt = c.now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*cacheEntry).fingerprint)
		}
	}

	entry := &cacheEntry{fingerprint: fingerprint, expiresAt: c.now().Add(c.ttl)}
	el := c.ll.PushFront(entry)
	c.index[fingerprint] = el
}

// Len returns the current entry count, including any not-yet-swept
// expired entries.
func (c *FingerprintCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
