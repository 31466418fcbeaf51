package client

import (
	"sync"
	"time"
)

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *cacheEntry[T]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// recordCache is a thread-safe in-memory cache of decoded records keyed by
// record ID. Records never change once written, so the TTL only bounds
// memory; evict sweeps stale entries on writes.
type recordCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry[T]
	ttl     time.Duration
	limit   int
}

func newRecordCache[T any](ttl time.Duration, limit int) *recordCache[T] {
	return &recordCache[T]{
		entries: make(map[string]*cacheEntry[T]),
		ttl:     ttl,
		limit:   limit,
	}
}

func (c *recordCache[T]) get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *recordCache[T]) set(key string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.limit {
		c.evictLocked()
	}
	if len(c.entries) >= c.limit {
		return
	}
	c.entries[key] = &cacheEntry[T]{value: v, expiresAt: time.Now().Add(c.ttl)}
}

// evict removes all expired entries and reports how many were dropped.
func (c *recordCache[T]) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked()
}

func (c *recordCache[T]) evictLocked() int {
	now := time.Now()
	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *recordCache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
