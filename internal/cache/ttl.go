// Package cache provides the TTL cache fronting enrichment calls, so a
// token enriched earlier in a cycle (or a recent one) does not trigger a
// second provider call.
package cache

import (
	"sync"
	"time"

	"github.com/tokenscout/tokenscout/internal/providers"
)

// Stats reports cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// TTLCache stores adapter partial records keyed by provider + token key
// with per-entry expiry and LRU eviction at capacity.
type TTLCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	stats      Stats
}

type entry struct {
	record   providers.PartialRecord
	expires  time.Time
	accessed time.Time
}

// New creates a cache bounded to maxEntries records.
func New(maxEntries int) *TTLCache {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &TTLCache{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
	}
}

func cacheKey(provider, tokenKey string) string {
	return provider + "/" + tokenKey
}

// Get returns a cached record if present and unexpired.
func (c *TTLCache) Get(provider, tokenKey string) (providers.PartialRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey(provider, tokenKey)]
	if !ok || time.Now().After(e.expires) {
		if ok {
			delete(c.entries, cacheKey(provider, tokenKey))
		}
		c.stats.Misses++
		return providers.PartialRecord{}, false
	}

	e.accessed = time.Now()
	c.stats.Hits++
	return e.record, true
}

// Set stores a record under provider + token key for ttl.
func (c *TTLCache) Set(provider, tokenKey string, rec providers.PartialRecord, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}

	now := time.Now()
	c.entries[cacheKey(provider, tokenKey)] = &entry{
		record:   rec,
		expires:  now.Add(ttl),
		accessed: now,
	}
}

// evictLRU removes the least recently accessed entry. Caller holds mu.
func (c *TTLCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.accessed.Before(oldest) {
			oldestKey = k
			oldest = e.accessed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}

// Stats returns a snapshot of the cache counters.
func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}
