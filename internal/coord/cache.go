package coord

import (
	"sync"
	"time"
)

// cacheEntry pairs an aggregated response with its expiry.
type cacheEntry struct {
	response AggregatedResponse
	expires  time.Time
}

// responseCache holds aggregated responses keyed by request id for a
// bounded window, so a retried request never repeats remote work.
type responseCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// get returns the cached response for a request id if it has not
// expired.
func (c *responseCache) get(requestID string) (AggregatedResponse, bool) {
	c.mu.RLock()
	entry, ok := c.entries[requestID]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expires) {
		return AggregatedResponse{}, false
	}
	return entry.response, true
}

// put stores a response and opportunistically drops expired entries.
func (c *responseCache) put(requestID string, response AggregatedResponse) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, id)
		}
	}
	c.entries[requestID] = cacheEntry{response: response, expires: now.Add(c.ttl)}
}

// size returns the number of live plus expired entries held.
func (c *responseCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
