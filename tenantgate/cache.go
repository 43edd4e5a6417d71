package tenantgate

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// responseCache holds successful GET bodies for tenants that enable caching.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	limit   int
}

type cacheEntry struct {
	status  int
	body    []byte
	expires time.Time
}

func newResponseCache(limit int) *responseCache {
	return &responseCache{entries: make(map[string]cacheEntry), limit: limit}
}

func cacheKey(tenantID, url string, generation uint64) string {
	return tenantID + "\x00" + strconv.FormatUint(generation, 10) + "\x00" + url
}

func (c *responseCache) get(key string, now time.Time) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if !now.Before(e.expires) {
		delete(c.entries, key)
		return cacheEntry{}, false
	}
	return e, true
}

func (c *responseCache) put(key string, status int, body []byte, ttl time.Duration, now time.Time) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.limit {
		c.evict(now)
	}
	c.entries[key] = cacheEntry{status: status, body: body, expires: now.Add(ttl)}
}

// evict drops expired entries, then arbitrary ones until there is room.
// Callers hold mu.
func (c *responseCache) evict(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	for k := range c.entries {
		if len(c.entries) < c.limit {
			return
		}
		delete(c.entries, k)
	}
}

func (c *responseCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *responseCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// storable reports whether the response may be cached. Only an explicit
// no-store directive opts a response out.
func storable(h http.Header) bool {
	for _, v := range h.Values("Cache-Control") {
		for _, directive := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(directive), "no-store") {
				return false
			}
		}
	}
	return true
}
