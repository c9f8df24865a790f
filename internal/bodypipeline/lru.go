package bodypipeline

import "sync"

// cachedBody holds a retrieved response body and whether it arrived
// base64-encoded.
type cachedBody struct {
	text   string
	base64 bool
}

// lruCache is a URL-keyed cache with fixed capacity and LRU eviction,
// built as a map plus an order slice — the same idiom
// internal/capture/internal-types.go's A11yCache/PerformanceStore use.
// No LRU library is a direct import anywhere in the example corpus, so
// this hand-rolled version matches that idiom rather than reaching for
// an unseen dependency.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]cachedBody
	order    []string // index 0 is LRU, last is MRU
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		entries:  make(map[string]cachedBody, capacity),
		order:    make([]string, 0, capacity),
	}
}

// get returns the cached body for url and promotes it to MRU on hit.
func (c *lruCache) get(url string) (cachedBody, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, ok := c.entries[url]
	if !ok {
		return cachedBody{}, false
	}
	c.promoteLocked(url)
	return body, true
}

// put inserts or updates url's body, evicting the LRU entry if at
// capacity.
func (c *lruCache) put(url string, body cachedBody) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[url]; exists {
		c.entries[url] = body
		c.promoteLocked(url)
		return
	}

	if c.capacity > 0 && len(c.entries) >= c.capacity {
		lru := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, lru)
	}

	c.entries[url] = body
	c.order = append(c.order, url)
}

// promoteLocked must be called with c.mu held; moves url to the tail
// (MRU position) of c.order.
func (c *lruCache) promoteLocked(url string) {
	for i, u := range c.order {
		if u == url {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, url)
}
