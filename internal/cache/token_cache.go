package cache

import (
	"slices"
	"sync"
)

const (
	DefaultTokenCacheSize  = 100
	DefaultTokenEvictBatch = 20
)

// TokenCacheStats is a point-in-time view of a TokenCache.
type TokenCacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// TokenCache memoizes tokenizer output keyed by exact input text.
//
// The cache is bounded loosely: when it already holds more than maxEntries
// keys at insert time, the evictBatch oldest keys are dropped first. Keys
// are ordered by first insertion; re-putting a key does not refresh it.
type TokenCache struct {
	mu         sync.Mutex
	maxEntries int
	evictBatch int
	entries    map[string][]string
	order      []string

	hits      int64
	misses    int64
	evictions int64
}

// NewTokenCache creates a cache. Non-positive arguments select the defaults.
func NewTokenCache(maxEntries, evictBatch int) *TokenCache {
	if maxEntries <= 0 {
		maxEntries = DefaultTokenCacheSize
	}
	if evictBatch <= 0 {
		evictBatch = DefaultTokenEvictBatch
	}
	return &TokenCache{
		maxEntries: maxEntries,
		evictBatch: evictBatch,
		entries:    make(map[string][]string, maxEntries+1),
		order:      make([]string, 0, maxEntries+1),
	}
}

func (c *TokenCache) Get(text string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tokens, ok := c.entries[text]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return tokens, ok
}

func (c *TokenCache) Put(text string, tokens []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[text]; exists {
		c.entries[text] = tokens
		return
	}
	if len(c.entries) > c.maxEntries {
		c.evictLocked(c.evictBatch)
	}
	c.entries[text] = tokens
	c.order = append(c.order, text)
}

// Evict drops up to n of the oldest keys and returns how many were removed.
func (c *TokenCache) Evict(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(n)
}

func (c *TokenCache) evictLocked(n int) int {
	n = min(n, len(c.order))
	if n <= 0 {
		return 0
	}
	for _, key := range c.order[:n] {
		delete(c.entries, key)
	}
	c.order = slices.Delete(c.order, 0, n)
	c.evictions += int64(n)
	return n
}

func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TokenCache) Stats() TokenCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TokenCacheStats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Reset empties the cache and zeroes its counters.
func (c *TokenCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.order = c.order[:0]
	c.hits, c.misses, c.evictions = 0, 0, 0
}
