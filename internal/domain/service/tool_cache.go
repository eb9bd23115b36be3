package service

import (
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
)

// ToolResultCache short-circuits repeated read-only tool calls within one
// turn: when the model re-reads the same pin, file, or URL with identical
// arguments inside the TTL, the cached result is returned without touching
// the transport again.
//
// Only read-only kinds are cached — replaying a gpio_write or save_memory
// from cache would silently skip its side effect — and failures are never
// cached, so a flaky serial read can succeed on retry.
type ToolResultCache struct {
	entries map[uint64]*cacheEntry
	mu      sync.RWMutex
	ttl     time.Duration
	maxSize int
}

type cacheEntry struct {
	output    string
	createdAt time.Time
}

// NewToolResultCache creates a cache with the given TTL and max entries.
func NewToolResultCache(ttl time.Duration, maxSize int) *ToolResultCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxSize <= 0 {
		maxSize = 100
	}
	return &ToolResultCache{
		entries: make(map[uint64]*cacheEntry, maxSize),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns a cached result if the tool is cacheable and an unexpired
// entry exists. Cached entries are always successful results.
func (c *ToolResultCache) Get(kind domaintool.Kind, toolName string, args map[string]interface{}) (output string, hit bool) {
	if !kind.ReadOnly() {
		return "", false
	}
	key := makeCacheKey(toolName, args)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return "", false
	}

	if time.Since(entry.createdAt) > c.ttl {
		// Expired — evict
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false
	}

	return entry.output, true
}

// Put stores a successful read-only tool result. Side-effecting kinds and
// failed results are dropped on the floor.
func (c *ToolResultCache) Put(kind domaintool.Kind, toolName string, args map[string]interface{}, output string, success bool) {
	if !kind.ReadOnly() || !success {
		return
	}
	key := makeCacheKey(toolName, args)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict oldest if at capacity
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &cacheEntry{
		output:    output,
		createdAt: time.Now(),
	}
}

// Clear empties the cache.
func (c *ToolResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*cacheEntry, c.maxSize)
}

// Size returns the number of entries in the cache.
func (c *ToolResultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// makeCacheKey hashes tool name + canonical args. json.Marshal sorts map
// keys, so the same arguments always produce the same key regardless of
// call-site map ordering.
func makeCacheKey(toolName string, args map[string]interface{}) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(toolName))
	_, _ = h.Write([]byte{0}) // separator
	if args != nil {
		argsBytes, _ := json.Marshal(args)
		_, _ = h.Write(argsBytes)
	}
	return h.Sum64()
}

// evictOldest removes the oldest entry from the cache.
func (c *ToolResultCache) evictOldest() {
	var oldestKey uint64
	var oldestTime time.Time
	found := false

	for k, v := range c.entries {
		if !found || v.createdAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = v.createdAt
			found = true
		}
	}

	if found {
		delete(c.entries, oldestKey)
	}
}
