package schema

import (
	"container/list"
	"encoding/json"
	"sync"

	"github.com/nexusgate/oauth-llm-nexus/internal/cryptoutil"
)

// maxCacheSize is the LRU eviction threshold (spec §3 SchemaCacheEntry,
// §8 invariant 8). Grounded on original_source's schema_cache.rs
// MAX_CACHE_SIZE constant.
const maxCacheSize = 1000

type cacheEntry struct {
	key      string
	schema   interface{}
	hitCount int
}

// Cache is the (tool_name, schema_hash) memoization layer in front of
// Clean. It is safe for concurrent use; per spec §5's deadlock-avoidance
// note the write lock is never held while the (potentially expensive)
// cleaner runs — see GetOrClean.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element // key -> element in order (front = most recent)
	order    *list.List
	requests int64
	hits     int64
	misses   int64
}

// NewCache returns an empty schema cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Stats mirrors the original's CacheStats (schema_cache.rs).
type Stats struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRate       float64 `json:"hit_rate"`
	Size          int     `json:"size"`
}

func cacheKey(toolName string, rawSchema []byte) string {
	return toolName + ":" + cryptoutil.HashSchemaKey(rawSchema)
}

// GetOrClean returns the cleaned schema for (toolName, rawSchema), running
// Clean at most once per distinct (tool_name, normalized_schema) pair
// across the process lifetime, subject to LRU eviction.
//
// The write lock is released before Clean runs (cleaning can be
// arbitrarily deep) and re-acquired only to install the result, per the
// spec's deadlock-avoidance contract; a second caller racing on the same
// key simply cleans twice and the second write wins, which is harmless
// since Clean is pure and deterministic.
func (c *Cache) GetOrClean(decoded interface{}, toolName string) interface{} {
	raw, _ := json.Marshal(decoded)
	key := cacheKey(toolName, raw)

	c.mu.Lock()
	c.requests++
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		entry.hitCount++
		c.hits++
		result := entry.schema
		c.mu.Unlock()
		return cloneValue(result)
	}
	c.misses++
	c.mu.Unlock()

	cleaned := Clean(decoded, toolName)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		// Another goroutine installed it first; keep the existing entry.
		c.order.MoveToFront(el)
		return cloneValue(el.Value.(*cacheEntry).schema)
	}
	if c.order.Len() >= maxCacheSize {
		c.evictLRU()
	}
	el := c.order.PushFront(&cacheEntry{key: key, schema: cleaned})
	c.entries[key] = el
	return cloneValue(cleaned)
}

func (c *Cache) evictLRU() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.entries, oldest.Value.(*cacheEntry).key)
}

// Stats returns a snapshot of hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		TotalRequests: c.requests,
		CacheHits:     c.hits,
		CacheMisses:   c.misses,
		Size:          c.order.Len(),
	}
	if c.requests > 0 {
		s.HitRate = float64(c.hits) / float64(c.requests)
	}
	return s
}

// Clear empties the cache and resets counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order = list.New()
	c.requests, c.hits, c.misses = 0, 0, 0
}

func cloneValue(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
