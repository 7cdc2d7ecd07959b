package utils

import (
	"sync"
	"time"
)

// VectorCache is a bounded in-memory map of embedding vectors. When full, the
// least recently accessed item is evicted.
type VectorCache struct {
	mu       sync.Mutex
	items    map[string]CacheItem
	capacity int
	hits     int
	misses   int
}

type CacheItem struct {
	value      []float64
	hits       int
	lastAccess time.Time
}

type CacheStats struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	Hits     int     `json:"hits"`
	Misses   int     `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
}

func NewVectorCache(capacity int) *VectorCache {
	return &VectorCache{
		items:    make(map[string]CacheItem),
		capacity: capacity,
	}
}

// GetMany returns the cached vectors for keys and the keys that were missing.
func (c *VectorCache) GetMany(keys []string) (map[string][]float64, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := make(map[string][]float64, len(keys))
	missing := []string{}
	for _, key := range keys {
		item, exists := c.items[key]
		if !exists {
			missing = append(missing, key)
			c.misses += 1
			continue
		}

		c.hits += 1
		item.hits += 1
		item.lastAccess = time.Now()
		c.items[key] = item
		found[key] = item.value
	}
	return found, missing
}

func (c *VectorCache) Add(key string, value []float64) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.capacity {
		c.evictOldest()
	}
	c.items[key] = CacheItem{value: value, lastAccess: time.Now()}
}

func (c *VectorCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, item := range c.items {
		if oldestKey == "" || item.lastAccess.Before(oldest) {
			oldestKey = key
			oldest = item.lastAccess
		}
	}
	delete(c.items, oldestKey)
}

func (c *VectorCache) hitRate() float64 {
	if c.hits+c.misses > 0 {
		return float64(c.hits) / float64(c.hits+c.misses)
	}
	return 0.0
}

func (c *VectorCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Size:     len(c.items),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
		HitRate:  c.hitRate(),
	}
}
