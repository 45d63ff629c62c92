// Package cache provides an in-memory LRU cache with per-entry TTL.
//
// Key conventions used across the service:
//
//	payment:{id}       cached payment status
//	split:master:{id}  split master aggregation state
//	split:retry:{id}   pending retry metadata for a distribution
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key          string
	value        any
	createdAt    time.Time
	expiresAt    time.Time
	lastAccessed time.Time
	listElement  *list.Element // For LRU tracking
}

// Stats represents cache performance metrics
type Stats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	TTLExpiries int64   `json:"ttl_expiries"`
	HitRatio    float64 `json:"hit_ratio"`
}

// Cache is an in-memory LRU cache with per-entry TTL
type Cache struct {
	entries     map[string]*entry
	accessOrder *list.List // Most recent at front
	maxSize     int
	mu          sync.RWMutex

	// Stats tracking
	hits        int64
	misses      int64
	evictions   int64
	ttlExpiries int64
}

// New creates a new in-memory cache bounded to maxSize entries
func New(maxSize int) *Cache {
	return &Cache{
		entries:     make(map[string]*entry),
		accessOrder: list.New(),
		maxSize:     maxSize,
	}
}

// Get retrieves a value from cache, returns false if not found or expired
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		c.misses++
		return nil, false
	}

	// Check TTL expiry
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.deleteEntryUnsafe(key, e)
		c.ttlExpiries++
		c.misses++
		return nil, false
	}

	// Move to front (most recently used)
	e.lastAccessed = time.Now()
	c.accessOrder.MoveToFront(e.listElement)

	c.hits++
	return e.value, true
}

// Set stores a value with the given TTL; ttl <= 0 means no expiry
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	now := time.Now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.entries[key]; exists {
		existing.value = value
		existing.createdAt = now
		existing.expiresAt = expiresAt
		existing.lastAccessed = now
		c.accessOrder.MoveToFront(existing.listElement)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRUUnsafe()
	}

	e := &entry{
		key:          key,
		value:        value,
		createdAt:    now,
		expiresAt:    expiresAt,
		lastAccessed: now,
	}
	e.listElement = c.accessOrder.PushFront(e)
	c.entries[key] = e
}

// Delete removes a key from cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, exists := c.entries[key]; exists {
		c.deleteEntryUnsafe(key, e)
	}
}

// Clear removes all entries from cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.accessOrder = list.New()
}

// Size returns the current number of cached entries
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalRequests := c.hits + c.misses
	hitRatio := 0.0
	if totalRequests > 0 {
		hitRatio = float64(c.hits) / float64(totalRequests)
	}

	return Stats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		TTLExpiries: c.ttlExpiries,
		HitRatio:    hitRatio,
	}
}

// Cleanup removes expired entries
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expiredKeys []string

	for key, e := range c.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			expiredKeys = append(expiredKeys, key)
		}
	}

	for _, key := range expiredKeys {
		if e, exists := c.entries[key]; exists {
			c.deleteEntryUnsafe(key, e)
			c.ttlExpiries++
		}
	}
}

// evictLRUUnsafe removes the least recently used entry (must be called with lock held)
func (c *Cache) evictLRUUnsafe() {
	lruElement := c.accessOrder.Back()
	if lruElement == nil {
		return
	}

	lruEntry := lruElement.Value.(*entry)
	c.deleteEntryUnsafe(lruEntry.key, lruEntry)
	c.evictions++
}

// deleteEntryUnsafe removes an entry from both map and list (must be called with lock held)
func (c *Cache) deleteEntryUnsafe(key string, e *entry) {
	delete(c.entries, key)
	if e.listElement != nil {
		c.accessOrder.Remove(e.listElement)
	}
}
