package adapters

import (
	"context"
	"sync"
	"time"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
)

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	prev      *cacheEntry
	next      *cacheEntry
}

// LRUCache is an in-memory cache with a fixed capacity, least recently
// used eviction and optional per-entry TTL. Values are copied on both
// Set and Get so callers never share backing arrays with the cache.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*cacheEntry
	head     *cacheEntry
	tail     *cacheEntry
}

// NewLRUCache creates a cache holding at most capacity entries. A
// capacity below one falls back to one.
func NewLRUCache(capacity int) *LRUCache {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache{
		capacity: capacity,
		entries:  make(map[string]*cacheEntry, capacity),
	}
}

// Get returns the value stored under key. Expired entries are removed on
// access and reported as absent.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.removeEntry(entry)
		return nil, false
	}
	c.moveToFront(entry)
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true
}

// Set stores value under key, evicting the least recently used entry
// when the cache is full.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttlSeconds > 0 {
		expiresAt = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	if entry, ok := c.entries[key]; ok {
		entry.value = stored
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return nil
	}

	entry := &cacheEntry{key: key, value: stored, expiresAt: expiresAt}
	c.entries[key] = entry
	c.pushFront(entry)
	if len(c.entries) > c.capacity {
		c.removeEntry(c.tail)
	}
	return nil
}

// Delete removes the entry stored under key, if any.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.removeEntry(entry)
	}
	return nil
}

// Len reports the number of live entries, expired ones included until
// their next access.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *LRUCache) pushFront(entry *cacheEntry) {
	entry.prev = nil
	entry.next = c.head
	if c.head != nil {
		c.head.prev = entry
	}
	c.head = entry
	if c.tail == nil {
		c.tail = entry
	}
}

func (c *LRUCache) moveToFront(entry *cacheEntry) {
	if c.head == entry {
		return
	}
	c.unlink(entry)
	c.pushFront(entry)
}

func (c *LRUCache) removeEntry(entry *cacheEntry) {
	if entry == nil {
		return
	}
	c.unlink(entry)
	delete(c.entries, entry.key)
}

func (c *LRUCache) unlink(entry *cacheEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
	entry.prev = nil
	entry.next = nil
}

var _ agentports.Cache = (*LRUCache)(nil)
