package client

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a bounded LRU cache with per-entry TTL. Correctness
// never depends on eviction order, only on the size bound.
type Cache struct {
	mu    sync.Mutex
	size  int
	ttl   time.Duration
	now   func() time.Time
	ll    *list.List
	items map[string]*list.Element
}

type cacheEntry struct {
	key     string
	value   any
	expires time.Time
}

// NewCache creates a cache holding at most size entries, each
// valid for ttl after insertion.
func NewCache(size int, ttl time.Duration) *Cache {
	if size < 1 {
		size = 1
	}
	return &Cache{
		size:  size,
		ttl:   ttl,
		now:   time.Now,
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached value for key, refreshing its recency.
// Expired entries count as misses and are dropped.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expires) {
		c.ll.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.value, true
}

// Put stores value under key, evicting the least recently used
// entry when the bound is exceeded.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expires = expires
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{
		key: key, value: value, expires: expires,
	})
	c.items[key] = el

	for c.ll.Len() > c.size {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of live entries, expired included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
