package preset

import (
	"container/list"
	"time"
)

// #region cache
type cacheEntry struct {
	url      string
	content  string
	storedAt time.Time
}

// Cache is a bounded LRU of fetched preset content keyed by URL, with an
// absolute TTL measured from insertion. Reads refresh recency only.
// Not safe for concurrent use; the manager owns it.
type Cache struct {
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List
}

// NewCache creates a cache.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns cached content and marks it recently used.
func (c *Cache) Get(url string, now time.Time) (string, bool) {
	elem, ok := c.items[url]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && now.Sub(entry.storedAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.items, url)
		return "", false
	}
	c.order.MoveToFront(elem)
	return entry.content, true
}

// Contains reports a live entry without touching recency.
func (c *Cache) Contains(url string, now time.Time) bool {
	elem, ok := c.items[url]
	if !ok {
		return false
	}
	return c.ttl <= 0 || now.Sub(elem.Value.(*cacheEntry).storedAt) <= c.ttl
}

// Put inserts or replaces content, evicting the least recently used entry.
func (c *Cache) Put(url, content string, now time.Time) {
	if elem, ok := c.items[url]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.content = content
		entry.storedAt = now
		return
	}
	c.items[url] = c.order.PushFront(&cacheEntry{url: url, content: content, storedAt: now})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).url)
	}
}

// Invalidate drops url.
func (c *Cache) Invalidate(url string) {
	if elem, ok := c.items[url]; ok {
		c.order.Remove(elem)
		delete(c.items, url)
	}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return c.order.Len()
}

// #endregion cache
