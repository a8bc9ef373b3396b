// Package cache keeps recently computed query embeddings in memory.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a size-bounded vector cache with per-entry expiry.
type LRUCache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*entry
	order *list.List // front is most recently used
}

type entry struct {
	key       string
	vector    []float32
	expiresAt time.Time
	element   *list.Element
}

// NewLRUCache creates a cache. Non-positive arguments use 1000 entries and 5 minutes.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*entry),
		order:    list.New(),
	}
}

func (c *LRUCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.remove(e)
		return nil, false
	}
	c.order.MoveToFront(e.element)
	return e.vector, true
}

func (c *LRUCache) Set(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.vector = vector
		e.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.items) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*entry))
	}

	e := &entry{key: key, vector: vector, expiresAt: c.now().Add(c.ttl)}
	e.element = c.order.PushFront(e)
	c.items[key] = e
}

func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// must be called with c.mu held
func (c *LRUCache) remove(e *entry) {
	c.order.Remove(e.element)
	delete(c.items, e.key)
}
