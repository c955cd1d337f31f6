// Package cache provides a bounded LRU cache.
package cache

import (
	"sync"
)

// Options configures the LRU cache.
type Options[K comparable, V any] struct {
	// MaxSize is the maximum number of entries.
	// 0 means unlimited.
	MaxSize int
}

// Stats reports cache usage.
type Stats struct {
	Length    int   `json:"length"`
	HitCount  int64 `json:"hit_count"`
	MissCount int64 `json:"miss_count"`
	Evictions int64 `json:"evictions"`
}

// HitRate returns the share of lookups that hit.
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

// LRU is an in-memory least-recently-used cache. It is safe for concurrent
// use.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]*item[K, V]
	lru     list[K, V]
	maxSize int
	stats   Stats
}

type item[K comparable, V any] struct {
	key   K
	value V
	prev  *item[K, V]
	next  *item[K, V]
}

// list is a doubly-linked list, most recently used at head.
type list[K comparable, V any] struct {
	head *item[K, V]
	tail *item[K, V]
	len  int
}

func (l *list[K, V]) pushFront(it *item[K, V]) {
	it.prev = nil
	it.next = l.head
	if l.head != nil {
		l.head.prev = it
	}
	l.head = it
	if l.tail == nil {
		l.tail = it
	}
	l.len++
}

func (l *list[K, V]) remove(it *item[K, V]) {
	if it.prev != nil {
		it.prev.next = it.next
	} else {
		l.head = it.next
	}
	if it.next != nil {
		it.next.prev = it.prev
	} else {
		l.tail = it.prev
	}
	it.prev, it.next = nil, nil
	l.len--
}

func (l *list[K, V]) moveToFront(it *item[K, V]) {
	if it == l.head {
		return
	}
	l.remove(it)
	l.pushFront(it)
}

// New creates a new LRU cache with the given options.
func New[K comparable, V any](opts Options[K, V]) *LRU[K, V] {
	return &LRU[K, V]{
		items:   make(map[K]*item[K, V]),
		maxSize: opts.MaxSize,
	}
}

// Get retrieves a value from the cache.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, found := c.items[key]
	if !found {
		c.stats.MissCount++
		var zero V
		return zero, false
	}
	c.stats.HitCount++
	c.lru.moveToFront(it)
	return it.value, true
}

// Set stores a value in the cache, evicting the least recently used entry
// when the cache is full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it, exists := c.items[key]; exists {
		it.value = value
		c.lru.moveToFront(it)
		return
	}

	it := &item[K, V]{key: key, value: value}
	c.items[key] = it
	c.lru.pushFront(it)

	for c.maxSize > 0 && c.lru.len > c.maxSize {
		back := c.lru.tail
		c.lru.remove(back)
		delete(c.items, back.key)
		c.stats.Evictions++
	}
}

// GetOrCompute returns the cached value for key, computing and storing it
// on a miss. compute runs without the cache lock held, so concurrent misses
// on the same key may compute it more than once.
func (c *LRU[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Stats returns the current cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Length = len(c.items)
	return s
}
