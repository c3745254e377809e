package cache

import (
	"sync"
	"time"
)

// Item represents a cached value with expiration
type Item[V any] struct {
	Value      V
	Expiration int64
}

// Cache is a thread-safe in-memory cache with a default TTL
type Cache[V any] struct {
	items map[string]Item[V]
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// New creates a new cache with the specified default TTL. Expired items are
// swept every sweep interval until Close is called; a zero sweep disables it.
func New[V any](ttl, sweep time.Duration) *Cache[V] {
	c := &Cache[V]{
		items: make(map[string]Item[V]),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}

	if sweep > 0 {
		go c.cleanup(sweep)
	}

	return c
}

// Set stores a value with the default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = Item[V]{
		Value:      value,
		Expiration: c.now().Add(ttl).UnixNano(),
	}
}

// Get retrieves a live value
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	item, found := c.items[key]
	if !found {
		return zero, false
	}

	if c.now().UnixNano() > item.Expiration {
		return zero, false
	}

	return item.Value, true
}

// GetOrSet retrieves a value or computes and stores it with fn.
// Errors from fn are returned and nothing is stored.
func (c *Cache[V]) GetOrSet(key string, fn func() (V, error)) (V, error) {
	if value, found := c.Get(key); found {
		return value, nil
	}

	value, err := fn()
	if err != nil {
		var zero V
		return zero, err
	}

	c.Set(key, value)
	return value, nil
}

// Delete removes a value
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Len counts stored items, expired ones included until swept
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the sweeper
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for key, item := range c.items {
		if now > item.Expiration {
			delete(c.items, key)
		}
	}
}

// cleanup removes expired items periodically
func (c *Cache[V]) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// Cache keys shared between components
const (
	KeyHost       = "host:summary"
	KeyContainers = "docker:containers"
)
