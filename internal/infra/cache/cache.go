// Package cache provides a simple in-memory TTL cache and the in-process
// credential store built on it.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// InMemory is a thread-safe in-memory cache with per-entry TTL.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
	sweep time.Duration
	done  chan struct{}
	once  sync.Once
}

// New creates a new in-memory cache that drops expired entries every sweep.
func New[T any](sweep time.Duration) *InMemory[T] {
	c := &InMemory[T]{
		items: make(map[string]entry[T]),
		sweep: sweep,
		done:  make(chan struct{}),
	}
	// Background cleanup goroutine
	go c.cleanup()
	return c
}

// Get retrieves a value from the cache. Returns false if not found or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// SetWithTTL stores a value that expires after ttl. The whole entry is
// replaced under the write lock, so readers see either the old or the new value.
func (c *InMemory[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[T]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Stop ends the cleanup goroutine.
func (c *InMemory[T]) Stop() {
	c.once.Do(func() { close(c.done) })
}

// cleanup periodically removes expired entries.
func (c *InMemory[T]) cleanup() {
	interval := c.sweep
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		now := time.Now()
		for k, v := range c.items {
			if now.After(v.expiresAt) {
				delete(c.items, k)
			}
		}
		c.mu.Unlock()
	}
}
