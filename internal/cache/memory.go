package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryClient is a size-bounded in-process cache. When full, the
// oldest-inserted entry is dropped; reads do not refresh an entry's position.
// Overwriting a key counts as a fresh insertion.
type MemoryClient struct {
	mu      sync.Mutex
	order   *list.List // front = oldest
	entries map[string]*list.Element
	maxSize int
	now     func() time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryClient creates a new in-memory cache client.
func NewMemoryClient(maxSize int) *MemoryClient {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &MemoryClient{
		order:   list.New(),
		entries: make(map[string]*list.Element),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get retrieves a value from cache. Expired entries are removed lazily.
func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	e := el.Value.(*memoryEntry)
	if !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

// Set stores a value with a TTL, evicting oldest entries beyond capacity.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
	el := c.order.PushBack(&memoryEntry{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
	c.entries[key] = el

	for c.order.Len() > c.maxSize {
		c.removeElement(c.order.Front())
	}
	return nil
}

// Delete removes a value from cache.
func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
	return nil
}

// DeleteByPrefix removes all keys with the given prefix.
func (c *MemoryClient) DeleteByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(el)
		}
	}
	return nil
}

// Len returns the number of unexpired entries.
func (c *MemoryClient) Len(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for el := c.order.Front(); el != nil; el = el.Next() {
		if now.Before(el.Value.(*memoryEntry).expiresAt) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op for memory cache.
func (c *MemoryClient) Close() error {
	return nil
}

// removeElement must be called with the lock held.
func (c *MemoryClient) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*memoryEntry)
	delete(c.entries, e.key)
}
