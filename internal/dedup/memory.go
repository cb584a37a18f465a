package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache used in tests and single-node setups
// where Redis is not available. Expiry is checked lazily on read.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (c *MemoryCache) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.entries[messageID]
	if !ok {
		return false, nil
	}
	if c.now().After(expiry) {
		delete(c.entries, messageID)
		return false, nil
	}
	return true, nil
}

func (c *MemoryCache) MarkProcessed(ctx context.Context, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[messageID] = c.now().Add(c.ttl)
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
