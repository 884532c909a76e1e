package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ObiAU/otprelay/internal/storage"
)

// Cache is the set of message identities already delivered. The whole set is
// held in memory and every new mark is written through to the store before
// MarkDelivered returns. Entries are never evicted.
type Cache struct {
	mu        sync.RWMutex
	store     storage.Store
	delivered map[string]time.Time
	loadedAt  time.Time
}

func New(ctx context.Context, store storage.Store) (*Cache, error) {
	c := &Cache{
		store:     store,
		delivered: make(map[string]time.Time),
		loadedAt:  time.Now(),
	}

	err := store.ForEach(ctx, storage.BucketDelivered, func(key string, value []byte) error {
		var at time.Time
		if sec, err := strconv.ParseInt(string(value), 10, 64); err == nil {
			at = time.Unix(sec, 0)
		}
		c.delivered[key] = at
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load delivered set: %w", err)
	}

	return c, nil
}

func (c *Cache) HasBeenDelivered(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exists := c.delivered[key]
	return exists
}

// MarkDelivered records key as delivered. Marking an existing key is a no-op.
// If the write fails the key is still remembered for this process, and the
// error is returned so the caller can log it.
func (c *Cache) MarkDelivered(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.delivered[key]; exists {
		return nil
	}

	now := time.Now()
	c.delivered[key] = now

	if err := c.store.Put(ctx, storage.BucketDelivered, key, []byte(strconv.FormatInt(now.Unix(), 10))); err != nil {
		return fmt.Errorf("failed to persist delivered key: %w", err)
	}
	return nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.delivered)
}

func (c *Cache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"delivered": len(c.delivered),
		"loaded_at": c.loadedAt.Format(time.RFC3339),
	}
}
