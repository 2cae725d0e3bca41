package cache

import (
	"context"
	"time"
)

// Ensure TieredCache implements CacheProvider
var _ CacheProvider = (*TieredCache)(nil)

// TieredCache reads through L1 to an optional L2 and writes to both.
type TieredCache struct {
	L1 CacheProvider // Memory
	L2 CacheProvider // Redis
}

func NewTieredCache(l1, l2 CacheProvider) *TieredCache {
	return &TieredCache{
		L1: l1,
		L2: l2,
	}
}

func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if val, found := c.L1.Get(ctx, key); found {
		return val, true
	}

	if c.L2 != nil {
		if val, found := c.L2.Get(ctx, key); found {
			// Backfill with the L1 default TTL
			_ = c.L1.Set(ctx, key, val, 0)
			return val, true
		}
	}

	return nil, false
}

func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = c.L1.Set(ctx, key, value, ttl)

	if c.L2 != nil {
		return c.L2.Set(ctx, key, value, ttl)
	}

	return nil
}

func (c *TieredCache) Delete(ctx context.Context, key string) error {
	_ = c.L1.Delete(ctx, key)
	if c.L2 != nil {
		return c.L2.Delete(ctx, key)
	}
	return nil
}
