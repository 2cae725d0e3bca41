package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/CodeTease/custom404/pkg/metrics"
)

// Ensure MemoryCache implements CacheProvider
var _ CacheProvider = (*MemoryCache)(nil)

type MemoryCache struct {
	cache      *ristretto.Cache
	defaultTTL time.Duration
}

// NewMemoryCache bounds the cache by item count, or by total bytes when
// limitBytes is positive.
func NewMemoryCache(size int, limitBytes int64, defaultTTL time.Duration) *MemoryCache {
	var maxCost int64
	var numCounters int64

	if limitBytes > 0 {
		maxCost = limitBytes
		// Settled PNGs are typically tens of kilobytes
		estimatedItems := limitBytes / 10240
		if estimatedItems < 100 {
			estimatedItems = 100
		}
		numCounters = estimatedItems * 10
	} else {
		maxCost = int64(size)
		if maxCost <= 0 {
			maxCost = 100
		}
		numCounters = maxCost * 10
	}

	// Cost is the item count or the value bytes, without ristretto's
	// per-item overhead.
	config := &ristretto.Config{
		NumCounters:        numCounters,
		MaxCost:            maxCost,
		BufferItems:        64,
		Metrics:            false,
		IgnoreInternalCost: true,
	}

	if limitBytes > 0 {
		config.Cost = func(value interface{}) int64 {
			if val, ok := value.([]byte); ok {
				return int64(len(val))
			}
			return 1
		}
	} else {
		config.Cost = func(value interface{}) int64 {
			return 1
		}
	}

	cache, err := ristretto.NewCache(config)
	if err != nil {
		// Only reachable with a bad config at startup
		panic(err)
	}

	return &MemoryCache{
		cache:      cache,
		defaultTTL: defaultTTL,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, found := c.cache.Get(key)
	if !found {
		metrics.CacheOpsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	if data, ok := val.([]byte); ok {
		metrics.CacheOpsTotal.WithLabelValues("hit").Inc()
		return data, true
	}
	return nil, false
}

// Set stores value. A zero ttl uses the cache default. The write is visible
// to Get once Set returns.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	c.cache.SetWithTTL(key, value, 0, ttl)
	c.cache.Wait()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.cache.Del(key)
	return nil
}

func (c *MemoryCache) Close() {
	c.cache.Close()
}
