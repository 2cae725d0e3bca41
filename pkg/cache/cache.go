package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type CacheProvider interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ImageKey is the cache key of a session's settled watermarked PNG.
func ImageKey(sessionID string) string {
	return "custom404:image:" + sessionID
}

// NewRedisClient returns a client for one node or a cluster, depending on
// how many addresses are given.
func NewRedisClient(addrs []string, password string, db int) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: password,
		DB:       db,
	})
}
