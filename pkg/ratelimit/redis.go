package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set of request timestamps.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local window_start = now - tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)
	if count < limit then
		-- Requests in the same microsecond count once
		redis.call('ZADD', key, now, now)
		redis.call('EXPIRE', key, tonumber(ARGV[4]))
		return 1
	end

	return 0
`)

// RedisLimiter shares the refresh limit across instances.
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, limit int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: time.Second,
	}
}

func (r *RedisLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	now := time.Now().UnixMicro()
	expireSeconds := int(r.window.Seconds()) + 1

	val, err := slidingWindow.Run(ctx, r.client, []string{"custom404:ratelimit:" + key},
		r.limit, now, r.window.Microseconds(), expireSeconds).Int()
	if err != nil {
		// Fail open if Redis fails
		slog.Debug("Rate limiter unavailable", "error", err)
		return true
	}

	return val == 1
}
