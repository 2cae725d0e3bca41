package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more refresh from key is allowed now.
type Limiter interface {
	Allow(key string) bool
}

type MemoryLimiter struct {
	limiters *expirable.LRU[string, *rate.Limiter]
	r        rate.Limit
	b        int
	mu       sync.Mutex
}

func NewMemoryLimiter(requestsPerSecond int, size int, ttl time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
		r:        rate.Limit(requestsPerSecond),
		b:        requestsPerSecond, // burst equals limit
	}
}

func (m *MemoryLimiter) Allow(key string) bool {
	limiter, exists := m.limiters.Get(key)
	if !exists {
		m.mu.Lock()
		limiter, exists = m.limiters.Get(key)
		if !exists {
			limiter = rate.NewLimiter(m.r, m.b)
			m.limiters.Add(key, limiter)
		}
		m.mu.Unlock()
	}
	return limiter.Allow()
}
