package services

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	"golang.org/x/time/rate"
)

const localLimiterSize = 10000

// RateLimiter counts attempts per key in a fixed window kept in the shared
// cache. When the cache is unreachable it degrades to a per-process token
// bucket with the same average rate.
type RateLimiter struct {
	cache  providers.CacheProvider
	prefix string
	limit  int
	window time.Duration

	mu    sync.Mutex
	local *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter allows limit attempts per window for each key
func NewRateLimiter(cache providers.CacheProvider, prefix string, limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		cache:  cache,
		prefix: prefix,
		limit:  limit,
		window: window,
		local:  expirable.NewLRU[string, *rate.Limiter](localLimiterSize, nil, window),
	}
}

// Allow records an attempt for key and reports whether it is within the limit
func (l *RateLimiter) Allow(ctx context.Context, key string) bool {
	if l.cache != nil {
		count, err := l.cache.Increment(ctx, "ratelimit:"+l.prefix+":"+key, int(l.window.Seconds()))
		if err == nil {
			return count <= int64(l.limit)
		}
		log.Warn().Err(err).Str("limiter", l.prefix).Msg("Rate limit cache unavailable, using local limiter")
	}
	return l.localLimiter(key).Allow()
}

// RetryAfter is the window length, reported to throttled clients
func (l *RateLimiter) RetryAfter() time.Duration {
	return l.window
}

func (l *RateLimiter) localLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.local.Get(key); ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)
	l.local.Add(key, limiter)
	return limiter
}
