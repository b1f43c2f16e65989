package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
)

type lruEntry struct {
	value     []byte
	expiresAt time.Time
}

// LRUAdapter is an in-process CacheProvider used when Redis is disabled or
// unreachable. Entries are bounded by count and by a ceiling TTL; each
// entry also honours its own expiration.
type LRUAdapter struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, lruEntry]
	now   func() time.Time
}

// NewLRUAdapter creates an in-process cache holding at most size entries
// for no longer than maxTTL
func NewLRUAdapter(size int, maxTTL time.Duration) *LRUAdapter {
	if size <= 0 {
		size = 1000
	}
	return &LRUAdapter{
		cache: expirable.NewLRU[string, lruEntry](size, nil, maxTTL),
		now:   time.Now,
	}
}

func (a *LRUAdapter) lookup(key string) (lruEntry, bool) {
	entry, ok := a.cache.Get(key)
	if !ok {
		return lruEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !a.now().Before(entry.expiresAt) {
		a.cache.Remove(key)
		return lruEntry{}, false
	}
	return entry, true
}

func (a *LRUAdapter) expiry(seconds int) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return a.now().Add(time.Duration(seconds) * time.Second)
}

// Get retrieves a value from cache
func (a *LRUAdapter) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", providers.ErrCacheMiss, key)
	}
	return entry.value, nil
}

// Set stores a value in cache with expiration
func (a *LRUAdapter) Set(_ context.Context, key string, value []byte, expirationSeconds int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cache.Add(key, lruEntry{value: value, expiresAt: a.expiry(expirationSeconds)})
	return nil
}

// Delete removes a value from cache
func (a *LRUAdapter) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cache.Remove(key)
	return nil
}

// Exists checks if a key exists in cache
func (a *LRUAdapter) Exists(_ context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.lookup(key)
	return ok, nil
}

// Increment bumps a fixed-window counter held in memory
func (a *LRUAdapter) Increment(_ context.Context, key string, windowSeconds int) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.lookup(key)
	var n int64
	if ok {
		n, _ = strconv.ParseInt(string(entry.value), 10, 64)
	} else {
		entry.expiresAt = a.expiry(windowSeconds)
	}
	n++
	entry.value = []byte(strconv.FormatInt(n, 10))
	a.cache.Add(key, entry)
	return n, nil
}
