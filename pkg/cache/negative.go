package cache

import (
	"context"
	"sync"
	"time"
)

// Interface is the read/write surface a negative cache can wrap. The tiered
// cache satisfies it.
type Interface interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NegativeCache wraps a cache with negative caching: "not found" results are
// remembered for negativeTTL so repeated lookups for missing keys skip the
// full tier traversal.
type NegativeCache struct {
	inner       Interface
	negativeMap map[string]time.Time // key -> expiry of the negative result
	negativeTTL time.Duration
	mu          sync.RWMutex
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewNegativeCache wraps inner. negativeTTL determines how long "not found"
// results are cached; zero or less defaults to one minute.
func NewNegativeCache(inner Interface, negativeTTL time.Duration) *NegativeCache {
	if negativeTTL <= 0 {
		negativeTTL = time.Minute
	}

	nc := &NegativeCache{
		inner:       inner,
		negativeMap: make(map[string]time.Time),
		negativeTTL: negativeTTL,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	go nc.cleanup()

	return nc
}

// Get returns the cached value, serving remembered misses from the negative
// map without touching the inner cache.
func (nc *NegativeCache) Get(ctx context.Context, key string) (interface{}, error) {
	if nc.isNegative(key) {
		return nil, ErrKeyNotFound
	}

	value, err := nc.inner.Get(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			nc.remember(key)
		}
		return nil, err
	}

	nc.forget(key)
	return value, nil
}

// Set stores a value and clears any remembered miss for the key.
func (nc *NegativeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	nc.forget(key)
	return nc.inner.Set(ctx, key, value, ttl)
}

// Delete removes the key and remembers the resulting miss.
func (nc *NegativeCache) Delete(ctx context.Context, key string) error {
	err := nc.inner.Delete(ctx, key)
	if err == nil {
		nc.remember(key)
	}
	return err
}

// Close stops the cleanup goroutine. The inner cache is left untouched.
func (nc *NegativeCache) Close() error {
	close(nc.stopCleanup)
	<-nc.cleanupDone
	return nil
}

func (nc *NegativeCache) isNegative(key string) bool {
	nc.mu.RLock()
	defer nc.mu.RUnlock()

	expiry, ok := nc.negativeMap[key]
	return ok && time.Now().Before(expiry)
}

func (nc *NegativeCache) remember(key string) {
	nc.mu.Lock()
	nc.negativeMap[key] = time.Now().Add(nc.negativeTTL)
	nc.mu.Unlock()
}

func (nc *NegativeCache) forget(key string) {
	nc.mu.Lock()
	delete(nc.negativeMap, key)
	nc.mu.Unlock()
}

// cleanup periodically drops expired negative entries so the map does not
// grow with every missing key ever probed.
func (nc *NegativeCache) cleanup() {
	defer close(nc.cleanupDone)

	ticker := time.NewTicker(nc.negativeTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			nc.mu.Lock()
			for key, expiry := range nc.negativeMap {
				if now.After(expiry) {
					delete(nc.negativeMap, key)
				}
			}
			nc.mu.Unlock()
		case <-nc.stopCleanup:
			return
		}
	}
}

// NegativeCacheStats holds negative cache counters.
type NegativeCacheStats struct {
	NegativeCount int
	NegativeTTL   time.Duration
}

// Stats returns the number of remembered misses and the configured TTL.
func (nc *NegativeCache) Stats() NegativeCacheStats {
	nc.mu.RLock()
	defer nc.mu.RUnlock()

	return NegativeCacheStats{
		NegativeCount: len(nc.negativeMap),
		NegativeTTL:   nc.negativeTTL,
	}
}
