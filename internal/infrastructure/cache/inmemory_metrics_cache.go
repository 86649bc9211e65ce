package cache

import (
	"context"
	"sync"
	"time"

	appmetrics "github.com/Marseau/UBS-sub017/internal/application/metrics"
	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
)

// cacheEntry holds a cached value with its expiration
type cacheEntry struct {
	value     metrics.MetricsValue
	expiresAt time.Time
}

// InMemoryMetricsCache implements the metrics cache with an in-process map.
// Suitable for single-instance deployments and testing.
type InMemoryMetricsCache struct {
	mu        sync.RWMutex
	entries   map[string]cacheEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryMetricsCache creates an in-memory metrics cache and starts a
// background goroutine that cleans up expired entries.
func NewInMemoryMetricsCache() *InMemoryMetricsCache {
	cache := &InMemoryMetricsCache{
		entries:  make(map[string]cacheEntry),
		stopChan: make(chan struct{}),
	}

	cache.wg.Add(1)
	go cache.cleanupLoop()

	return cache
}

// Get returns the cached value for the key, or ok=false on a miss.
func (c *InMemoryMetricsCache) Get(ctx context.Context, key appmetrics.CacheKey) (*metrics.MetricsValue, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key.String()]
	if !exists {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		return nil, false, nil // Expired, treat as miss
	}

	value := entry.value
	return &value, true, nil
}

// Set stores the value under the key with the given TTL.
func (c *InMemoryMetricsCache) Set(ctx context.Context, key appmetrics.CacheKey, value *metrics.MetricsValue, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key.String()] = cacheEntry{
		value:     *value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Close stops the cleanup goroutine and releases resources
// Safe to call multiple times
func (c *InMemoryMetricsCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (c *InMemoryMetricsCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries from the cache
func (c *InMemoryMetricsCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Size returns the number of entries in the cache (for testing/monitoring)
func (c *InMemoryMetricsCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ensure InMemoryMetricsCache implements the application cache contract
var _ appmetrics.MetricsCache = (*InMemoryMetricsCache)(nil)
