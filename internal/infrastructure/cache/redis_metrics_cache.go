package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appmetrics "github.com/Marseau/UBS-sub017/internal/application/metrics"
	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
	"github.com/Marseau/UBS-sub017/internal/infrastructure/config"
)

// RedisMetricsCache implements the metrics cache on Redis. Suitable for
// distributed deployments where multiple instances share cache state.
type RedisMetricsCache struct {
	client *redis.Client
}

// NewRedisMetricsCache creates a Redis-backed metrics cache and verifies the
// connection before returning.
func NewRedisMetricsCache(cfg config.RedisConfig) (*RedisMetricsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisMetricsCache{client: client}, nil
}

// NewRedisMetricsCacheWithClient creates a cache with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisMetricsCacheWithClient(client *redis.Client) *RedisMetricsCache {
	return &RedisMetricsCache{client: client}
}

// Get returns the cached value for the key, or ok=false on a miss.
func (c *RedisMetricsCache) Get(ctx context.Context, key appmetrics.CacheKey) (*metrics.MetricsValue, bool, error) {
	payload, err := c.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var value metrics.MetricsValue
	if err := json.Unmarshal(payload, &value); err != nil {
		// A corrupt entry behaves like a miss; the caller recomputes and
		// overwrites it.
		return nil, false, nil
	}
	return &value, true, nil
}

// Set stores the value under the key with the given TTL.
func (c *RedisMetricsCache) Set(ctx context.Context, key appmetrics.CacheKey, value *metrics.MetricsValue, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, key.String(), payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisMetricsCache) Close() error {
	return c.client.Close()
}

// Ensure RedisMetricsCache implements the application cache contract
var _ appmetrics.MetricsCache = (*RedisMetricsCache)(nil)
