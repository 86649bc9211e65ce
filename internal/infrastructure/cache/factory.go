// Package cache provides the metrics cache backends: a Redis implementation
// for distributed deployments and an in-memory one for single instances and
// tests.
package cache

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	appmetrics "github.com/Marseau/UBS-sub017/internal/application/metrics"
	"github.com/Marseau/UBS-sub017/internal/infrastructure/config"
)

// CloseableCache pairs the application cache contract with resource cleanup.
type CloseableCache interface {
	appmetrics.MetricsCache
	io.Closer
}

// NewMetricsCache creates the configured cache backend. A Redis backend that
// cannot be reached falls back to the in-memory cache with a warning, so a
// Redis outage degrades cache efficiency instead of blocking startup.
func NewMetricsCache(cfg *config.Config, logger *zap.Logger) (CloseableCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	switch cfg.Cache.Backend {
	case "memory":
		logger.Info("using in-memory metrics cache")
		return NewInMemoryMetricsCache(), nil
	case "redis":
		cache, err := NewRedisMetricsCache(cfg.Redis)
		if err == nil {
			logger.Info("using Redis metrics cache", zap.String("addr", cfg.Redis.Addr()))
			return cache, nil
		}
		logger.Warn("Redis unavailable, falling back to in-memory metrics cache. "+
			"Cache hits will not be shared across instances.",
			zap.Error(err),
		)
		return NewInMemoryMetricsCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
