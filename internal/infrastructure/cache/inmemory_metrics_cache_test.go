package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appmetrics "github.com/Marseau/UBS-sub017/internal/application/metrics"
	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
)

func testKey(fingerprint string) appmetrics.CacheKey {
	return appmetrics.CacheKey{
		TenantID:    uuid.New(),
		Kind:        metrics.MetricKindComprehensive,
		Period:      metrics.Period7d,
		Fingerprint: fingerprint,
	}
}

func testValue(period metrics.Period) *metrics.MetricsValue {
	now := time.Now().UTC()
	v := metrics.EmptyMetricsValue(period, now.AddDate(0, 0, -period.Days()), now)
	v.Volume.TotalSessions = 42
	return &v
}

func TestInMemoryMetricsCache_SetAndGet(t *testing.T) {
	cache := NewInMemoryMetricsCache()
	defer cache.Close()

	ctx := context.Background()
	key := testKey("abc123")
	value := testValue(metrics.Period7d)

	require.NoError(t, cache.Set(ctx, key, value, time.Minute))

	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, got.Volume.TotalSessions)
}

func TestInMemoryMetricsCache_MissOnUnknownKey(t *testing.T) {
	cache := NewInMemoryMetricsCache()
	defer cache.Close()

	_, ok, err := cache.Get(context.Background(), testKey("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryMetricsCache_DifferentFingerprintMisses(t *testing.T) {
	cache := NewInMemoryMetricsCache()
	defer cache.Close()

	ctx := context.Background()
	key := testKey("fp-old")
	require.NoError(t, cache.Set(ctx, key, testValue(metrics.Period7d), time.Minute))

	// Same tenant/kind/period, new watermark fingerprint: must miss.
	fresh := key
	fresh.Fingerprint = "fp-new"
	_, ok, err := cache.Get(ctx, fresh)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryMetricsCache_ExpiredEntryMisses(t *testing.T) {
	cache := NewInMemoryMetricsCache()
	defer cache.Close()

	ctx := context.Background()
	key := testKey("short-lived")
	require.NoError(t, cache.Set(ctx, key, testValue(metrics.Period7d), 10*time.Millisecond))

	time.Sleep(30 * time.Millisecond)

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryMetricsCache_CleanupRemovesExpired(t *testing.T) {
	cache := NewInMemoryMetricsCache()
	defer cache.Close()

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, testKey("a"), testValue(metrics.Period7d), 5*time.Millisecond))
	require.NoError(t, cache.Set(ctx, testKey("b"), testValue(metrics.Period30d), time.Hour))

	time.Sleep(20 * time.Millisecond)
	cache.cleanup()

	assert.Equal(t, 1, cache.Size())
}

func TestInMemoryMetricsCache_GetReturnsCopy(t *testing.T) {
	cache := NewInMemoryMetricsCache()
	defer cache.Close()

	ctx := context.Background()
	key := testKey("copy")
	require.NoError(t, cache.Set(ctx, key, testValue(metrics.Period7d), time.Minute))

	first, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	first.Volume.TotalSessions = 9999

	second, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, second.Volume.TotalSessions)
}

func TestInMemoryMetricsCache_ConcurrentAccess(t *testing.T) {
	cache := NewInMemoryMetricsCache()
	defer cache.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := testKey("shared")
			_ = cache.Set(ctx, key, testValue(metrics.Period7d), time.Minute)
			_, _, _ = cache.Get(ctx, key)
		}()
	}
	wg.Wait()
}

func TestInMemoryMetricsCache_CloseIsIdempotent(t *testing.T) {
	cache := NewInMemoryMetricsCache()
	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())
}
