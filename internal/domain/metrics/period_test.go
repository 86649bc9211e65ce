package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marseau/UBS-sub017/internal/domain/shared"
)

func TestParsePeriod(t *testing.T) {
	for _, p := range AllPeriods() {
		parsed, err := ParsePeriod(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	_, err := ParsePeriod("14d")
	assert.ErrorIs(t, err, shared.ErrInvalidPeriod)

	_, err = ParsePeriod("")
	assert.ErrorIs(t, err, shared.ErrInvalidPeriod)
}

func TestPeriodDays(t *testing.T) {
	assert.Equal(t, 7, Period7d.Days())
	assert.Equal(t, 30, Period30d.Days())
	assert.Equal(t, 90, Period90d.Days())
}

func TestPeriodWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	start, end := Period7d.Window(now)
	assert.Equal(t, now, end)
	assert.Equal(t, now.AddDate(0, 0, -7), start)

	start, _ = Period90d.Window(now)
	assert.Equal(t, now.AddDate(0, 0, -90), start)
}

func TestPeriodCacheTTL(t *testing.T) {
	assert.Equal(t, 5*time.Minute, Period7d.CacheTTL())
	assert.Equal(t, 15*time.Minute, Period30d.CacheTTL())
	assert.Equal(t, 30*time.Minute, Period90d.CacheTTL())
}
