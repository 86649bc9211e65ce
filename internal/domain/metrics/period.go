package metrics

import (
	"time"

	"github.com/Marseau/UBS-sub017/internal/domain/shared"
)

// Period is a rolling lookback window over which tenant metrics are computed.
// Windows are always resolved relative to "now" at the start of a run, never
// stored as absolute dates across runs.
type Period string

const (
	Period7d  Period = "7d"
	Period30d Period = "30d"
	Period90d Period = "90d"
)

// AllPeriods returns every supported period, in ascending window size.
func AllPeriods() []Period {
	return []Period{Period7d, Period30d, Period90d}
}

// ParsePeriod converts a string into a Period, rejecting unknown values.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.IsValid() {
		return "", shared.ErrInvalidPeriod
	}
	return p, nil
}

// IsValid returns true if the period is one of the supported windows.
func (p Period) IsValid() bool {
	switch p {
	case Period7d, Period30d, Period90d:
		return true
	}
	return false
}

// String returns the string representation of the period
func (p Period) String() string {
	return string(p)
}

// Days returns the number of days the period spans.
func (p Period) Days() int {
	switch p {
	case Period7d:
		return 7
	case Period30d:
		return 30
	case Period90d:
		return 90
	default:
		return 30
	}
}

// Window resolves the period to a half-open time window [now-N days, now).
func (p Period) Window(now time.Time) (start, end time.Time) {
	end = now
	start = now.AddDate(0, 0, -p.Days())
	return start, end
}

// CacheTTL returns how long a cached computation for this period stays fresh.
// Short windows move fast and get a short TTL; quarterly data changes slowly.
func (p Period) CacheTTL() time.Duration {
	switch p {
	case Period7d:
		return 5 * time.Minute
	case Period30d:
		return 15 * time.Minute
	case Period90d:
		return 30 * time.Minute
	default:
		return 15 * time.Minute
	}
}
