package metrics

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MetricKind identifies which family of metrics a record holds. The engine
// writes one comprehensive record per tenant and period, plus one
// platform-wide totals record per period with a nil tenant ID.
type MetricKind string

const (
	// MetricKindComprehensive is the full per-tenant metrics snapshot.
	MetricKindComprehensive MetricKind = "comprehensive"

	// MetricKindPlatformTotals is the cross-tenant aggregate snapshot.
	MetricKindPlatformTotals MetricKind = "platform_totals"
)

// String returns the string representation of the metric kind
func (k MetricKind) String() string {
	return string(k)
}

// MetricsRecord is the persisted output unit, keyed by
// (tenant_id, metric_kind, period). Writes are whole-value upserts:
// a later write for the same key fully replaces the previous value.
type MetricsRecord struct {
	TenantID     uuid.UUID
	Kind         MetricKind
	Period       Period
	Value        MetricsValue
	CalculatedAt time.Time
}

// MetricsValue is the computed metrics payload for one tenant and period.
// Every field has a well-defined zero value so that a tenant with no events
// still produces a complete record with zero counts and zero rates.
type MetricsValue struct {
	PeriodInfo   PeriodInfo         `json:"period_info"`
	Volume       VolumeMetrics      `json:"volume"`
	Outcomes     OutcomeMetrics     `json:"outcomes"`
	Quality      QualityMetrics     `json:"quality"`
	Durations    DurationMetrics    `json:"durations"`
	Costs        CostMetrics        `json:"costs"`
	Appointments AppointmentMetrics `json:"appointments"`
	Customers    CustomerMetrics    `json:"customers"`
	Billing      BillingTier        `json:"billing"`
	Payments     PaymentMetrics     `json:"payments"`
}

// PeriodInfo records the resolved window the value was computed over.
type PeriodInfo struct {
	Period    Period    `json:"period"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// VolumeMetrics counts conversation traffic.
type VolumeMetrics struct {
	TotalSessions  int `json:"total_sessions"`
	TotalMessages  int `json:"total_messages"`
	UserMessages   int `json:"user_messages"`
	SystemMessages int `json:"system_messages"`
}

// OutcomeMetrics is the session count per outcome category plus the success
// rate over the success+neutral+failure denominator. Excluded and unknown
// sessions never enter the denominator. Cancelled narrows further: it counts
// only sessions whose raw tag is the cancellation outcome, and its rate runs
// over all sessions in the period.
type OutcomeMetrics struct {
	Success          int     `json:"success"`
	Neutral          int     `json:"neutral"`
	Failure          int     `json:"failure"`
	Excluded         int     `json:"excluded"`
	Unknown          int     `json:"unknown"`
	Cancelled        int     `json:"cancelled"`
	SuccessRate      float64 `json:"success_rate"`
	CancellationRate float64 `json:"cancellation_rate"`
}

// QualityMetrics buckets sessions by average confidence and tracks the spam
// rate over user messages. The bucket thresholds (0.5/0.8) and the spam
// validity cut (0.7) are two separate classifications.
type QualityMetrics struct {
	HighConfidence   int     `json:"high_confidence"`
	MediumConfidence int     `json:"medium_confidence"`
	LowConfidence    int     `json:"low_confidence"`
	Unscored         int     `json:"unscored"`
	AvgConfidence    float64 `json:"avg_confidence"`
	SpamRate         float64 `json:"spam_rate"`

	// LowConfidenceMessages is the raw user-message count under the validity
	// cut, kept alongside the derived rate so aggregates never have to
	// reconstruct it from a percentage.
	LowConfidenceMessages int `json:"low_confidence_messages"`
}

// DurationHistogram buckets session durations in minutes.
type DurationHistogram struct {
	Under1Min     int `json:"under_1min"`
	From1To3Min   int `json:"from_1_to_3min"`
	From3To10Min  int `json:"from_3_to_10min"`
	From10To30Min int `json:"from_10_to_30min"`
	Over30Min     int `json:"over_30min"`
}

// DurationMetrics describes how long conversations run. Sessions without
// usable timestamps are excluded from duration math but still counted in
// volume; MeasuredSessions records how many sessions the averages cover.
type DurationMetrics struct {
	AvgMinutes       float64           `json:"avg_minutes_per_conversation"`
	TotalMinutes     float64           `json:"total_minutes"`
	MeasuredSessions int               `json:"measured_sessions"`
	Histogram        DurationHistogram `json:"histogram"`
	LongSessions     int               `json:"long_sessions"`
}

// CostMetrics sums the two per-message cost components.
type CostMetrics struct {
	APICost             decimal.Decimal `json:"api_cost"`
	ProcessingCost      decimal.Decimal `json:"processing_cost"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	CostPerConversation decimal.Decimal `json:"cost_per_conversation"`
}

// AppointmentMetrics covers bookings and recognized revenue. Revenue sums the
// effective price of revenue-bearing appointments only. CancellationRate and
// NoShowRate are tracked separately; a no-show is not a cancellation.
type AppointmentMetrics struct {
	Total             int             `json:"total"`
	Completed         int             `json:"completed"`
	Confirmed         int             `json:"confirmed"`
	Cancelled         int             `json:"cancelled"`
	NoShow            int             `json:"no_show"`
	Pending           int             `json:"pending"`
	Revenue           decimal.Decimal `json:"revenue"`
	SuccessRate       float64         `json:"success_rate"`
	CancellationRate  float64         `json:"cancellation_rate"`
	NoShowRate        float64         `json:"no_show_rate"`
	NoShowLostRevenue decimal.Decimal `json:"no_show_lost_revenue"`
}

// CustomerMetrics tracks the distinct customers seen in the period and their
// recurrence split. UniqueCustomers is a set union across appointments and
// conversation sessions, never a sum.
type CustomerMetrics struct {
	UniqueCustomers          int             `json:"unique_customers"`
	NewCustomers             int             `json:"new_customers"`
	ReturningCustomers       int             `json:"returning_customers"`
	RecurrenceRate           float64         `json:"recurrence_rate"`
	NewCustomerRevenue       decimal.Decimal `json:"new_customer_revenue"`
	ReturningCustomerRevenue decimal.Decimal `json:"returning_customer_revenue"`
}

// PaymentMetrics sums platform subscription charges in the period.
type PaymentMetrics struct {
	TotalAmount  decimal.Decimal `json:"total_amount"`
	PaymentCount int             `json:"payment_count"`
}

// EmptyMetricsValue returns a fully zeroed value for the given window. Every
// rate is 0 and every decimal is explicitly zero, never null.
func EmptyMetricsValue(period Period, start, end time.Time) MetricsValue {
	return MetricsValue{
		PeriodInfo: PeriodInfo{Period: period, StartDate: start, EndDate: end},
		Costs: CostMetrics{
			APICost:             decimal.Zero,
			ProcessingCost:      decimal.Zero,
			TotalCost:           decimal.Zero,
			CostPerConversation: decimal.Zero,
		},
		Appointments: AppointmentMetrics{
			Revenue:           decimal.Zero,
			NoShowLostRevenue: decimal.Zero,
		},
		Customers: CustomerMetrics{
			NewCustomerRevenue:       decimal.Zero,
			ReturningCustomerRevenue: decimal.Zero,
		},
		Billing: PriceForConversations(0),
		Payments: PaymentMetrics{
			TotalAmount: decimal.Zero,
		},
	}
}
