package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
)

// platformAccumulator folds per-tenant metrics values into the cross-tenant
// totals for one period. Counts and monetary amounts sum directly; rates and
// averages are rederived from the summed counts in finalize, never averaged
// across tenants.
type platformAccumulator struct {
	value metrics.MetricsValue

	tenantCount        int
	scoredSessions     int
	confidenceWeighted float64
}

func newPlatformAccumulator(period metrics.Period, start, end time.Time) *platformAccumulator {
	v := metrics.EmptyMetricsValue(period, start, end)
	// The zero-count basic tier does not belong in a cross-tenant sum.
	v.Billing = metrics.BillingTier{
		BasePrice:        decimal.Zero,
		OverageUnitPrice: decimal.Zero,
		OverageCost:      decimal.Zero,
		TotalCost:        decimal.Zero,
	}
	return &platformAccumulator{value: v}
}

func (p *platformAccumulator) add(v *metrics.MetricsValue) {
	p.tenantCount++
	dst := &p.value

	dst.Volume.TotalSessions += v.Volume.TotalSessions
	dst.Volume.TotalMessages += v.Volume.TotalMessages
	dst.Volume.UserMessages += v.Volume.UserMessages
	dst.Volume.SystemMessages += v.Volume.SystemMessages

	dst.Outcomes.Success += v.Outcomes.Success
	dst.Outcomes.Neutral += v.Outcomes.Neutral
	dst.Outcomes.Failure += v.Outcomes.Failure
	dst.Outcomes.Excluded += v.Outcomes.Excluded
	dst.Outcomes.Unknown += v.Outcomes.Unknown
	dst.Outcomes.Cancelled += v.Outcomes.Cancelled

	dst.Quality.HighConfidence += v.Quality.HighConfidence
	dst.Quality.MediumConfidence += v.Quality.MediumConfidence
	dst.Quality.LowConfidence += v.Quality.LowConfidence
	dst.Quality.Unscored += v.Quality.Unscored
	dst.Quality.LowConfidenceMessages += v.Quality.LowConfidenceMessages

	scored := v.Quality.HighConfidence + v.Quality.MediumConfidence + v.Quality.LowConfidence
	p.scoredSessions += scored
	p.confidenceWeighted += v.Quality.AvgConfidence * float64(scored)

	dst.Durations.TotalMinutes += v.Durations.TotalMinutes
	dst.Durations.MeasuredSessions += v.Durations.MeasuredSessions
	dst.Durations.LongSessions += v.Durations.LongSessions
	dst.Durations.Histogram.Under1Min += v.Durations.Histogram.Under1Min
	dst.Durations.Histogram.From1To3Min += v.Durations.Histogram.From1To3Min
	dst.Durations.Histogram.From3To10Min += v.Durations.Histogram.From3To10Min
	dst.Durations.Histogram.From10To30Min += v.Durations.Histogram.From10To30Min
	dst.Durations.Histogram.Over30Min += v.Durations.Histogram.Over30Min

	dst.Costs.APICost = dst.Costs.APICost.Add(v.Costs.APICost)
	dst.Costs.ProcessingCost = dst.Costs.ProcessingCost.Add(v.Costs.ProcessingCost)
	dst.Costs.TotalCost = dst.Costs.TotalCost.Add(v.Costs.TotalCost)

	dst.Appointments.Total += v.Appointments.Total
	dst.Appointments.Completed += v.Appointments.Completed
	dst.Appointments.Confirmed += v.Appointments.Confirmed
	dst.Appointments.Cancelled += v.Appointments.Cancelled
	dst.Appointments.NoShow += v.Appointments.NoShow
	dst.Appointments.Pending += v.Appointments.Pending
	dst.Appointments.Revenue = dst.Appointments.Revenue.Add(v.Appointments.Revenue)
	dst.Appointments.NoShowLostRevenue = dst.Appointments.NoShowLostRevenue.Add(v.Appointments.NoShowLostRevenue)

	// Customers can overlap across tenants only if the same person books with
	// two businesses; per-tenant identities are distinct, so sums are exact.
	dst.Customers.UniqueCustomers += v.Customers.UniqueCustomers
	dst.Customers.NewCustomers += v.Customers.NewCustomers
	dst.Customers.ReturningCustomers += v.Customers.ReturningCustomers
	dst.Customers.NewCustomerRevenue = dst.Customers.NewCustomerRevenue.Add(v.Customers.NewCustomerRevenue)
	dst.Customers.ReturningCustomerRevenue = dst.Customers.ReturningCustomerRevenue.Add(v.Customers.ReturningCustomerRevenue)

	// Platform billing aggregates what tenants owe, not a tier of its own.
	dst.Billing.ConversationCount += v.Billing.ConversationCount
	dst.Billing.TotalCost = dst.Billing.TotalCost.Add(v.Billing.TotalCost)

	dst.Payments.PaymentCount += v.Payments.PaymentCount
	dst.Payments.TotalAmount = dst.Payments.TotalAmount.Add(v.Payments.TotalAmount)
}

func (p *platformAccumulator) finalize() metrics.MetricsValue {
	v := &p.value

	denominator := v.Outcomes.Success + v.Outcomes.Neutral + v.Outcomes.Failure
	if denominator > 0 {
		v.Outcomes.SuccessRate = float64(v.Outcomes.Success) / float64(denominator) * 100
	}
	if v.Volume.TotalSessions > 0 {
		v.Outcomes.CancellationRate = float64(v.Outcomes.Cancelled) / float64(v.Volume.TotalSessions) * 100
	}

	if p.scoredSessions > 0 {
		v.Quality.AvgConfidence = p.confidenceWeighted / float64(p.scoredSessions)
	}
	if v.Volume.UserMessages > 0 {
		v.Quality.SpamRate = float64(v.Quality.LowConfidenceMessages) / float64(v.Volume.UserMessages) * 100
	}

	if v.Durations.MeasuredSessions > 0 {
		v.Durations.AvgMinutes = v.Durations.TotalMinutes / float64(v.Durations.MeasuredSessions)
	}

	if v.Volume.TotalSessions > 0 {
		v.Costs.CostPerConversation = v.Costs.TotalCost.Div(decimal.NewFromInt(int64(v.Volume.TotalSessions)))
	}

	if v.Appointments.Total > 0 {
		completed := v.Appointments.Completed + v.Appointments.Confirmed
		v.Appointments.SuccessRate = float64(completed) / float64(v.Appointments.Total) * 100
		v.Appointments.CancellationRate = float64(v.Appointments.Cancelled) / float64(v.Appointments.Total) * 100
		v.Appointments.NoShowRate = float64(v.Appointments.NoShow) / float64(v.Appointments.Total) * 100
	}

	if v.Customers.UniqueCustomers > 0 {
		v.Customers.RecurrenceRate = float64(v.Customers.ReturningCustomers) / float64(v.Customers.UniqueCustomers) * 100
	}

	// Plans differ per tenant, so the aggregate record carries none.
	v.Billing.Plan = ""

	return p.value
}
