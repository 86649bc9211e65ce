// Package metrics implements the application services of the metrics engine:
// the per-tenant calculator that turns raw events into a metrics snapshot,
// and the recalculation orchestrator that fans it out across tenants.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Marseau/UBS-sub017/internal/domain/events"
	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
)

// Quality bucket thresholds over a session's average confidence. These are
// independent of the per-message spam validity cut.
const (
	highConfidenceFloor   = 0.8
	mediumConfidenceFloor = 0.5
)

// longSessionMinutes marks sessions counted as unusually long. Anything past
// ten minutes is suspect for a chat-driven booking flow.
const longSessionMinutes = 10.0

// Computation is the calculator output: the metrics value plus a degraded
// flag set when a non-essential input (currently the recurrence lookup) was
// unavailable and the value carries approximated fields.
type Computation struct {
	Value    metrics.MetricsValue
	Degraded bool
}

// TenantMetricsCalculator computes the comprehensive metrics snapshot for one
// tenant and period from the raw event store.
type TenantMetricsCalculator struct {
	events events.Store
	logger *zap.Logger
}

// NewTenantMetricsCalculator creates a calculator over the given event store.
func NewTenantMetricsCalculator(store events.Store, logger *zap.Logger) *TenantMetricsCalculator {
	return &TenantMetricsCalculator{
		events: store,
		logger: logger,
	}
}

// Compute builds the full metrics value for the tenant over the period window
// ending at now. A tenant with no events yields a complete zero-valued
// snapshot, not an error.
func (c *TenantMetricsCalculator) Compute(ctx context.Context, tenantID uuid.UUID, period metrics.Period, now time.Time) (*Computation, error) {
	start, end := period.Window(now)
	window := events.Window{Start: start, End: end}

	messages, err := c.events.FetchConversationMessages(ctx, tenantID, window)
	if err != nil {
		return nil, fmt.Errorf("fetch conversation messages: %w", err)
	}
	appointments, err := c.events.FetchAppointments(ctx, tenantID, window)
	if err != nil {
		return nil, fmt.Errorf("fetch appointments: %w", err)
	}
	payments, err := c.events.FetchPayments(ctx, tenantID, window)
	if err != nil {
		return nil, fmt.Errorf("fetch payments: %w", err)
	}

	sessions := metrics.AssembleSessions(messages)

	value := metrics.EmptyMetricsValue(period, start, end)
	computeVolume(&value, sessions)
	computeOutcomes(&value, sessions)
	computeQuality(&value, sessions)
	computeDurations(&value, sessions)
	computeCosts(&value, sessions)
	computeAppointments(&value, appointments)
	computePayments(&value, payments)

	degraded := c.computeCustomers(ctx, &value, tenantID, sessions, appointments, start)

	value.Billing = metrics.PriceForConversations(value.Volume.TotalSessions)

	c.logger.Debug("tenant metrics computed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("period", period.String()),
		zap.Int("sessions", value.Volume.TotalSessions),
		zap.Int("appointments", value.Appointments.Total),
		zap.Bool("degraded", degraded))

	return &Computation{Value: value, Degraded: degraded}, nil
}

func computeVolume(v *metrics.MetricsValue, sessions []*metrics.ConversationSession) {
	v.Volume.TotalSessions = len(sessions)
	for _, s := range sessions {
		v.Volume.TotalMessages += s.MessageCount
		v.Volume.UserMessages += s.UserMessageCount
		v.Volume.SystemMessages += s.SystemMessageCount
	}
}

func computeOutcomes(v *metrics.MetricsValue, sessions []*metrics.ConversationSession) {
	for _, s := range sessions {
		switch s.OutcomeCategory() {
		case metrics.OutcomeSuccess:
			v.Outcomes.Success++
		case metrics.OutcomeNeutral:
			v.Outcomes.Neutral++
		case metrics.OutcomeFailure:
			v.Outcomes.Failure++
		case metrics.OutcomeExcluded:
			v.Outcomes.Excluded++
		default:
			v.Outcomes.Unknown++
		}
		if s.Outcome == metrics.OutcomeCancelled {
			v.Outcomes.Cancelled++
		}
	}

	denominator := v.Outcomes.Success + v.Outcomes.Neutral + v.Outcomes.Failure
	if denominator > 0 {
		v.Outcomes.SuccessRate = float64(v.Outcomes.Success) / float64(denominator) * 100
	}
	// The cancellation rate runs over every session, not the success-rate
	// denominator: a cancellation among many excluded sessions still matters.
	if len(sessions) > 0 {
		v.Outcomes.CancellationRate = float64(v.Outcomes.Cancelled) / float64(len(sessions)) * 100
	}
}

func computeQuality(v *metrics.MetricsValue, sessions []*metrics.ConversationSession) {
	var confidenceSum float64
	var scoredSessions int
	var userMessages, lowConfidenceMessages int

	for _, s := range sessions {
		avg, scored := s.AvgConfidence()
		if !scored {
			v.Quality.Unscored++
		} else {
			scoredSessions++
			confidenceSum += avg
			switch {
			case avg >= highConfidenceFloor:
				v.Quality.HighConfidence++
			case avg >= mediumConfidenceFloor:
				v.Quality.MediumConfidence++
			default:
				v.Quality.LowConfidence++
			}
		}
		userMessages += s.UserMessageCount
		lowConfidenceMessages += s.LowConfidenceUserMessages
	}

	v.Quality.LowConfidenceMessages = lowConfidenceMessages
	if scoredSessions > 0 {
		v.Quality.AvgConfidence = confidenceSum / float64(scoredSessions)
	}
	if userMessages > 0 {
		v.Quality.SpamRate = float64(lowConfidenceMessages) / float64(userMessages) * 100
	}
}

func computeDurations(v *metrics.MetricsValue, sessions []*metrics.ConversationSession) {
	for _, s := range sessions {
		minutes, ok := s.DurationMinutes()
		if !ok {
			continue
		}
		v.Durations.MeasuredSessions++
		v.Durations.TotalMinutes += minutes

		switch {
		case minutes < 1:
			v.Durations.Histogram.Under1Min++
		case minutes < 3:
			v.Durations.Histogram.From1To3Min++
		case minutes < 10:
			v.Durations.Histogram.From3To10Min++
		case minutes < 30:
			v.Durations.Histogram.From10To30Min++
		default:
			v.Durations.Histogram.Over30Min++
		}
		if minutes >= longSessionMinutes {
			v.Durations.LongSessions++
		}
	}

	if v.Durations.MeasuredSessions > 0 {
		v.Durations.AvgMinutes = v.Durations.TotalMinutes / float64(v.Durations.MeasuredSessions)
	}
}

func computeCosts(v *metrics.MetricsValue, sessions []*metrics.ConversationSession) {
	for _, s := range sessions {
		v.Costs.APICost = v.Costs.APICost.Add(s.APICost)
		v.Costs.ProcessingCost = v.Costs.ProcessingCost.Add(s.ProcessingCost)
	}
	v.Costs.TotalCost = v.Costs.APICost.Add(v.Costs.ProcessingCost)
	if len(sessions) > 0 {
		v.Costs.CostPerConversation = v.Costs.TotalCost.Div(decimal.NewFromInt(int64(len(sessions))))
	}
}

func computeAppointments(v *metrics.MetricsValue, appointments []events.Appointment) {
	for i := range appointments {
		appt := &appointments[i]
		v.Appointments.Total++

		switch appt.Status {
		case events.AppointmentCompleted:
			v.Appointments.Completed++
		case events.AppointmentConfirmed:
			v.Appointments.Confirmed++
		case events.AppointmentCancelled:
			v.Appointments.Cancelled++
		case events.AppointmentNoShow:
			v.Appointments.NoShow++
			v.Appointments.NoShowLostRevenue = v.Appointments.NoShowLostRevenue.Add(appt.EffectivePrice())
		case events.AppointmentPending:
			v.Appointments.Pending++
		}

		if appt.Status.IsRevenueBearing() {
			v.Appointments.Revenue = v.Appointments.Revenue.Add(appt.EffectivePrice())
		}
	}

	if v.Appointments.Total > 0 {
		completed := v.Appointments.Completed + v.Appointments.Confirmed
		v.Appointments.SuccessRate = float64(completed) / float64(v.Appointments.Total) * 100
		v.Appointments.CancellationRate = float64(v.Appointments.Cancelled) / float64(v.Appointments.Total) * 100
		v.Appointments.NoShowRate = float64(v.Appointments.NoShow) / float64(v.Appointments.Total) * 100
	}
}

func computePayments(v *metrics.MetricsValue, payments []events.SubscriptionPayment) {
	for i := range payments {
		v.Payments.PaymentCount++
		v.Payments.TotalAmount = v.Payments.TotalAmount.Add(payments[i].Amount)
	}
}

// computeCustomers fills customer metrics from the union of appointment and
// session customers. A failed recurrence lookup degrades the result instead
// of failing the whole computation: every customer is then reported as new.
func (c *TenantMetricsCalculator) computeCustomers(
	ctx context.Context,
	v *metrics.MetricsValue,
	tenantID uuid.UUID,
	sessions []*metrics.ConversationSession,
	appointments []events.Appointment,
	periodStart time.Time,
) bool {
	seen := make(map[uuid.UUID]bool)
	revenueByCustomer := make(map[uuid.UUID]decimal.Decimal)

	for i := range appointments {
		appt := &appointments[i]
		if appt.UserID == uuid.Nil {
			continue
		}
		seen[appt.UserID] = true
		if appt.Status.IsRevenueBearing() {
			revenueByCustomer[appt.UserID] = revenueByCustomer[appt.UserID].Add(appt.EffectivePrice())
		}
	}
	for _, s := range sessions {
		if s.UserID != uuid.Nil {
			seen[s.UserID] = true
		}
	}

	v.Customers.UniqueCustomers = len(seen)
	if len(seen) == 0 {
		return false
	}

	userIDs := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		userIDs = append(userIDs, id)
	}

	returning, err := c.events.ReturningCustomers(ctx, tenantID, userIDs, periodStart)
	if err != nil {
		c.logger.Warn("recurrence lookup failed, reporting all customers as new",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		v.Customers.NewCustomers = len(seen)
		for _, revenue := range revenueByCustomer {
			v.Customers.NewCustomerRevenue = v.Customers.NewCustomerRevenue.Add(revenue)
		}
		return true
	}

	for _, id := range userIDs {
		if returning[id] {
			v.Customers.ReturningCustomers++
			v.Customers.ReturningCustomerRevenue = v.Customers.ReturningCustomerRevenue.Add(revenueByCustomer[id])
		} else {
			v.Customers.NewCustomers++
			v.Customers.NewCustomerRevenue = v.Customers.NewCustomerRevenue.Add(revenueByCustomer[id])
		}
	}
	v.Customers.RecurrenceRate = float64(v.Customers.ReturningCustomers) / float64(len(seen)) * 100

	return false
}
