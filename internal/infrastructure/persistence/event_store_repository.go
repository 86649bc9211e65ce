package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Marseau/UBS-sub017/internal/domain/events"
)

// fetchPageSize bounds each event-store read so large tenants never load a
// whole window at once.
const fetchPageSize = 1000

// ConversationHistoryModel is the read-only GORM model over the conversation
// history table owned by the messaging pipeline.
type ConversationHistoryModel struct {
	ID                  uuid.UUID              `gorm:"type:uuid;primaryKey"`
	TenantID            uuid.UUID              `gorm:"type:uuid;column:tenant_id"`
	UserID              uuid.UUID              `gorm:"type:uuid;column:user_id"`
	IsFromUser          bool                   `gorm:"column:is_from_user"`
	ConversationOutcome string                 `gorm:"column:conversation_outcome"`
	ConfidenceScore     *float64               `gorm:"column:confidence_score"`
	APICostUSD          decimal.Decimal        `gorm:"column:api_cost_usd"`
	ProcessingCostUSD   decimal.Decimal        `gorm:"column:processing_cost_usd"`
	ConversationContext *events.MessageContext `gorm:"column:conversation_context;type:jsonb;serializer:json"`
	CreatedAt           time.Time              `gorm:"column:created_at"`
}

// TableName returns the table name for the model
func (ConversationHistoryModel) TableName() string {
	return "conversation_history"
}

// ToEntity converts the model to a domain record
func (m *ConversationHistoryModel) ToEntity() events.ConversationMessage {
	return events.ConversationMessage{
		ID:              m.ID,
		TenantID:        m.TenantID,
		UserID:          m.UserID,
		IsFromUser:      m.IsFromUser,
		Outcome:         m.ConversationOutcome,
		ConfidenceScore: m.ConfidenceScore,
		APICost:         m.APICostUSD,
		ProcessingCost:  m.ProcessingCostUSD,
		Context:         m.ConversationContext,
		CreatedAt:       m.CreatedAt,
	}
}

// AppointmentModel is the read-only GORM model over the appointments table
// owned by the booking system.
type AppointmentModel struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID        `gorm:"type:uuid;column:tenant_id"`
	UserID         uuid.UUID        `gorm:"type:uuid;column:user_id"`
	Status         string           `gorm:"column:status"`
	QuotedPrice    *decimal.Decimal `gorm:"column:quoted_price"`
	FinalPrice     *decimal.Decimal `gorm:"column:final_price"`
	ProfessionalID *uuid.UUID       `gorm:"type:uuid;column:professional_id"`
	ServiceID      *uuid.UUID       `gorm:"type:uuid;column:service_id"`
	StartTime      *time.Time       `gorm:"column:start_time"`
	EndTime        *time.Time       `gorm:"column:end_time"`
	CreatedAt      time.Time        `gorm:"column:created_at"`
}

// TableName returns the table name for the model
func (AppointmentModel) TableName() string {
	return "appointments"
}

// ToEntity converts the model to a domain record
func (m *AppointmentModel) ToEntity() events.Appointment {
	return events.Appointment{
		ID:             m.ID,
		TenantID:       m.TenantID,
		UserID:         m.UserID,
		Status:         events.AppointmentStatus(m.Status),
		QuotedPrice:    m.QuotedPrice,
		FinalPrice:     m.FinalPrice,
		ProfessionalID: m.ProfessionalID,
		ServiceID:      m.ServiceID,
		StartTime:      m.StartTime,
		EndTime:        m.EndTime,
		CreatedAt:      m.CreatedAt,
	}
}

// SubscriptionPaymentModel is the read-only GORM model over platform
// subscription charges.
type SubscriptionPaymentModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID       `gorm:"type:uuid;column:tenant_id"`
	Amount      decimal.Decimal `gorm:"column:amount"`
	PeriodStart time.Time       `gorm:"column:period_start"`
	PeriodEnd   time.Time       `gorm:"column:period_end"`
	Status      string          `gorm:"column:status"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
}

// TableName returns the table name for the model
func (SubscriptionPaymentModel) TableName() string {
	return "subscription_payments"
}

// ToEntity converts the model to a domain record
func (m *SubscriptionPaymentModel) ToEntity() events.SubscriptionPayment {
	return events.SubscriptionPayment{
		ID:          m.ID,
		TenantID:    m.TenantID,
		Amount:      m.Amount,
		PeriodStart: m.PeriodStart,
		PeriodEnd:   m.PeriodEnd,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
	}
}

// EventStoreRepository implements events.Store over the raw event tables.
// All reads are windowed on created_at and paginate by (created_at, id)
// keyset so no fetch materializes an unbounded result.
type EventStoreRepository struct {
	db *gorm.DB
}

// NewEventStoreRepository creates a new event store repository
func NewEventStoreRepository(db *gorm.DB) *EventStoreRepository {
	return &EventStoreRepository{db: db}
}

// FetchConversationMessages returns every conversation message for the tenant
// inside the window, ordered by creation time.
func (r *EventStoreRepository) FetchConversationMessages(ctx context.Context, tenantID uuid.UUID, w events.Window) ([]events.ConversationMessage, error) {
	var out []events.ConversationMessage
	lastCreatedAt := w.Start
	lastID := uuid.Nil

	for {
		var page []ConversationHistoryModel
		err := r.db.WithContext(ctx).
			Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, w.Start, w.End).
			Where("(created_at, id) > (?, ?)", lastCreatedAt, lastID).
			Order("created_at, id").
			Limit(fetchPageSize).
			Find(&page).Error
		if err != nil {
			return nil, err
		}
		for i := range page {
			out = append(out, page[i].ToEntity())
		}
		if len(page) < fetchPageSize {
			return out, nil
		}
		last := page[len(page)-1]
		lastCreatedAt, lastID = last.CreatedAt, last.ID
	}
}

// FetchAppointments returns every appointment created inside the window.
func (r *EventStoreRepository) FetchAppointments(ctx context.Context, tenantID uuid.UUID, w events.Window) ([]events.Appointment, error) {
	var out []events.Appointment
	lastCreatedAt := w.Start
	lastID := uuid.Nil

	for {
		var page []AppointmentModel
		err := r.db.WithContext(ctx).
			Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, w.Start, w.End).
			Where("(created_at, id) > (?, ?)", lastCreatedAt, lastID).
			Order("created_at, id").
			Limit(fetchPageSize).
			Find(&page).Error
		if err != nil {
			return nil, err
		}
		for i := range page {
			out = append(out, page[i].ToEntity())
		}
		if len(page) < fetchPageSize {
			return out, nil
		}
		last := page[len(page)-1]
		lastCreatedAt, lastID = last.CreatedAt, last.ID
	}
}

// FetchPayments returns every subscription payment charged inside the window.
func (r *EventStoreRepository) FetchPayments(ctx context.Context, tenantID uuid.UUID, w events.Window) ([]events.SubscriptionPayment, error) {
	var models []SubscriptionPaymentModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, w.Start, w.End).
		Order("created_at, id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]events.SubscriptionPayment, len(models))
	for i := range models {
		out[i] = models[i].ToEntity()
	}
	return out, nil
}

// ReturningCustomers reports which of the given customers have a completed or
// confirmed appointment created strictly before the given instant.
func (r *EventStoreRepository) ReturningCustomers(ctx context.Context, tenantID uuid.UUID, userIDs []uuid.UUID, before time.Time) (map[uuid.UUID]bool, error) {
	result := make(map[uuid.UUID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	var returning []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&AppointmentModel{}).
		Where("tenant_id = ? AND user_id IN ? AND created_at < ?", tenantID, userIDs, before).
		Where("status IN ?", []string{
			string(events.AppointmentCompleted),
			string(events.AppointmentConfirmed),
		}).
		Distinct("user_id").
		Pluck("user_id", &returning).Error
	if err != nil {
		return nil, err
	}

	for _, id := range returning {
		result[id] = true
	}
	return result, nil
}

// Watermark returns per-kind counts and newest timestamps over the tenant's
// events in the window. Two cheap aggregates per table instead of a full scan.
func (r *EventStoreRepository) Watermark(ctx context.Context, tenantID uuid.UUID, w events.Window) (events.Watermark, error) {
	var wm events.Watermark

	type aggregate struct {
		Count int64      `gorm:"column:count"`
		MaxAt *time.Time `gorm:"column:max_at"`
	}

	var conv aggregate
	err := r.db.WithContext(ctx).
		Model(&ConversationHistoryModel{}).
		Select("COUNT(*) AS count, MAX(created_at) AS max_at").
		Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, w.Start, w.End).
		Scan(&conv).Error
	if err != nil {
		return wm, err
	}
	wm.ConversationCount = conv.Count
	if conv.MaxAt != nil {
		wm.LastConversationAt = *conv.MaxAt
	}

	var appt aggregate
	err = r.db.WithContext(ctx).
		Model(&AppointmentModel{}).
		Select("COUNT(*) AS count, MAX(created_at) AS max_at").
		Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, w.Start, w.End).
		Scan(&appt).Error
	if err != nil {
		return wm, err
	}
	wm.AppointmentCount = appt.Count
	if appt.MaxAt != nil {
		wm.LastAppointmentAt = *appt.MaxAt
	}

	var pay aggregate
	err = r.db.WithContext(ctx).
		Model(&SubscriptionPaymentModel{}).
		Select("COUNT(*) AS count, MAX(created_at) AS max_at").
		Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, w.Start, w.End).
		Scan(&pay).Error
	if err != nil {
		return wm, err
	}
	wm.PaymentCount = pay.Count
	if pay.MaxAt != nil {
		wm.LastPaymentAt = *pay.MaxAt
	}

	return wm, nil
}

// Ensure EventStoreRepository implements the interface
var _ events.Store = (*EventStoreRepository)(nil)
