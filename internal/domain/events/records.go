// Package events defines the read-only raw event records consumed by the
// metrics engine: conversation messages, appointments, and subscription
// payments. The event store owns and appends these records; this subsystem
// never mutates them.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// MessageContext is the structured subset of the free-form context blob
// attached to a conversation message. Every field is optional; absence is a
// first-class case, not an error.
type MessageContext struct {
	SessionID       string   `json:"session_id,omitempty"`
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
}

// ConversationMessage is one message in the conversation history.
type ConversationMessage struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	UserID          uuid.UUID
	IsFromUser      bool
	Outcome         string
	ConfidenceScore *float64
	APICost         decimal.Decimal
	ProcessingCost  decimal.Decimal
	Context         *MessageContext
	CreatedAt       time.Time
}

// SessionID returns the session identifier from the message context, or the
// empty string when the context carries none.
func (m *ConversationMessage) SessionID() string {
	if m.Context == nil {
		return ""
	}
	return m.Context.SessionID
}

// AppointmentStatus is the appointment lifecycle state recorded by the
// booking system.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// IsRevenueBearing reports whether appointments in this status contribute to
// recognized revenue.
func (s AppointmentStatus) IsRevenueBearing() bool {
	return s == AppointmentCompleted || s == AppointmentConfirmed
}

// Appointment is one appointment record.
type Appointment struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	UserID         uuid.UUID
	Status         AppointmentStatus
	QuotedPrice    *decimal.Decimal
	FinalPrice     *decimal.Decimal
	ProfessionalID *uuid.UUID
	ServiceID      *uuid.UUID
	StartTime      *time.Time
	EndTime        *time.Time
	CreatedAt      time.Time
}

// EffectivePrice returns the price an appointment is worth: the final price
// when set, otherwise the quoted price, otherwise zero.
func (a *Appointment) EffectivePrice() decimal.Decimal {
	if a.FinalPrice != nil {
		return *a.FinalPrice
	}
	if a.QuotedPrice != nil {
		return *a.QuotedPrice
	}
	return decimal.Zero
}

// SubscriptionPayment is one platform subscription charge for a tenant.
type SubscriptionPayment struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Amount      decimal.Decimal
	PeriodStart time.Time
	PeriodEnd   time.Time
	Status      string
	CreatedAt   time.Time
}
