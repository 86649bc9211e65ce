package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the read-only accessor over the raw event store. Implementations
// must support bounded reads: a fetch for a window returns only records whose
// created_at falls inside it, paginating internally as needed.
type Store interface {
	// FetchConversationMessages returns every conversation message for the
	// tenant inside the window, ordered by creation time.
	FetchConversationMessages(ctx context.Context, tenantID uuid.UUID, w Window) ([]ConversationMessage, error)

	// FetchAppointments returns every appointment created inside the window.
	FetchAppointments(ctx context.Context, tenantID uuid.UUID, w Window) ([]Appointment, error)

	// FetchPayments returns every subscription payment charged inside the window.
	FetchPayments(ctx context.Context, tenantID uuid.UUID, w Window) ([]SubscriptionPayment, error)

	// ReturningCustomers reports, for each given customer, whether that
	// customer has any completed or confirmed appointment created strictly
	// before the given instant.
	ReturningCustomers(ctx context.Context, tenantID uuid.UUID, userIDs []uuid.UUID, before time.Time) (map[uuid.UUID]bool, error)

	// Watermark returns cheap aggregate freshness markers over the tenant's
	// events in the window, used to fingerprint cache entries.
	Watermark(ctx context.Context, tenantID uuid.UUID, w Window) (Watermark, error)
}

// Watermark captures, per event kind, how many records exist in a window and
// when the newest one was appended. Two identical watermarks mean the inputs
// to a metrics computation have not changed.
type Watermark struct {
	ConversationCount  int64
	LastConversationAt time.Time
	AppointmentCount   int64
	LastAppointmentAt  time.Time
	PaymentCount       int64
	LastPaymentAt      time.Time
}

// Fingerprint derives a stable content hash from the watermark.
func (w Watermark) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf(
		"c:%d:%d|a:%d:%d|p:%d:%d",
		w.ConversationCount, w.LastConversationAt.UnixNano(),
		w.AppointmentCount, w.LastAppointmentAt.UnixNano(),
		w.PaymentCount, w.LastPaymentAt.UnixNano(),
	)))
	return hex.EncodeToString(sum[:])
}
