package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Marseau/UBS-sub017/internal/domain/events"
)

func setupEventStoreTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&ConversationHistoryModel{},
		&AppointmentModel{},
		&SubscriptionPaymentModel{},
	)
	require.NoError(t, err)

	return db
}

func seedMessage(t *testing.T, db *gorm.DB, tenantID, userID uuid.UUID, createdAt time.Time) uuid.UUID {
	t.Helper()
	model := &ConversationHistoryModel{
		ID:         uuid.New(),
		TenantID:   tenantID,
		UserID:     userID,
		IsFromUser: true,
		APICostUSD: decimal.RequireFromString("0.0021"),
		CreatedAt:  createdAt,
	}
	require.NoError(t, db.Create(model).Error)
	return model.ID
}

func seedAppointment(t *testing.T, db *gorm.DB, tenantID, userID uuid.UUID, status string, createdAt time.Time) uuid.UUID {
	t.Helper()
	price := decimal.RequireFromString("150.00")
	model := &AppointmentModel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		UserID:      userID,
		Status:      status,
		QuotedPrice: &price,
		CreatedAt:   createdAt,
	}
	require.NoError(t, db.Create(model).Error)
	return model.ID
}

func TestEventStoreRepository_FetchConversationMessagesWindowed(t *testing.T) {
	db := setupEventStoreTestDB(t)
	repo := NewEventStoreRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	userID := uuid.New()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	seedMessage(t, db, tenantID, userID, start.Add(-time.Second)) // before window
	inWindow := seedMessage(t, db, tenantID, userID, start)      // inclusive start
	seedMessage(t, db, tenantID, userID, end.Add(-time.Second))
	seedMessage(t, db, tenantID, userID, end)             // exclusive end
	seedMessage(t, db, uuid.New(), userID, start.Add(time.Hour)) // other tenant

	messages, err := repo.FetchConversationMessages(ctx, tenantID, events.Window{Start: start, End: end})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, inWindow, messages[0].ID)
	assert.True(t, messages[0].CreatedAt.Before(messages[1].CreatedAt))
	assert.True(t, messages[0].APICost.Equal(decimal.RequireFromString("0.0021")))
}

func TestEventStoreRepository_FetchAppointmentsWindowed(t *testing.T) {
	db := setupEventStoreTestDB(t)
	repo := NewEventStoreRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	seedAppointment(t, db, tenantID, uuid.New(), "completed", start.Add(24*time.Hour))
	seedAppointment(t, db, tenantID, uuid.New(), "cancelled", start.Add(48*time.Hour))
	seedAppointment(t, db, tenantID, uuid.New(), "completed", end.Add(time.Hour))

	appointments, err := repo.FetchAppointments(ctx, tenantID, events.Window{Start: start, End: end})
	require.NoError(t, err)
	require.Len(t, appointments, 2)
	assert.Equal(t, events.AppointmentCompleted, appointments[0].Status)
	require.NotNil(t, appointments[0].QuotedPrice)
	assert.True(t, appointments[0].QuotedPrice.Equal(decimal.RequireFromString("150.00")))
}

func TestEventStoreRepository_FetchPaymentsWindowed(t *testing.T) {
	db := setupEventStoreTestDB(t)
	repo := NewEventStoreRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	require.NoError(t, db.Create(&SubscriptionPaymentModel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Amount:      decimal.RequireFromString("116.00"),
		PeriodStart: start,
		PeriodEnd:   end,
		Status:      "paid",
		CreatedAt:   start.Add(time.Hour),
	}).Error)
	require.NoError(t, db.Create(&SubscriptionPaymentModel{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Amount:    decimal.RequireFromString("58.00"),
		Status:    "paid",
		CreatedAt: end.Add(time.Hour),
	}).Error)

	payments, err := repo.FetchPayments(ctx, tenantID, events.Window{Start: start, End: end})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Amount.Equal(decimal.RequireFromString("116.00")))
	assert.Equal(t, "paid", payments[0].Status)
}

func TestEventStoreRepository_ReturningCustomers(t *testing.T) {
	db := setupEventStoreTestDB(t)
	repo := NewEventStoreRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	periodStart := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)

	returning := uuid.New()  // completed before the period
	cancelled := uuid.New()  // only a cancelled visit before the period
	recent := uuid.New()     // completed inside the period, not before it
	firstTimer := uuid.New() // no history at all

	seedAppointment(t, db, tenantID, returning, "completed", periodStart.Add(-48*time.Hour))
	seedAppointment(t, db, tenantID, cancelled, "cancelled", periodStart.Add(-48*time.Hour))
	seedAppointment(t, db, tenantID, recent, "completed", periodStart.Add(time.Hour))
	// Same user completed under a different tenant does not count.
	seedAppointment(t, db, uuid.New(), firstTimer, "completed", periodStart.Add(-48*time.Hour))

	result, err := repo.ReturningCustomers(ctx, tenantID, []uuid.UUID{returning, cancelled, recent, firstTimer}, periodStart)
	require.NoError(t, err)
	assert.True(t, result[returning])
	assert.False(t, result[cancelled])
	assert.False(t, result[recent])
	assert.False(t, result[firstTimer])
}

func TestEventStoreRepository_ReturningCustomersEmptyInput(t *testing.T) {
	db := setupEventStoreTestDB(t)
	repo := NewEventStoreRepository(db)

	result, err := repo.ReturningCustomers(context.Background(), uuid.New(), nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestEventStoreRepository_Watermark(t *testing.T) {
	db := setupEventStoreTestDB(t)
	repo := NewEventStoreRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	userID := uuid.New()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	seedMessage(t, db, tenantID, userID, start.Add(time.Hour))
	seedMessage(t, db, tenantID, userID, start.Add(2*time.Hour))
	seedMessage(t, db, tenantID, userID, end.Add(time.Hour)) // outside window
	seedAppointment(t, db, tenantID, userID, "completed", start.Add(3*time.Hour))

	wm, err := repo.Watermark(ctx, tenantID, events.Window{Start: start, End: end})
	require.NoError(t, err)
	assert.Equal(t, int64(2), wm.ConversationCount)
	assert.Equal(t, int64(1), wm.AppointmentCount)
	assert.Equal(t, int64(0), wm.PaymentCount)
	assert.Equal(t, start.Add(2*time.Hour).Unix(), wm.LastConversationAt.Unix())
	assert.True(t, wm.LastPaymentAt.IsZero())
}

func TestEventStoreRepository_WatermarkEmptyWindow(t *testing.T) {
	db := setupEventStoreTestDB(t)
	repo := NewEventStoreRepository(db)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	wm, err := repo.Watermark(context.Background(), uuid.New(), events.Window{Start: start, End: start.AddDate(0, 0, 7)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), wm.ConversationCount)
	assert.NotEmpty(t, wm.Fingerprint())
}
