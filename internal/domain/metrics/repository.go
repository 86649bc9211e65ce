package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MetricsRepository is the persistence gateway for metrics snapshots.
// Uniqueness on (tenant_id, metric_kind, period) is enforced by the gateway,
// not by callers: Upsert replaces the whole value for an existing key.
type MetricsRepository interface {
	Upsert(ctx context.Context, record *MetricsRecord) error
	Get(ctx context.Context, tenantID uuid.UUID, kind MetricKind, period Period) (*MetricsRecord, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*MetricsRecord, error)
}

// RunLedgerRepository persists orchestration run audit rows.
type RunLedgerRepository interface {
	Create(ctx context.Context, entry *RunLedgerEntry) error
	Finalize(ctx context.Context, entry *RunLedgerEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*RunLedgerEntry, error)
	FindRecent(ctx context.Context, limit int) ([]*RunLedgerEntry, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// TenantRepository enumerates the tenants eligible for metric recomputation.
type TenantRepository interface {
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}
