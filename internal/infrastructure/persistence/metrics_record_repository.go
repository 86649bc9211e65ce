package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
	"github.com/Marseau/UBS-sub017/internal/domain/shared"
)

// TenantMetricModel is the GORM model for computed metrics snapshots. The
// composite unique index backs the whole-value upsert semantics: one row per
// (tenant_id, metric_kind, period).
type TenantMetricModel struct {
	ID           uuid.UUID            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID     uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:ux_tenant_metric_period"`
	MetricKind   string               `gorm:"size:64;not null;uniqueIndex:ux_tenant_metric_period"`
	Period       string               `gorm:"size:8;not null;uniqueIndex:ux_tenant_metric_period"`
	Value        metrics.MetricsValue `gorm:"type:jsonb;serializer:json;not null"`
	CalculatedAt time.Time            `gorm:"not null"`
	CreatedAt    time.Time            `gorm:"autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (TenantMetricModel) TableName() string {
	return "tenant_metrics"
}

// ToEntity converts the model to a domain record
func (m *TenantMetricModel) ToEntity() *metrics.MetricsRecord {
	return &metrics.MetricsRecord{
		TenantID:     m.TenantID,
		Kind:         metrics.MetricKind(m.MetricKind),
		Period:       metrics.Period(m.Period),
		Value:        m.Value,
		CalculatedAt: m.CalculatedAt,
	}
}

// TenantMetricModelFromEntity creates a model from a domain record
func TenantMetricModelFromEntity(r *metrics.MetricsRecord) *TenantMetricModel {
	return &TenantMetricModel{
		ID:           uuid.New(),
		TenantID:     r.TenantID,
		MetricKind:   r.Kind.String(),
		Period:       r.Period.String(),
		Value:        r.Value,
		CalculatedAt: r.CalculatedAt,
	}
}

// MetricsRecordRepository implements metrics.MetricsRepository on PostgreSQL
type MetricsRecordRepository struct {
	db *gorm.DB
}

// NewMetricsRecordRepository creates a new metrics record repository
func NewMetricsRecordRepository(db *gorm.DB) *MetricsRecordRepository {
	return &MetricsRecordRepository{db: db}
}

// Upsert creates or fully replaces the snapshot for (tenant, kind, period)
func (r *MetricsRecordRepository) Upsert(ctx context.Context, record *metrics.MetricsRecord) error {
	model := TenantMetricModelFromEntity(record)

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "metric_kind"}, {Name: "period"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"calculated_at",
			"updated_at",
		}),
	}).Create(model).Error
}

// Get retrieves the snapshot for (tenant, kind, period)
func (r *MetricsRecordRepository) Get(ctx context.Context, tenantID uuid.UUID, kind metrics.MetricKind, period metrics.Period) (*metrics.MetricsRecord, error) {
	var model TenantMetricModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND metric_kind = ? AND period = ?", tenantID, kind.String(), period.String()).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// ListByTenant retrieves every snapshot stored for a tenant
func (r *MetricsRecordRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*metrics.MetricsRecord, error) {
	var models []TenantMetricModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("metric_kind, period").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]*metrics.MetricsRecord, len(models))
	for i := range models {
		records[i] = models[i].ToEntity()
	}
	return records, nil
}

// Ensure MetricsRecordRepository implements the interface
var _ metrics.MetricsRepository = (*MetricsRecordRepository)(nil)
