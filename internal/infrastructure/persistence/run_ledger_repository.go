package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
	"github.com/Marseau/UBS-sub017/internal/domain/shared"
)

// MetricRunLedgerModel is the GORM model for orchestration run audit rows
type MetricRunLedgerModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RunDate           time.Time  `gorm:"not null;index"`
	Periods           []string   `gorm:"type:jsonb;serializer:json;not null"`
	Status            string     `gorm:"size:16;not null;index"`
	TenantsProcessed  int        `gorm:"not null;default:0"`
	TotalTenants      int        `gorm:"not null;default:0"`
	MetricsCalculated int        `gorm:"not null;default:0"`
	FailedTasks       int        `gorm:"not null;default:0"`
	CacheHits         int        `gorm:"not null;default:0"`
	ExecutionMS       int64      `gorm:"not null;default:0"`
	DataQualityScore  float64    `gorm:"not null;default:0"`
	ErrorMessage      string     `gorm:"type:text"`
	StartedAt         time.Time  `gorm:"not null"`
	CompletedAt       *time.Time `gorm:""`
	CreatedAt         time.Time  `gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (MetricRunLedgerModel) TableName() string {
	return "metric_run_ledger"
}

// ToEntity converts the model to a domain entity
func (m *MetricRunLedgerModel) ToEntity() *metrics.RunLedgerEntry {
	periods := make([]metrics.Period, len(m.Periods))
	for i, p := range m.Periods {
		periods[i] = metrics.Period(p)
	}
	return &metrics.RunLedgerEntry{
		ID:                m.ID,
		RunDate:           m.RunDate,
		Periods:           periods,
		Status:            metrics.RunStatus(m.Status),
		TenantsProcessed:  m.TenantsProcessed,
		TotalTenants:      m.TotalTenants,
		MetricsCalculated: m.MetricsCalculated,
		FailedTasks:       m.FailedTasks,
		CacheHits:         m.CacheHits,
		ExecutionTime:     time.Duration(m.ExecutionMS) * time.Millisecond,
		DataQualityScore:  m.DataQualityScore,
		ErrorMessage:      m.ErrorMessage,
		StartedAt:         m.StartedAt,
		CompletedAt:       m.CompletedAt,
	}
}

// MetricRunLedgerModelFromEntity creates a model from a domain entity
func MetricRunLedgerModelFromEntity(e *metrics.RunLedgerEntry) *MetricRunLedgerModel {
	periods := make([]string, len(e.Periods))
	for i, p := range e.Periods {
		periods[i] = p.String()
	}
	return &MetricRunLedgerModel{
		ID:                e.ID,
		RunDate:           e.RunDate,
		Periods:           periods,
		Status:            e.Status.String(),
		TenantsProcessed:  e.TenantsProcessed,
		TotalTenants:      e.TotalTenants,
		MetricsCalculated: e.MetricsCalculated,
		FailedTasks:       e.FailedTasks,
		CacheHits:         e.CacheHits,
		ExecutionMS:       e.ExecutionTime.Milliseconds(),
		DataQualityScore:  e.DataQualityScore,
		ErrorMessage:      e.ErrorMessage,
		StartedAt:         e.StartedAt,
		CompletedAt:       e.CompletedAt,
	}
}

// RunLedgerRepository implements metrics.RunLedgerRepository on PostgreSQL
type RunLedgerRepository struct {
	db *gorm.DB
}

// NewRunLedgerRepository creates a new run ledger repository
func NewRunLedgerRepository(db *gorm.DB) *RunLedgerRepository {
	return &RunLedgerRepository{db: db}
}

// Create persists a fresh running entry
func (r *RunLedgerRepository) Create(ctx context.Context, entry *metrics.RunLedgerEntry) error {
	model := MetricRunLedgerModelFromEntity(entry)
	return r.db.WithContext(ctx).Create(model).Error
}

// Finalize persists the terminal state of an entry
func (r *RunLedgerRepository) Finalize(ctx context.Context, entry *metrics.RunLedgerEntry) error {
	model := MetricRunLedgerModelFromEntity(entry)
	return r.db.WithContext(ctx).
		Model(&MetricRunLedgerModel{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":             model.Status,
			"tenants_processed":  model.TenantsProcessed,
			"total_tenants":      model.TotalTenants,
			"metrics_calculated": model.MetricsCalculated,
			"failed_tasks":       model.FailedTasks,
			"cache_hits":         model.CacheHits,
			"execution_ms":       model.ExecutionMS,
			"data_quality_score": model.DataQualityScore,
			"error_message":      model.ErrorMessage,
			"completed_at":       model.CompletedAt,
		}).Error
}

// FindByID retrieves a ledger entry by its run ID
func (r *RunLedgerRepository) FindByID(ctx context.Context, id uuid.UUID) (*metrics.RunLedgerEntry, error) {
	var model MetricRunLedgerModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// FindRecent retrieves the most recent entries, newest first
func (r *RunLedgerRepository) FindRecent(ctx context.Context, limit int) ([]*metrics.RunLedgerEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var models []MetricRunLedgerModel
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*metrics.RunLedgerEntry, len(models))
	for i := range models {
		entries[i] = models[i].ToEntity()
	}
	return entries, nil
}

// DeleteOlderThan removes entries older than the given date (for data retention)
func (r *RunLedgerRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("run_date < ?", before).
		Delete(&MetricRunLedgerModel{})
	return result.RowsAffected, result.Error
}

// Ensure RunLedgerRepository implements the interface
var _ metrics.RunLedgerRepository = (*RunLedgerRepository)(nil)
