package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
)

// TenantModel is the read-only GORM model over the tenants table
type TenantModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	BusinessName string    `gorm:"column:business_name"`
	Status       string    `gorm:"column:status"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName returns the table name for the model
func (TenantModel) TableName() string {
	return "tenants"
}

// GormTenantRepository implements metrics.TenantRepository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// ListActiveIDs returns the IDs of every tenant eligible for recomputation,
// in stable creation order.
func (r *GormTenantRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&TenantModel{}).
		Where("status = ?", "active").
		Order("created_at, id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Ensure GormTenantRepository implements the interface
var _ metrics.TenantRepository = (*GormTenantRepository)(nil)
