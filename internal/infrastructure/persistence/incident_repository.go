package persistence

import (
	"context"
	"time"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormIncidentRepository implements IncidentRepository using GORM
type GormIncidentRepository struct {
	db *gorm.DB
}

// NewGormIncidentRepository creates a new GormIncidentRepository
func NewGormIncidentRepository(db *gorm.DB) *GormIncidentRepository {
	return &GormIncidentRepository{db: db}
}

// Record stores a new incident
func (r *GormIncidentRepository) Record(ctx context.Context, incident *catalog.Incident) error {
	return r.db.WithContext(ctx).Create(incident).Error
}

// FindOpen returns unresolved incidents, newest first
func (r *GormIncidentRepository) FindOpen(ctx context.Context, limit int) ([]catalog.Incident, error) {
	query := r.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var incidents []catalog.Incident
	if err := query.Find(&incidents).Error; err != nil {
		return nil, err
	}
	return incidents, nil
}

// Resolve closes an open incident
func (r *GormIncidentRepository) Resolve(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&catalog.Incident{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ catalog.IncidentRepository = (*GormIncidentRepository)(nil)
