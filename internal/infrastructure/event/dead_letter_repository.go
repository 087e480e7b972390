package event

import (
	"context"

	"github.com/erp/invsync/internal/domain/shared"
	"gorm.io/gorm"
)

// GormDeadLetterRepository stores deliveries that could not be handled
type GormDeadLetterRepository struct {
	db *gorm.DB
}

// NewGormDeadLetterRepository creates a new GORM-based dead letter repository
func NewGormDeadLetterRepository(db *gorm.DB) *GormDeadLetterRepository {
	return &GormDeadLetterRepository{db: db}
}

// Save persists a dead letter
func (r *GormDeadLetterRepository) Save(ctx context.Context, dl *shared.DeadLetter) error {
	return r.db.WithContext(ctx).Create(dl).Error
}

// FindRecent returns dead letters newest first with the total count
func (r *GormDeadLetterRepository) FindRecent(ctx context.Context, page, pageSize int) ([]*shared.DeadLetter, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	var total int64
	if err := r.db.WithContext(ctx).Model(&shared.DeadLetter{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var letters []*shared.DeadLetter
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&letters).Error; err != nil {
		return nil, 0, err
	}
	return letters, total, nil
}

var _ shared.DeadLetterRepository = (*GormDeadLetterRepository)(nil)
