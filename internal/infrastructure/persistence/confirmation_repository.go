package persistence

import (
	"context"

	"github.com/erp/invsync/internal/domain/intake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormConfirmationRepository implements ConfirmationRepository using GORM
type GormConfirmationRepository struct {
	db *gorm.DB
}

// NewGormConfirmationRepository creates a new GormConfirmationRepository
func NewGormConfirmationRepository(db *gorm.DB) *GormConfirmationRepository {
	return &GormConfirmationRepository{db: db}
}

// Create stores a decision. The unique (lot_id, line_index) index rejects a second one.
func (r *GormConfirmationRepository) Create(ctx context.Context, confirmation *intake.LineConfirmation) error {
	return translateError(r.db.WithContext(ctx).Create(confirmation).Error)
}

// FindByLot returns all decisions recorded for a lot
func (r *GormConfirmationRepository) FindByLot(ctx context.Context, lotID uuid.UUID) ([]intake.LineConfirmation, error) {
	var confirmations []intake.LineConfirmation
	err := r.db.WithContext(ctx).
		Where("lot_id = ?", lotID).
		Order("line_index ASC").
		Find(&confirmations).Error
	return confirmations, err
}

var _ intake.ConfirmationRepository = (*GormConfirmationRepository)(nil)
