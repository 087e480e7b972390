package persistence

import (
	"context"

	"github.com/erp/invsync/internal/domain/intake"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLotRepository implements LotRepository using GORM
type GormLotRepository struct {
	db *gorm.DB
}

// NewGormLotRepository creates a new GormLotRepository
func NewGormLotRepository(db *gorm.DB) *GormLotRepository {
	return &GormLotRepository{db: db}
}

// FindByID finds a lot by its ID
func (r *GormLotRepository) FindByID(ctx context.Context, id uuid.UUID) (*intake.Lot, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate finds a lot and locks its row for the current transaction
func (r *GormLotRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*intake.Lot, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

// FindByLotNumber finds a lot by its lot number
func (r *GormLotRepository) FindByLotNumber(ctx context.Context, lotNumber string) (*intake.Lot, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("lot_number = ?", lotNumber))
}

func (r *GormLotRepository) findOne(ctx context.Context, query *gorm.DB) (*intake.Lot, error) {
	var lot intake.Lot
	if err := query.First(&lot).Error; err != nil {
		return nil, translateError(err)
	}
	if err := r.db.WithContext(ctx).
		Where("lot_id = ?", lot.ID).
		Order("line_index ASC").
		Find(&lot.Lines).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

// Create inserts a lot and its lines
func (r *GormLotRepository) Create(ctx context.Context, lot *intake.Lot) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(lot).Error; err != nil {
			return err
		}
		if len(lot.Lines) == 0 {
			return nil
		}
		return tx.Create(&lot.Lines).Error
	})
	return translateError(err)
}

// Save persists the lot header and line states. The version column guards
// against a concurrent writer that did not lock the row.
func (r *GormLotRepository) Save(ctx context.Context, lot *intake.Lot) error {
	expected := lot.Version
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&intake.Lot{}).
			Where("id = ? AND version = ?", lot.ID, expected).
			UpdateColumns(map[string]any{
				"status":     lot.Status,
				"posted_at":  lot.PostedAt,
				"updated_at": lot.UpdatedAt,
				"version":    expected + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		for i := range lot.Lines {
			line := &lot.Lines[i]
			if err := tx.Model(&intake.LotLine{}).
				Where("id = ?", line.ID).
				UpdateColumns(map[string]any{
					"status":          line.Status,
					"catalog_item_id": line.CatalogItemID,
					"reject_reason":   line.RejectReason,
					"updated_at":      line.UpdatedAt,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	lot.Version = expected + 1
	return nil
}

var _ intake.LotRepository = (*GormLotRepository)(nil)
