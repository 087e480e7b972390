package persistence

import (
	"context"

	"github.com/erp/invsync/internal/domain/billing"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice with its lines
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate finds an invoice and locks its row for the current transaction
func (r *GormInvoiceRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *GormInvoiceRepository) findOne(ctx context.Context, query *gorm.DB) (*billing.Invoice, error) {
	var inv billing.Invoice
	if err := query.First(&inv).Error; err != nil {
		return nil, translateError(err)
	}
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", inv.ID).
		Order("line_index ASC").
		Find(&inv.Lines).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// Create inserts an invoice and its lines
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *billing.Invoice) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(inv).Error; err != nil {
			return err
		}
		if len(inv.Lines) == 0 {
			return nil
		}
		return tx.Create(&inv.Lines).Error
	})
	return translateError(err)
}

// Save persists the invoice header with optimistic locking. Lines are
// immutable after creation.
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *billing.Invoice) error {
	expected := inv.Version
	result := r.db.WithContext(ctx).
		Model(&billing.Invoice{}).
		Where("id = ? AND version = ?", inv.ID, expected).
		UpdateColumns(map[string]any{
			"status":          inv.Status,
			"submitted_at":    inv.SubmittedAt,
			"approved_at":     inv.ApprovedAt,
			"approved_by":     inv.ApprovedBy,
			"reject_reason":   inv.RejectReason,
			"consolidated_at": inv.ConsolidatedAt,
			"updated_at":      inv.UpdatedAt,
			"version":         expected + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	inv.Version = expected + 1
	return nil
}

var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
