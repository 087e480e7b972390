package persistence

import (
	"context"
	"time"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCatalogItemRepository implements CatalogItemRepository using GORM
type GormCatalogItemRepository struct {
	db *gorm.DB
}

// NewGormCatalogItemRepository creates a new GormCatalogItemRepository
func NewGormCatalogItemRepository(db *gorm.DB) *GormCatalogItemRepository {
	return &GormCatalogItemRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormCatalogItemRepository) WithTx(tx *gorm.DB) *GormCatalogItemRepository {
	return &GormCatalogItemRepository{db: tx}
}

// FindByPredicate renders every dimension of the predicate. NULL dimensions
// become "column IS NULL" so a missing value never widens the match.
func (r *GormCatalogItemRepository) FindByPredicate(ctx context.Context, p catalog.IdentityPredicate, limit int) ([]catalog.CatalogItem, error) {
	if p.IsZero() {
		return nil, shared.NewValidationError("EMPTY_PREDICATE", "identity predicate has no conditions")
	}

	query := r.db.WithContext(ctx).Model(&catalog.CatalogItem{})
	for _, c := range p.Conditions() {
		column := clause.Column{Name: c.Column}
		if c.IsNull {
			query = query.Where(clause.Expr{SQL: "? IS NULL", Vars: []any{column}})
			continue
		}
		query = query.Where(clause.Eq{Column: column, Value: c.Value})
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []catalog.CatalogItem
	if err := query.Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FindByID finds an item by its ID
func (r *GormCatalogItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.CatalogItem, error) {
	var item catalog.CatalogItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

// FindByIDForUpdate finds an item and locks its row for the current transaction
func (r *GormCatalogItemRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*catalog.CatalogItem, error) {
	var item catalog.CatalogItem
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&item).Error; err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

// Create inserts a new item. The unique index on identity_hash turns a
// concurrent creation of the same identity into shared.ErrAlreadyExists.
// Inside a transaction the insert runs under a savepoint, so the caller's
// transaction stays usable after a collision.
func (r *GormCatalogItemRepository) Create(ctx context.Context, item *catalog.CatalogItem) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(item).Error
	})
	return translateError(err)
}

// IncrementQuantity atomically adds delta to the stored quantity
func (r *GormCatalogItemRepository) IncrementQuantity(ctx context.Context, id uuid.UUID, delta int64) error {
	if delta <= 0 {
		return shared.NewValidationError("INVALID_QUANTITY", "quantity increment must be positive")
	}
	result := r.db.WithContext(ctx).
		Model(&catalog.CatalogItem{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", delta),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SaveStatus persists the status columns and watermark of an item. The
// in-memory version was already advanced by ApplyStatus.
func (r *GormCatalogItemRepository) SaveStatus(ctx context.Context, item *catalog.CatalogItem) error {
	result := r.db.WithContext(ctx).
		Model(&catalog.CatalogItem{}).
		Where("id = ? AND version = ?", item.ID, item.Version-1).
		UpdateColumns(map[string]any{
			"status":            item.Status,
			"status_sequence":   item.StatusSequence,
			"status_event_key":  item.StatusEventKey,
			"status_changed_at": item.StatusChangedAt,
			"version":           item.Version,
			"updated_at":        item.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

var _ catalog.CatalogItemRepository = (*GormCatalogItemRepository)(nil)
