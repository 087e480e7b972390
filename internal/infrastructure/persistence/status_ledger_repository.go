package persistence

import (
	"context"

	"github.com/erp/invsync/internal/domain/catalog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStatusLedgerRepository implements StatusLedgerRepository using GORM
type GormStatusLedgerRepository struct {
	db *gorm.DB
}

// NewGormStatusLedgerRepository creates a new GormStatusLedgerRepository
func NewGormStatusLedgerRepository(db *gorm.DB) *GormStatusLedgerRepository {
	return &GormStatusLedgerRepository{db: db}
}

// Claim inserts the entry and reports whether this call won the key.
// Losing a race on the primary key is not an error.
func (r *GormStatusLedgerRepository) Claim(ctx context.Context, entry *catalog.StatusLedgerEntry) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetOutcome records the outcome of a claimed key
func (r *GormStatusLedgerRepository) SetOutcome(ctx context.Context, idempotencyKey string, outcome catalog.LedgerOutcome) error {
	return r.db.WithContext(ctx).
		Model(&catalog.StatusLedgerEntry{}).
		Where("idempotency_key = ?", idempotencyKey).
		Update("outcome", outcome).Error
}

// Exists reports whether the key was already claimed
func (r *GormStatusLedgerRepository) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&catalog.StatusLedgerEntry{}).
		Where("idempotency_key = ?", idempotencyKey).
		Count(&count).Error
	return count > 0, err
}

// FindByKey returns the ledger entry of a key
func (r *GormStatusLedgerRepository) FindByKey(ctx context.Context, idempotencyKey string) (*catalog.StatusLedgerEntry, error) {
	var entry catalog.StatusLedgerEntry
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", idempotencyKey).First(&entry).Error; err != nil {
		return nil, translateError(err)
	}
	return &entry, nil
}

var _ catalog.StatusLedgerRepository = (*GormStatusLedgerRepository)(nil)
