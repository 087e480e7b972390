package persistence

import (
	"context"
	"time"

	"github.com/erp/invsync/internal/domain/replica"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormReplicaRepository implements replica.Repository using GORM
type GormReplicaRepository struct {
	db *gorm.DB
}

// NewGormReplicaRepository creates a new GormReplicaRepository
func NewGormReplicaRepository(db *gorm.DB) *GormReplicaRepository {
	return &GormReplicaRepository{db: db}
}

// Apply upserts the row and writes only the columns of the change set.
// Columns the change set does not name keep their stored value.
func (r *GormReplicaRepository) Apply(ctx context.Context, schema replica.Schema, cs replica.ChangeSet) error {
	if cs.IsEmpty() {
		return nil
	}

	now := time.Now()
	columns := cs.Columns()
	row := make(map[string]any, len(columns)+3)
	for _, col := range columns {
		row[col] = cs.Values[col]
	}
	row["id"] = cs.EntityID
	row["created_at"] = now
	row["updated_at"] = now

	return r.db.WithContext(ctx).
		Table(schema.Table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(append(columns, "updated_at")),
		}).
		Create(row).Error
}

// FindBranch returns the local copy of a branch
func (r *GormReplicaRepository) FindBranch(ctx context.Context, id string) (*replica.BranchReplica, error) {
	var branch replica.BranchReplica
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&branch).Error; err != nil {
		return nil, translateError(err)
	}
	return &branch, nil
}

// FindEmployee returns the local copy of an employee
func (r *GormReplicaRepository) FindEmployee(ctx context.Context, id string) (*replica.EmployeeReplica, error) {
	var employee replica.EmployeeReplica
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&employee).Error; err != nil {
		return nil, translateError(err)
	}
	return &employee, nil
}

var _ replica.Repository = (*GormReplicaRepository)(nil)
