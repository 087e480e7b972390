package replica

import (
	"time"

	"github.com/google/uuid"
)

// BranchReplica is the local copy of a branch owned by the organization service.
// Every synced column is nullable so an explicit null can be stored.
type BranchReplica struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Code      *string    `gorm:"type:varchar(50)"`
	Name      *string    `gorm:"type:varchar(200)"`
	Address   *string    `gorm:"type:varchar(500)"`
	Phone     *string    `gorm:"type:varchar(50)"`
	Status    *string    `gorm:"type:varchar(20)"`
	ManagerID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BranchReplica) TableName() string {
	return "branch_replicas"
}

// EmployeeReplica is the local copy of an employee owned by the HR service
type EmployeeReplica struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	FullName  *string    `gorm:"type:varchar(200)"`
	Email     *string    `gorm:"type:varchar(200)"`
	Phone     *string    `gorm:"type:varchar(50)"`
	Position  *string    `gorm:"type:varchar(100)"`
	BranchID  *uuid.UUID `gorm:"type:uuid;index"`
	Status    *string    `gorm:"type:varchar(20)"`
	HiredAt   *time.Time
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (EmployeeReplica) TableName() string {
	return "employee_replicas"
}
