package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineStatus represents the resolution state of a lot line
type LineStatus string

const (
	LineStatusPendingResolution    LineStatus = "PENDING_RESOLUTION"
	LineStatusResolved             LineStatus = "RESOLVED"
	LineStatusAwaitingConfirmation LineStatus = "AWAITING_CONFIRMATION"
	LineStatusRejected             LineStatus = "REJECTED"
)

// LotLine is one received part within a lot
type LotLine struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	LotID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_lot_lines_lot_index,priority:1"`
	LineIndex     int             `gorm:"not null;uniqueIndex:idx_lot_lines_lot_index,priority:2"`
	PartName      string          `gorm:"type:varchar(200);not null"`
	Brand         string          `gorm:"type:varchar(100)"`
	VendorID      *uuid.UUID      `gorm:"type:uuid"`
	WarehouseID   *uuid.UUID      `gorm:"type:uuid"`
	ModelID       *uuid.UUID      `gorm:"type:uuid"`
	Quantity      int64           `gorm:"not null"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Status        LineStatus      `gorm:"type:varchar(32);not null"`
	CatalogItemID *uuid.UUID      `gorm:"type:uuid;index"`
	RejectReason  string          `gorm:"type:varchar(500)"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LotLine) TableName() string {
	return "lot_lines"
}

func newLotLine(lotID uuid.UUID, index int, c catalog.Candidate, quantity int64, unitCost decimal.Decimal) (*LotLine, error) {
	if _, err := catalog.NewIdentityKey(c); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, shared.NewValidationError("INVALID_QUANTITY", "line quantity must be positive")
	}
	if unitCost.IsNegative() {
		return nil, shared.NewValidationError("INVALID_UNIT_COST", "unit cost cannot be negative")
	}
	now := time.Now()
	return &LotLine{
		ID:          uuid.New(),
		LotID:       lotID,
		LineIndex:   index,
		PartName:    strings.TrimSpace(c.PartName),
		Brand:       strings.TrimSpace(c.Brand),
		VendorID:    c.VendorID,
		WarehouseID: c.WarehouseID,
		ModelID:     c.ModelID,
		Quantity:    quantity,
		UnitCost:    unitCost,
		Status:      LineStatusPendingResolution,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Candidate returns the identity fields of the line
func (l *LotLine) Candidate() catalog.Candidate {
	return catalog.Candidate{
		PartName:    l.PartName,
		Brand:       l.Brand,
		VendorID:    l.VendorID,
		WarehouseID: l.WarehouseID,
		ModelID:     l.ModelID,
	}
}

// IsTerminal reports whether the line needs no further decision
func (l *LotLine) IsTerminal() bool {
	return l.Status == LineStatusResolved || l.Status == LineStatusRejected
}

func (l *LotLine) resolve(catalogItemID uuid.UUID) error {
	if catalogItemID == uuid.Nil {
		return shared.NewValidationError("CATALOG_ITEM_REQUIRED", "a resolved line must reference a catalog item")
	}
	if l.Status != LineStatusPendingResolution && l.Status != LineStatusAwaitingConfirmation {
		return l.invalidTransition(LineStatusResolved)
	}
	l.Status = LineStatusResolved
	l.CatalogItemID = &catalogItemID
	l.UpdatedAt = time.Now()
	return nil
}

func (l *LotLine) awaitConfirmation() error {
	if l.Status != LineStatusPendingResolution {
		return l.invalidTransition(LineStatusAwaitingConfirmation)
	}
	l.Status = LineStatusAwaitingConfirmation
	l.UpdatedAt = time.Now()
	return nil
}

func (l *LotLine) reject(reason string) {
	l.Status = LineStatusRejected
	l.RejectReason = strings.TrimSpace(reason)
	l.UpdatedAt = time.Now()
}

func (l *LotLine) invalidTransition(to LineStatus) error {
	return shared.NewBusinessRuleViolation(
		"INVALID_LINE_TRANSITION",
		fmt.Sprintf("line %d cannot move from %s to %s", l.LineIndex, l.Status, to),
	)
}
