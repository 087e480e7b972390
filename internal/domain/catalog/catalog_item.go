package catalog

import (
	"strings"
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeCatalogItem is the aggregate type for catalog items
const AggregateTypeCatalogItem = "CatalogItem"

// CreationApproval is an operator's recorded decision to mint a catalog item
// for a candidate identity. It is the only input NewCatalogItem accepts.
type CreationApproval struct {
	ConfirmationID uuid.UUID
	Candidate      Candidate
	ApprovedBy     string
	ApprovedAt     time.Time
}

// CatalogItem represents a spare-part master record.
// It is the aggregate root for quantity and status changes.
type CatalogItem struct {
	shared.BaseAggregateRoot
	PartName        string          `gorm:"type:varchar(200);not null"`
	Brand           *string         `gorm:"type:varchar(100)"`
	PartNameNorm    string          `gorm:"column:part_name_norm;type:varchar(200);not null;index"`
	BrandNorm       *string         `gorm:"column:brand_norm;type:varchar(100)"`
	VendorID        *uuid.UUID      `gorm:"type:uuid;index"`
	WarehouseID     *uuid.UUID      `gorm:"type:uuid"`
	ModelID         *uuid.UUID      `gorm:"type:uuid"`
	IdentityHash    string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	Quantity        int64           `gorm:"not null;default:0;check:chk_catalog_items_quantity,quantity >= 0"`
	Price           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Status          ProductStatus   `gorm:"type:varchar(20);not null"`
	StatusSequence  int64           `gorm:"not null;default:0"`
	StatusEventKey  string          `gorm:"type:varchar(128);not null;default:''"`
	StatusChangedAt *time.Time
	ConfirmationID  uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (CatalogItem) TableName() string {
	return "catalog_items"
}

// NewCatalogItem creates a catalog item from an approved creation decision.
// Without an approval there is no path to a new item.
func NewCatalogItem(approval *CreationApproval, price decimal.Decimal) (*CatalogItem, error) {
	if approval == nil || approval.ConfirmationID == uuid.Nil || strings.TrimSpace(approval.ApprovedBy) == "" {
		return nil, shared.NewBusinessRuleViolation("CATALOG_CREATION_UNCONFIRMED", "catalog items can only be created from an approved confirmation")
	}
	if price.IsNegative() {
		return nil, shared.NewValidationError("INVALID_PRICE", "price cannot be negative")
	}
	key, err := NewIdentityKey(approval.Candidate)
	if err != nil {
		return nil, err
	}

	item := &CatalogItem{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PartName:          strings.TrimSpace(approval.Candidate.PartName),
		PartNameNorm:      key.PartName,
		BrandNorm:         key.Brand,
		VendorID:          key.VendorID,
		WarehouseID:       key.WarehouseID,
		ModelID:           key.ModelID,
		IdentityHash:      key.Hash(),
		Price:             price,
		Status:            ProductStatusUnknown,
		ConfirmationID:    approval.ConfirmationID,
	}
	if brand := strings.TrimSpace(approval.Candidate.Brand); brand != "" {
		item.Brand = &brand
	}

	item.AddDomainEvent(NewCatalogItemCreatedEvent(item, approval))
	return item, nil
}

// IdentityKey rebuilds the normalized identity of the item
func (i *CatalogItem) IdentityKey() IdentityKey {
	return IdentityKey{
		PartName:    i.PartNameNorm,
		Brand:       i.BrandNorm,
		VendorID:    i.VendorID,
		WarehouseID: i.WarehouseID,
		ModelID:     i.ModelID,
	}
}

// IncreaseQuantity adds received stock
func (i *CatalogItem) IncreaseQuantity(delta int64) error {
	if delta <= 0 {
		return shared.NewValidationError("INVALID_QUANTITY", "quantity increment must be positive")
	}
	i.Quantity += delta
	i.UpdatedAt = time.Now()
	return nil
}

// ApplyStatus offers a status update carrying the given sequence.
// Updates older than the watermark are stale. Ties on sequence are broken by
// the event key so every delivery order converges on the same status.
// An update that does not change the status still advances the watermark.
func (i *CatalogItem) ApplyStatus(rule StatusRule, sequence int64, eventKey string, at time.Time) StatusDecision {
	if sequence < i.StatusSequence {
		return StatusDecisionStale
	}
	if sequence == i.StatusSequence && i.StatusEventKey != "" && eventKey < i.StatusEventKey {
		return StatusDecisionStale
	}

	i.StatusSequence = sequence
	i.StatusEventKey = eventKey
	i.UpdatedAt = at
	i.IncrementVersion()

	if i.Status == rule.Target {
		if !rule.NoOpWhenEqual {
			i.StatusChangedAt = &at
		}
		return StatusDecisionUnchanged
	}

	i.Status = rule.Target
	i.StatusChangedAt = &at
	return StatusDecisionApplied
}

func (i *CatalogItem) identityColumn(column string) (string, bool) {
	switch column {
	case ColumnPartName:
		return i.PartNameNorm, true
	case ColumnBrand:
		if i.BrandNorm == nil {
			return "", false
		}
		return *i.BrandNorm, true
	case ColumnVendor:
		return uuidColumn(i.VendorID)
	case ColumnWarehouse:
		return uuidColumn(i.WarehouseID)
	case ColumnModel:
		return uuidColumn(i.ModelID)
	}
	return "", false
}

func uuidColumn(id *uuid.UUID) (string, bool) {
	if id == nil {
		return "", false
	}
	return id.String(), true
}
