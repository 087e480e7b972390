package catalog

import (
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventTypeCatalogItemCreated = "catalog.item.created"
)

// CatalogItemCreatedEvent is raised when an operator-approved item is minted
type CatalogItemCreatedEvent struct {
	shared.BaseDomainEvent
	ItemID         uuid.UUID       `json:"item_id"`
	PartName       string          `json:"part_name"`
	Brand          *string         `json:"brand,omitempty"`
	VendorID       *uuid.UUID      `json:"vendor_id,omitempty"`
	WarehouseID    *uuid.UUID      `json:"warehouse_id,omitempty"`
	ModelID        *uuid.UUID      `json:"model_id,omitempty"`
	Price          decimal.Decimal `json:"price"`
	ConfirmationID uuid.UUID       `json:"confirmation_id"`
	ApprovedBy     string          `json:"approved_by"`
}

// NewCatalogItemCreatedEvent creates a new CatalogItemCreatedEvent
func NewCatalogItemCreatedEvent(item *CatalogItem, approval *CreationApproval) *CatalogItemCreatedEvent {
	return &CatalogItemCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeCatalogItemCreated,
			AggregateTypeCatalogItem,
			item.ID,
			shared.DeriveIdempotencyKey(approval.ConfirmationID.String(), "catalog_item_created"),
		),
		ItemID:         item.ID,
		PartName:       item.PartName,
		Brand:          item.Brand,
		VendorID:       item.VendorID,
		WarehouseID:    item.WarehouseID,
		ModelID:        item.ModelID,
		Price:          item.Price,
		ConfirmationID: approval.ConfirmationID,
		ApprovedBy:     approval.ApprovedBy,
	}
}
