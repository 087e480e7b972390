package catalog

import (
	"time"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogItemResponse represents a catalog item in API responses
type CatalogItemResponse struct {
	ID              uuid.UUID       `json:"id"`
	PartName        string          `json:"part_name"`
	Brand           *string         `json:"brand,omitempty"`
	VendorID        *uuid.UUID      `json:"vendor_id,omitempty"`
	WarehouseID     *uuid.UUID      `json:"warehouse_id,omitempty"`
	ModelID         *uuid.UUID      `json:"model_id,omitempty"`
	IdentityHash    string          `json:"identity_hash"`
	Quantity        int64           `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Status          string          `json:"status"`
	StatusSequence  int64           `json:"status_sequence"`
	StatusChangedAt *time.Time      `json:"status_changed_at,omitempty"`
	ConfirmationID  uuid.UUID       `json:"confirmation_id"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IncidentResponse represents a consistency incident in API responses
type IncidentResponse struct {
	ID         uuid.UUID  `json:"id"`
	Kind       string     `json:"kind"`
	Subject    string     `json:"subject"`
	Source     string     `json:"source"`
	Detail     string     `json:"detail,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ToCatalogItemResponse converts a domain item to a response
func ToCatalogItemResponse(item *catalog.CatalogItem) CatalogItemResponse {
	return CatalogItemResponse{
		ID:              item.ID,
		PartName:        item.PartName,
		Brand:           item.Brand,
		VendorID:        item.VendorID,
		WarehouseID:     item.WarehouseID,
		ModelID:         item.ModelID,
		IdentityHash:    item.IdentityHash,
		Quantity:        item.Quantity,
		Price:           item.Price,
		Status:          string(item.Status),
		StatusSequence:  item.StatusSequence,
		StatusChangedAt: item.StatusChangedAt,
		ConfirmationID:  item.ConfirmationID,
		Version:         item.Version,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
}

// ToIncidentResponse converts a domain incident to a response
func ToIncidentResponse(i *catalog.Incident) IncidentResponse {
	return IncidentResponse{
		ID:         i.ID,
		Kind:       string(i.Kind),
		Subject:    i.Subject,
		Source:     i.Source,
		Detail:     i.Detail,
		CreatedAt:  i.CreatedAt,
		ResolvedAt: i.ResolvedAt,
	}
}
