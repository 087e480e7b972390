package intake

import (
	"time"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/intake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiveLotCommand is the "lot received" command
type ReceiveLotCommand struct {
	LotNumber   string
	VendorID    *uuid.UUID
	WarehouseID *uuid.UUID
	ReceivedAt  time.Time
	Lines       []intake.LineInput
}

// ConfirmLineCommand approves the creation of a catalog item for a line
type ConfirmLineCommand struct {
	LotID     uuid.UUID
	LineIndex int
	Operator  string
	// Price of the new item; the line's unit cost when nil
	Price *decimal.Decimal
}

// DeclineLineCommand rejects a line awaiting confirmation
type DeclineLineCommand struct {
	LotID     uuid.UUID
	LineIndex int
	Operator  string
	Reason    string
}

// LotResponse represents a lot in API responses
type LotResponse struct {
	ID          uuid.UUID         `json:"id"`
	LotNumber   string            `json:"lot_number"`
	VendorID    *uuid.UUID        `json:"vendor_id,omitempty"`
	WarehouseID *uuid.UUID        `json:"warehouse_id,omitempty"`
	Status      string            `json:"status"`
	ReceivedAt  time.Time         `json:"received_at"`
	PostedAt    *time.Time        `json:"posted_at,omitempty"`
	Lines       []LotLineResponse `json:"lines"`
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// LotLineResponse represents a lot line in API responses
type LotLineResponse struct {
	LineIndex     int               `json:"line_index"`
	Candidate     catalog.Candidate `json:"candidate"`
	Quantity      int64             `json:"quantity"`
	UnitCost      decimal.Decimal   `json:"unit_cost"`
	Status        string            `json:"status"`
	CatalogItemID *uuid.UUID        `json:"catalog_item_id,omitempty"`
	RejectReason  string            `json:"reject_reason,omitempty"`
}

// ToLotResponse converts a domain lot to a response
func ToLotResponse(lot *intake.Lot) LotResponse {
	lines := make([]LotLineResponse, 0, len(lot.Lines))
	for i := range lot.Lines {
		line := &lot.Lines[i]
		lines = append(lines, LotLineResponse{
			LineIndex:     line.LineIndex,
			Candidate:     line.Candidate(),
			Quantity:      line.Quantity,
			UnitCost:      line.UnitCost,
			Status:        string(line.Status),
			CatalogItemID: line.CatalogItemID,
			RejectReason:  line.RejectReason,
		})
	}
	return LotResponse{
		ID:          lot.ID,
		LotNumber:   lot.LotNumber,
		VendorID:    lot.VendorID,
		WarehouseID: lot.WarehouseID,
		Status:      string(lot.Status),
		ReceivedAt:  lot.ReceivedAt,
		PostedAt:    lot.PostedAt,
		Lines:       lines,
		Version:     lot.Version,
		CreatedAt:   lot.CreatedAt,
		UpdatedAt:   lot.UpdatedAt,
	}
}
