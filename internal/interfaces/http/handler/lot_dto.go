package handler

import (
	"time"

	intakeapp "github.com/erp/invsync/internal/application/intake"
	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/intake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiveLotRequest is the body of POST /lots
// @name HandlerReceiveLotRequest
type ReceiveLotRequest struct {
	LotNumber   string               `json:"lot_number" binding:"required,max=64"`
	VendorID    *uuid.UUID           `json:"vendor_id"`
	WarehouseID *uuid.UUID           `json:"warehouse_id"`
	ReceivedAt  *time.Time           `json:"received_at"`
	Lines       []ReceiveLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ReceiveLineRequest is one line of a received lot
type ReceiveLineRequest struct {
	PartName string          `json:"part_name" binding:"required,max=200"`
	Brand    string          `json:"brand" binding:"max=100"`
	ModelID  *uuid.UUID      `json:"model_id"`
	Quantity int64           `json:"quantity" binding:"gte=1"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// ConfirmLineRequest is the body of a line confirmation
type ConfirmLineRequest struct {
	Operator string           `json:"operator" binding:"max=64"`
	Price    *decimal.Decimal `json:"price"`
}

// DeclineLineRequest is the body of a line decline
type DeclineLineRequest struct {
	Operator string `json:"operator" binding:"max=64"`
	Reason   string `json:"reason" binding:"required,max=500"`
}

func (r ReceiveLotRequest) toCommand() intakeapp.ReceiveLotCommand {
	var receivedAt time.Time
	if r.ReceivedAt != nil {
		receivedAt = *r.ReceivedAt
	}
	lines := make([]intake.LineInput, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, intake.LineInput{
			Candidate: catalog.Candidate{
				PartName: l.PartName,
				Brand:    l.Brand,
				ModelID:  l.ModelID,
			},
			Quantity: l.Quantity,
			UnitCost: l.UnitCost,
		})
	}
	return intakeapp.ReceiveLotCommand{
		LotNumber:   r.LotNumber,
		VendorID:    r.VendorID,
		WarehouseID: r.WarehouseID,
		ReceivedAt:  receivedAt,
		Lines:       lines,
	}
}
