package handler

import (
	"time"

	billingapp "github.com/erp/invsync/internal/application/billing"
	"github.com/erp/invsync/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest is the body of POST /invoices
// @name HandlerCreateInvoiceRequest
type CreateInvoiceRequest struct {
	InvoiceNumber string               `json:"invoice_number" binding:"required,max=64"`
	Kind          string               `json:"kind" binding:"omitempty,oneof=INVOICE QUOTATION"`
	Lines         []InvoiceLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// InvoiceLineRequest is one line of a new invoice
type InvoiceLineRequest struct {
	CatalogItemID uuid.UUID       `json:"catalog_item_id" binding:"required"`
	Quantity      int64           `json:"quantity" binding:"gte=1"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// ApproveInvoiceRequest is the body of an in-house approval
type ApproveInvoiceRequest struct {
	Approver string `json:"approver" binding:"max=64"`
}

// RejectInvoiceRequest is the body of a rejection
type RejectInvoiceRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// ApprovalTransitionRequest is a state change reported by the finance workflow
// @name HandlerApprovalTransitionRequest
type ApprovalTransitionRequest struct {
	InvoiceID  uuid.UUID  `json:"invoice_id" binding:"required"`
	PriorState string     `json:"prior_state" binding:"required"`
	NewState   string     `json:"new_state" binding:"required"`
	ApprovedBy string     `json:"approved_by" binding:"max=64"`
	ApprovedAt *time.Time `json:"approved_at"`
}

// ApprovalTransitionResponse reports the outcome of a finance notification
type ApprovalTransitionResponse struct {
	Invoice *billingapp.InvoiceResponse `json:"invoice"`
	Emitted bool                        `json:"emitted"`
}

func (r CreateInvoiceRequest) toCommand() billingapp.CreateInvoiceCommand {
	kind := billing.DocumentKind(r.Kind)
	if kind == "" {
		kind = billing.DocumentKindInvoice
	}
	lines := make([]billing.LineInput, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, billing.LineInput{
			CatalogItemID: l.CatalogItemID,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
		})
	}
	return billingapp.CreateInvoiceCommand{
		InvoiceNumber: r.InvoiceNumber,
		Kind:          kind,
		Lines:         lines,
	}
}

func (r ApprovalTransitionRequest) toNotification(now time.Time) billingapp.ApprovalNotification {
	approvedAt := now
	if r.ApprovedAt != nil {
		approvedAt = *r.ApprovedAt
	}
	return billingapp.ApprovalNotification{
		InvoiceID:  r.InvoiceID,
		PriorState: r.PriorState,
		NewState:   r.NewState,
		ApprovedBy: r.ApprovedBy,
		ApprovedAt: approvedAt,
	}
}
