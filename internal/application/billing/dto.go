package billing

import (
	"time"

	"github.com/erp/invsync/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateInvoiceCommand creates a draft invoice or quotation
type CreateInvoiceCommand struct {
	InvoiceNumber string
	Kind          billing.DocumentKind
	Lines         []billing.LineInput
}

// ApprovalNotification is an external report of an invoice state change
type ApprovalNotification struct {
	InvoiceID  uuid.UUID
	PriorState string
	NewState   string
	ApprovedBy string
	ApprovedAt time.Time
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID             uuid.UUID             `json:"id"`
	InvoiceNumber  string                `json:"invoice_number"`
	Kind           string                `json:"kind"`
	Status         string                `json:"status"`
	Total          decimal.Decimal       `json:"total"`
	SubmittedAt    *time.Time            `json:"submitted_at,omitempty"`
	ApprovedAt     *time.Time            `json:"approved_at,omitempty"`
	ApprovedBy     string                `json:"approved_by,omitempty"`
	RejectReason   string                `json:"reject_reason,omitempty"`
	ConsolidatedAt *time.Time            `json:"consolidated_at,omitempty"`
	Lines          []InvoiceLineResponse `json:"lines"`
	Version        int                   `json:"version"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// InvoiceLineResponse represents an invoice line in API responses
type InvoiceLineResponse struct {
	LineIndex     int             `json:"line_index"`
	CatalogItemID uuid.UUID       `json:"catalog_item_id"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// ToInvoiceResponse converts a domain invoice to a response
func ToInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	lines := make([]InvoiceLineResponse, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		lines = append(lines, InvoiceLineResponse{
			LineIndex:     l.LineIndex,
			CatalogItemID: l.CatalogItemID,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
		})
	}
	return InvoiceResponse{
		ID:             inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		Kind:           string(inv.Kind),
		Status:         string(inv.Status),
		Total:          inv.Total(),
		SubmittedAt:    inv.SubmittedAt,
		ApprovedAt:     inv.ApprovedAt,
		ApprovedBy:     inv.ApprovedBy,
		RejectReason:   inv.RejectReason,
		ConsolidatedAt: inv.ConsolidatedAt,
		Lines:          lines,
		Version:        inv.Version,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}
