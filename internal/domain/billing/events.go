package billing

import (
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
)

// Event type constants
const (
	EventTypeProductStatusUpdate = "product.status.update"
)

// ApprovalFact is the business fact name mixed into the idempotency key
const ApprovalFact = "finance_approved"

// StatusUpdateLine is one product affected by an approval
type StatusUpdateLine struct {
	ProductRef uuid.UUID `json:"product_ref"`
	Quantity   int64     `json:"quantity"`
}

// ProductStatusUpdateEvent asks the catalog to move products to a target status
type ProductStatusUpdateEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID          `json:"invoice_id"`
	InvoiceNumber string             `json:"invoice_number"`
	Lines         []StatusUpdateLine `json:"lines"`
	TargetStatus  string             `json:"target_status"`
	// Sequence orders updates per product; it is the approval time in microseconds
	Sequence int64 `json:"sequence"`
}

// NewProductStatusUpdateEvent builds the event for a validated transition.
// The idempotency key depends only on the invoice and the approval fact.
func NewProductStatusUpdateEvent(t ApprovalTransition) *ProductStatusUpdateEvent {
	lines := make([]StatusUpdateLine, 0, len(t.lines))
	for _, l := range t.lines {
		lines = append(lines, StatusUpdateLine{ProductRef: l.CatalogItemID, Quantity: l.Quantity})
	}
	return &ProductStatusUpdateEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeProductStatusUpdate,
			AggregateTypeInvoice,
			t.invoiceID,
			ApprovalIdempotencyKey(t.invoiceID),
		),
		InvoiceID:     t.invoiceID,
		InvoiceNumber: t.invoiceNumber,
		Lines:         lines,
		TargetStatus:  t.kind.TargetStatus(),
		Sequence:      t.approvedAt.UnixMicro(),
	}
}

// ApprovalIdempotencyKey returns the key of the approval fact for an invoice
func ApprovalIdempotencyKey(invoiceID uuid.UUID) string {
	return shared.DeriveIdempotencyKey(invoiceID.String(), ApprovalFact)
}
