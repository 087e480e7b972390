package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeInvoice is the aggregate type for invoices
const AggregateTypeInvoice = "Invoice"

// DocumentKind distinguishes invoices from quotations
type DocumentKind string

const (
	DocumentKindInvoice   DocumentKind = "INVOICE"
	DocumentKindQuotation DocumentKind = "QUOTATION"
)

// IsValid reports whether k is a known document kind
func (k DocumentKind) IsValid() bool {
	return k == DocumentKindInvoice || k == DocumentKindQuotation
}

// TargetStatus returns the product.status.update target_status an approval
// of this kind of document requests
func (k DocumentKind) TargetStatus() string {
	if k == DocumentKindQuotation {
		return "reserved"
	}
	return "sold"
}

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft                InvoiceStatus = "DRAFT"
	InvoiceStatusPendingFinanceReview InvoiceStatus = "PENDING_FINANCE_REVIEW"
	InvoiceStatusFinanceApproved      InvoiceStatus = "FINANCE_APPROVED"
	InvoiceStatusConsolidated         InvoiceStatus = "CONSOLIDATED"
	InvoiceStatusRejected             InvoiceStatus = "REJECTED"
)

// ParseInvoiceStatus converts a wire state name into an InvoiceStatus
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	status := InvoiceStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case InvoiceStatusDraft, InvoiceStatusPendingFinanceReview, InvoiceStatusFinanceApproved,
		InvoiceStatusConsolidated, InvoiceStatusRejected:
		return status, nil
	}
	return "", shared.NewValidationError("UNKNOWN_INVOICE_STATE", "unknown invoice state: "+s)
}

// LineInput is one product line of a new invoice
type LineInput struct {
	CatalogItemID uuid.UUID
	Quantity      int64
	UnitPrice     decimal.Decimal
}

// InvoiceLine is one product sold or reserved by an invoice
type InvoiceLine struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineIndex     int             `gorm:"not null"`
	CatalogItemID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity      int64           `gorm:"not null"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (InvoiceLine) TableName() string {
	return "invoice_lines"
}

// Invoice represents an invoice or quotation.
// It is the aggregate root for its lines.
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber  string        `gorm:"type:varchar(64);not null;uniqueIndex"`
	Kind           DocumentKind  `gorm:"type:varchar(20);not null"`
	Status         InvoiceStatus `gorm:"type:varchar(32);not null;index"`
	SubmittedAt    *time.Time
	ApprovedAt     *time.Time
	ApprovedBy     string `gorm:"type:varchar(100)"`
	RejectReason   string `gorm:"type:varchar(500)"`
	ConsolidatedAt *time.Time
	Lines          []InvoiceLine `gorm:"foreignKey:InvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (Invoice) TableName() string {
	return "invoices"
}

// NewInvoice creates a draft invoice or quotation
func NewInvoice(number string, kind DocumentKind, inputs []LineInput) (*Invoice, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, shared.NewValidationError("INVOICE_NUMBER_REQUIRED", "invoice number cannot be empty")
	}
	if !kind.IsValid() {
		return nil, shared.NewValidationError("INVALID_DOCUMENT_KIND", fmt.Sprintf("unknown document kind: %s", kind))
	}
	if len(inputs) == 0 {
		return nil, shared.NewValidationError("INVOICE_LINES_REQUIRED", "invoice must have at least one line")
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     number,
		Kind:              kind,
		Status:            InvoiceStatusDraft,
		Lines:             make([]InvoiceLine, 0, len(inputs)),
	}
	for i, in := range inputs {
		if in.CatalogItemID == uuid.Nil {
			return nil, shared.NewValidationError("CATALOG_ITEM_REQUIRED", fmt.Sprintf("line %d has no catalog item", i))
		}
		if in.Quantity <= 0 {
			return nil, shared.NewValidationError("INVALID_QUANTITY", fmt.Sprintf("line %d quantity must be positive", i))
		}
		if in.UnitPrice.IsNegative() {
			return nil, shared.NewValidationError("INVALID_PRICE", fmt.Sprintf("line %d price cannot be negative", i))
		}
		inv.Lines = append(inv.Lines, InvoiceLine{
			ID:            uuid.New(),
			InvoiceID:     inv.ID,
			LineIndex:     i,
			CatalogItemID: in.CatalogItemID,
			Quantity:      in.Quantity,
			UnitPrice:     in.UnitPrice,
		})
	}
	return inv, nil
}

// Total returns the sum of line amounts
func (inv *Invoice) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range inv.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)))
	}
	return total
}

// SubmitForReview hands a draft to finance
func (inv *Invoice) SubmitForReview() error {
	if inv.Status != InvoiceStatusDraft {
		return inv.invalidTransition(InvoiceStatusPendingFinanceReview)
	}
	now := time.Now()
	inv.Status = InvoiceStatusPendingFinanceReview
	inv.SubmittedAt = &now
	inv.UpdatedAt = now
	return nil
}

// ApproveFinance records finance approval and returns the transition that
// must be handed to the approval producer in the same transaction.
func (inv *Invoice) ApproveFinance(approver string, at time.Time) (ApprovalTransition, error) {
	if strings.TrimSpace(approver) == "" {
		return ApprovalTransition{}, shared.NewValidationError("APPROVER_REQUIRED", "an approver must be recorded")
	}
	if inv.Status != InvoiceStatusPendingFinanceReview {
		return ApprovalTransition{}, inv.invalidTransition(InvoiceStatusFinanceApproved)
	}
	if at.IsZero() {
		at = time.Now()
	}
	prior := inv.Status
	inv.Status = InvoiceStatusFinanceApproved
	inv.ApprovedAt = &at
	inv.ApprovedBy = approver
	inv.UpdatedAt = at
	return newApprovalTransition(inv, prior, inv.Status), nil
}

// Reject sends a document back from finance review
func (inv *Invoice) Reject(reason string) error {
	if inv.Status != InvoiceStatusPendingFinanceReview {
		return inv.invalidTransition(InvoiceStatusRejected)
	}
	inv.Status = InvoiceStatusRejected
	inv.RejectReason = strings.TrimSpace(reason)
	inv.UpdatedAt = time.Now()
	return nil
}

// Consolidate folds an approved invoice into the final consolidated invoice.
// It is a billing-local change and triggers no product status update.
func (inv *Invoice) Consolidate() error {
	if inv.Status != InvoiceStatusFinanceApproved {
		return inv.invalidTransition(InvoiceStatusConsolidated)
	}
	if inv.Kind != DocumentKindInvoice {
		return shared.NewBusinessRuleViolation("QUOTATION_NOT_CONSOLIDATABLE", "quotations cannot be consolidated")
	}
	now := time.Now()
	inv.Status = InvoiceStatusConsolidated
	inv.ConsolidatedAt = &now
	inv.UpdatedAt = now
	return nil
}

func (inv *Invoice) invalidTransition(to InvoiceStatus) error {
	return shared.NewBusinessRuleViolation(
		"INVALID_INVOICE_TRANSITION",
		fmt.Sprintf("invoice %s cannot move from %s to %s", inv.InvoiceNumber, inv.Status, to),
	)
}
