package billing

import (
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
)

// ApprovalTransition is the proof that a document moved from finance review
// to finance approved. Its fields are unexported so the only way to obtain a
// valid one is Invoice.ApproveFinance; the zero value is invalid.
type ApprovalTransition struct {
	invoiceID     uuid.UUID
	invoiceNumber string
	kind          DocumentKind
	prior         InvoiceStatus
	next          InvoiceStatus
	approvedBy    string
	approvedAt    time.Time
	lines         []InvoiceLine
}

func newApprovalTransition(inv *Invoice, prior, next InvoiceStatus) ApprovalTransition {
	lines := make([]InvoiceLine, len(inv.Lines))
	copy(lines, inv.Lines)
	return ApprovalTransition{
		invoiceID:     inv.ID,
		invoiceNumber: inv.InvoiceNumber,
		kind:          inv.Kind,
		prior:         prior,
		next:          next,
		approvedBy:    inv.ApprovedBy,
		approvedAt:    *inv.ApprovedAt,
		lines:         lines,
	}
}

// InvoiceID returns the approved document's ID
func (t ApprovalTransition) InvoiceID() uuid.UUID { return t.invoiceID }

// InvoiceNumber returns the approved document's number
func (t ApprovalTransition) InvoiceNumber() string { return t.invoiceNumber }

// Kind returns the approved document's kind
func (t ApprovalTransition) Kind() DocumentKind { return t.kind }

// Prior returns the state the document left
func (t ApprovalTransition) Prior() InvoiceStatus { return t.prior }

// Next returns the state the document entered
func (t ApprovalTransition) Next() InvoiceStatus { return t.next }

// ApprovedBy returns the approver
func (t ApprovalTransition) ApprovedBy() string { return t.approvedBy }

// ApprovedAt returns the approval time
func (t ApprovalTransition) ApprovedAt() time.Time { return t.approvedAt }

// Lines returns a copy of the approved lines
func (t ApprovalTransition) Lines() []InvoiceLine {
	out := make([]InvoiceLine, len(t.lines))
	copy(out, t.lines)
	return out
}

// Validate re-checks the pre- and post-state
func (t ApprovalTransition) Validate() error {
	return CheckApprovalStates(t.prior, t.next)
}

// CheckApprovalStates accepts only PENDING_FINANCE_REVIEW -> FINANCE_APPROVED
func CheckApprovalStates(prior, next InvoiceStatus) error {
	if prior != InvoiceStatusPendingFinanceReview || next != InvoiceStatusFinanceApproved {
		return shared.NewBusinessRuleViolation(
			"NOT_AN_APPROVAL_TRANSITION",
			"only "+string(InvoiceStatusPendingFinanceReview)+" -> "+string(InvoiceStatusFinanceApproved)+
				" may update product status, got "+string(prior)+" -> "+string(next),
		)
	}
	return nil
}
