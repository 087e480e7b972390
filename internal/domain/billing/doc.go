// Package billing models invoices and quotations up to finance approval.
//
// The only transition with effects outside billing is
// PENDING_FINANCE_REVIEW -> FINANCE_APPROVED, represented by an
// ApprovalTransition value that can only be obtained from Invoice.ApproveFinance.
// Every other mutation, consolidation included, stays local.
//
// Key Aggregates:
//   - Invoice: an invoice or quotation with its product lines
//
// Events:
//   - ProductStatusUpdateEvent: product.status.update, built from an ApprovalTransition
package billing
