package billing

import (
	"testing"
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoice(t *testing.T, kind DocumentKind) *Invoice {
	t.Helper()
	inv, err := NewInvoice("INV-001", kind, []LineInput{
		{CatalogItemID: uuid.New(), Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		{CatalogItemID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromFloat(2.5)},
	})
	require.NoError(t, err)
	return inv
}

func TestNewInvoice(t *testing.T) {
	inv := newTestInvoice(t, DocumentKindInvoice)
	assert.Equal(t, InvoiceStatusDraft, inv.Status)
	require.Len(t, inv.Lines, 2)
	assert.Equal(t, inv.ID, inv.Lines[0].InvoiceID)
	assert.True(t, decimal.NewFromFloat(22.5).Equal(inv.Total()))

	_, err := NewInvoice("INV-2", DocumentKind("RECEIPT"), []LineInput{{CatalogItemID: uuid.New(), Quantity: 1}})
	assert.True(t, shared.IsKind(err, shared.KindValidation))
	_, err = NewInvoice("INV-2", DocumentKindInvoice, []LineInput{{Quantity: 1}})
	assert.True(t, shared.IsKind(err, shared.KindValidation))
	_, err = NewInvoice("INV-2", DocumentKindInvoice, nil)
	assert.True(t, shared.IsKind(err, shared.KindValidation))
}

func TestInvoice_Lifecycle(t *testing.T) {
	inv := newTestInvoice(t, DocumentKindInvoice)

	_, err := inv.ApproveFinance("finance-1", time.Now())
	require.Error(t, err, "drafts cannot be approved")
	assert.True(t, shared.IsKind(err, shared.KindBusinessRule))

	require.NoError(t, inv.SubmitForReview())
	assert.Equal(t, InvoiceStatusPendingFinanceReview, inv.Status)
	assert.Error(t, inv.Consolidate())

	approvedAt := time.Date(2026, 3, 1, 10, 0, 0, 123000, time.UTC)
	transition, err := inv.ApproveFinance("finance-1", approvedAt)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusFinanceApproved, inv.Status)
	assert.Equal(t, approvedAt, *inv.ApprovedAt)
	assert.NoError(t, transition.Validate())
	assert.Equal(t, InvoiceStatusPendingFinanceReview, transition.Prior())
	assert.Equal(t, InvoiceStatusFinanceApproved, transition.Next())
	assert.Equal(t, inv.ID, transition.InvoiceID())
	assert.Len(t, transition.Lines(), 2)

	_, err = inv.ApproveFinance("finance-1", time.Now())
	assert.Error(t, err, "approval happens once")

	require.NoError(t, inv.Consolidate())
	assert.Equal(t, InvoiceStatusConsolidated, inv.Status)
	assert.NotNil(t, inv.ConsolidatedAt)
	assert.Empty(t, inv.GetDomainEvents(), "lifecycle changes raise no events on their own")
}

func TestInvoice_Reject(t *testing.T) {
	inv := newTestInvoice(t, DocumentKindQuotation)
	assert.Error(t, inv.Reject("too early"))
	require.NoError(t, inv.SubmitForReview())
	require.NoError(t, inv.Reject("pricing wrong"))
	assert.Equal(t, InvoiceStatusRejected, inv.Status)
	_, err := inv.ApproveFinance("finance-1", time.Now())
	assert.Error(t, err)
}

func TestInvoice_QuotationCannotBeConsolidated(t *testing.T) {
	inv := newTestInvoice(t, DocumentKindQuotation)
	require.NoError(t, inv.SubmitForReview())
	_, err := inv.ApproveFinance("finance-1", time.Now())
	require.NoError(t, err)
	assert.Error(t, inv.Consolidate())
}

func TestApprovalTransition_ZeroValueIsInvalid(t *testing.T) {
	var transition ApprovalTransition
	err := transition.Validate()
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindBusinessRule))
}

func TestCheckApprovalStates(t *testing.T) {
	tests := []struct {
		prior, next InvoiceStatus
		ok          bool
	}{
		{InvoiceStatusPendingFinanceReview, InvoiceStatusFinanceApproved, true},
		{InvoiceStatusFinanceApproved, InvoiceStatusConsolidated, false},
		{InvoiceStatusDraft, InvoiceStatusFinanceApproved, false},
		{InvoiceStatusPendingFinanceReview, InvoiceStatusRejected, false},
		{InvoiceStatusDraft, InvoiceStatusPendingFinanceReview, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.prior)+"->"+string(tt.next), func(t *testing.T) {
			err := CheckApprovalStates(tt.prior, tt.next)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, shared.IsKind(err, shared.KindBusinessRule))
			}
		})
	}
}

func TestParseInvoiceStatus(t *testing.T) {
	s, err := ParseInvoiceStatus(" pending_finance_review ")
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPendingFinanceReview, s)

	_, err = ParseInvoiceStatus("paid")
	assert.True(t, shared.IsKind(err, shared.KindValidation))
}

func TestNewProductStatusUpdateEvent(t *testing.T) {
	tests := []struct {
		kind   DocumentKind
		target string
	}{
		{DocumentKindInvoice, "sold"},
		{DocumentKindQuotation, "reserved"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			inv := newTestInvoice(t, tt.kind)
			require.NoError(t, inv.SubmitForReview())
			approvedAt := time.Now()
			transition, err := inv.ApproveFinance("finance-1", approvedAt)
			require.NoError(t, err)

			event := NewProductStatusUpdateEvent(transition)
			assert.Equal(t, EventTypeProductStatusUpdate, event.EventType())
			assert.Equal(t, inv.ID, event.InvoiceID)
			assert.Equal(t, tt.target, event.TargetStatus)
			assert.Equal(t, approvedAt.UnixMicro(), event.Sequence)
			require.Len(t, event.Lines, 2)
			assert.Equal(t, inv.Lines[0].CatalogItemID, event.Lines[0].ProductRef)
			assert.Equal(t, int64(2), event.Lines[0].Quantity)

			again := NewProductStatusUpdateEvent(transition)
			assert.Equal(t, event.IdempotencyKey(), again.IdempotencyKey())
			assert.NotEqual(t, event.EventID(), again.EventID())
			assert.Equal(t, shared.DeriveIdempotencyKey(inv.ID.String(), "finance_approved"), event.IdempotencyKey())
		})
	}
}
