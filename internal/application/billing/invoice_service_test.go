package billing_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	appbilling "github.com/erp/invsync/internal/application/billing"
	"github.com/erp/invsync/internal/domain/billing"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/config"
	"github.com/erp/invsync/internal/infrastructure/event"
	"github.com/erp/invsync/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newInvoiceService(t *testing.T) (*appbilling.InvoiceService, *gorm.DB) {
	t.Helper()
	database, err := persistence.Open(sqlite.Open(":memory:"), &config.DatabaseConfig{MaxOpenConns: 1, MaxIdleConns: 1}, persistence.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.DB.AutoMigrate(persistence.Models()...))

	db := database.DB
	scope := persistence.NewGormTransactionScope(db, event.NewOutboxPublisher(event.NewPayloadCodec(nil)))
	service := appbilling.NewInvoiceService(
		scope.BillingScope(),
		persistence.NewGormInvoiceRepository(db),
		appbilling.NewApprovalEventProducer(zap.NewNop()),
		zap.NewNop(),
	)
	return service, db
}

func createInReview(t *testing.T, service *appbilling.InvoiceService, number string, kind billing.DocumentKind) (*appbilling.InvoiceResponse, []uuid.UUID) {
	t.Helper()
	refs := []uuid.UUID{uuid.New(), uuid.New()}
	inv, err := service.CreateInvoice(context.Background(), appbilling.CreateInvoiceCommand{
		InvoiceNumber: number,
		Kind:          kind,
		Lines: []billing.LineInput{
			{CatalogItemID: refs[0], Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
			{CatalogItemID: refs[1], Quantity: 1, UnitPrice: decimal.NewFromInt(4)},
		},
	})
	require.NoError(t, err)
	inv, err = service.SubmitForReview(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, string(billing.InvoiceStatusPendingFinanceReview), inv.Status)
	return inv, refs
}

func statusUpdates(t *testing.T, db *gorm.DB) []shared.OutboxEntry {
	t.Helper()
	var entries []shared.OutboxEntry
	require.NoError(t, db.Where("event_type = ?", billing.EventTypeProductStatusUpdate).Find(&entries).Error)
	return entries
}

func TestInvoiceService_ApproveEmitsOneStatusUpdate(t *testing.T) {
	service, db := newInvoiceService(t)
	ctx := context.Background()
	inv, refs := createInReview(t, service, "INV-100", billing.DocumentKindInvoice)

	approved, err := service.Approve(ctx, inv.ID, "finance-1")
	require.NoError(t, err)
	assert.Equal(t, string(billing.InvoiceStatusFinanceApproved), approved.Status)
	assert.Equal(t, "finance-1", approved.ApprovedBy)

	entries := statusUpdates(t, db)
	require.Len(t, entries, 1)
	assert.Equal(t, billing.ApprovalIdempotencyKey(inv.ID), entries[0].IdempotencyKey)
	assert.Equal(t, inv.ID, entries[0].AggregateID)

	var payload struct {
		InvoiceID    uuid.UUID `json:"invoice_id"`
		TargetStatus string    `json:"target_status"`
		Sequence     int64     `json:"sequence"`
		Lines        []struct {
			ProductRef uuid.UUID `json:"product_ref"`
			Quantity   int64     `json:"quantity"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(entries[0].Payload, &payload))
	assert.Equal(t, inv.ID, payload.InvoiceID)
	assert.Equal(t, "sold", payload.TargetStatus)
	assert.Positive(t, payload.Sequence)
	require.Len(t, payload.Lines, 2)
	assert.Equal(t, refs[0], payload.Lines[0].ProductRef)
	assert.Equal(t, int64(2), payload.Lines[0].Quantity)

	_, err = service.Approve(ctx, inv.ID, "finance-2")
	assert.True(t, shared.IsKind(err, shared.KindBusinessRule))
	assert.Len(t, statusUpdates(t, db), 1)
}

func TestInvoiceService_QuotationRequestsReservation(t *testing.T) {
	service, db := newInvoiceService(t)
	inv, _ := createInReview(t, service, "QUO-1", billing.DocumentKindQuotation)

	_, err := service.Approve(context.Background(), inv.ID, "finance-1")
	require.NoError(t, err)

	entries := statusUpdates(t, db)
	require.Len(t, entries, 1)
	var payload struct {
		TargetStatus string `json:"target_status"`
	}
	require.NoError(t, json.Unmarshal(entries[0].Payload, &payload))
	assert.Equal(t, "reserved", payload.TargetStatus)
}

func TestInvoiceService_OtherTransitionsEmitNothing(t *testing.T) {
	service, db := newInvoiceService(t)
	ctx := context.Background()

	inv, _ := createInReview(t, service, "INV-200", billing.DocumentKindInvoice)
	_, err := service.Approve(ctx, inv.ID, "finance-1")
	require.NoError(t, err)
	consolidated, err := service.Consolidate(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, string(billing.InvoiceStatusConsolidated), consolidated.Status)

	rejected, _ := createInReview(t, service, "INV-201", billing.DocumentKindInvoice)
	res, err := service.Reject(ctx, rejected.ID, "wrong customer")
	require.NoError(t, err)
	assert.Equal(t, "wrong customer", res.RejectReason)

	assert.Len(t, statusUpdates(t, db), 1)
}

func TestInvoiceService_CreateInvoice_DuplicateNumber(t *testing.T) {
	service, _ := newInvoiceService(t)
	createInReview(t, service, "INV-300", billing.DocumentKindInvoice)

	_, err := service.CreateInvoice(context.Background(), appbilling.CreateInvoiceCommand{
		InvoiceNumber: "INV-300",
		Kind:          billing.DocumentKindInvoice,
		Lines:         []billing.LineInput{{CatalogItemID: uuid.New(), Quantity: 1}},
	})
	assert.True(t, shared.IsKind(err, shared.KindBusinessRule))
}

func TestInvoiceService_HandleApprovalNotification(t *testing.T) {
	service, db := newInvoiceService(t)
	ctx := context.Background()
	inv, _ := createInReview(t, service, "INV-400", billing.DocumentKindInvoice)
	at := time.Now().Add(-time.Minute)

	notification := appbilling.ApprovalNotification{
		InvoiceID:  inv.ID,
		PriorState: "pending_finance_review",
		NewState:   "FINANCE_APPROVED",
		ApprovedBy: "workflow",
		ApprovedAt: at,
	}

	res, emitted, err := service.HandleApprovalNotification(ctx, notification)
	require.NoError(t, err)
	assert.True(t, emitted)
	assert.Equal(t, string(billing.InvoiceStatusFinanceApproved), res.Status)

	res, emitted, err = service.HandleApprovalNotification(ctx, notification)
	require.NoError(t, err)
	assert.False(t, emitted, "a repeated notification must not queue a second update")
	assert.Equal(t, string(billing.InvoiceStatusFinanceApproved), res.Status)

	entries := statusUpdates(t, db)
	require.Len(t, entries, 1)
	var payload struct {
		Sequence int64 `json:"sequence"`
	}
	require.NoError(t, json.Unmarshal(entries[0].Payload, &payload))
	assert.Equal(t, at.UnixMicro(), payload.Sequence)
}

func TestInvoiceService_HandleApprovalNotification_Rejected(t *testing.T) {
	service, db := newInvoiceService(t)
	ctx := context.Background()
	inv, _ := createInReview(t, service, "INV-500", billing.DocumentKindInvoice)

	tests := []struct {
		name    string
		prior   string
		next    string
		kind    shared.ErrorKind
		invoice uuid.UUID
	}{
		{name: "consolidation", prior: "FINANCE_APPROVED", next: "CONSOLIDATED", kind: shared.KindBusinessRule, invoice: inv.ID},
		{name: "draft to approved", prior: "DRAFT", next: "FINANCE_APPROVED", kind: shared.KindBusinessRule, invoice: inv.ID},
		{name: "unknown state", prior: "PENDING_FINANCE_REVIEW", next: "PAID", kind: shared.KindValidation, invoice: inv.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, emitted, err := service.HandleApprovalNotification(ctx, appbilling.ApprovalNotification{
				InvoiceID:  tt.invoice,
				PriorState: tt.prior,
				NewState:   tt.next,
				ApprovedBy: "workflow",
			})
			require.Error(t, err)
			assert.False(t, emitted)
			assert.True(t, shared.IsKind(err, tt.kind))
		})
	}

	_, _, err := service.HandleApprovalNotification(ctx, appbilling.ApprovalNotification{
		InvoiceID:  uuid.New(),
		PriorState: "PENDING_FINANCE_REVIEW",
		NewState:   "FINANCE_APPROVED",
		ApprovedBy: "workflow",
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.Empty(t, statusUpdates(t, db))
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestApprovalEventProducer_Span(t *testing.T) {
	sr := recordSpans(t)
	service, _ := newInvoiceService(t)
	inv, _ := createInReview(t, service, "INV-300", billing.DocumentKindInvoice)

	_, err := service.Approve(context.Background(), inv.ID, "finance-1")
	require.NoError(t, err)

	var emitted []sdktrace.ReadOnlySpan
	for _, span := range sr.Ended() {
		if span.Name() == "billing.emit_status_update" {
			emitted = append(emitted, span)
		}
	}
	require.Len(t, emitted, 1)
	assert.Equal(t, codes.Ok, emitted[0].Status().Code)

	attrs := make(map[string]string)
	for _, kv := range emitted[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, inv.ID.String(), attrs["invoice_id"])
	assert.Equal(t, "INV-300", attrs["invoice_number"])
	assert.Equal(t, billing.ApprovalIdempotencyKey(inv.ID), attrs["idempotency_key"])
	assert.Equal(t, "2", attrs["line_items"])
}
