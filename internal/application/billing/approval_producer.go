package billing

import (
	"context"

	"github.com/erp/invsync/internal/domain/billing"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ApprovalEventProducer is the only place product.status.update is emitted.
// It is called with the transition returned by Invoice.ApproveFinance and the
// outbox of the transaction that persisted it.
type ApprovalEventProducer struct {
	logger *zap.Logger
}

// NewApprovalEventProducer creates a new ApprovalEventProducer
func NewApprovalEventProducer(logger *zap.Logger) *ApprovalEventProducer {
	return &ApprovalEventProducer{logger: logger}
}

// OnApprovalTransition re-checks the pre- and post-state and writes exactly
// one product.status.update. Anything but PENDING_FINANCE_REVIEW ->
// FINANCE_APPROVED is refused.
func (p *ApprovalEventProducer) OnApprovalTransition(ctx context.Context, outbox shared.EventWriter, t billing.ApprovalTransition) (err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "emit_status_update",
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, t.InvoiceID()),
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceNumber, t.InvoiceNumber()),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := t.Validate(); err != nil {
		p.logger.Error("refusing to emit status update for a non-approval transition",
			zap.String("invoice_id", t.InvoiceID().String()),
			zap.String("invoice_number", t.InvoiceNumber()),
			zap.String("prior", string(t.Prior())),
			zap.String("next", string(t.Next())),
			zap.Error(err),
		)
		return err
	}

	event := billing.NewProductStatusUpdateEvent(t)
	if err := outbox.Write(ctx, event); err != nil {
		return err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrEventID, event.EventID().String(),
		telemetry.SpanAttrIdempotencyKey, event.IdempotencyKey(),
		telemetry.SpanAttrLineItems, len(event.Lines),
	)
	p.logger.Info("product status update queued",
		zap.String("invoice_id", t.InvoiceID().String()),
		zap.String("target_status", event.TargetStatus),
		zap.Int64("sequence", event.Sequence),
		zap.String("idempotency_key", event.IdempotencyKey()),
		zap.Int("lines", len(event.Lines)),
	)
	return nil
}
