package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/invsync/internal/domain/billing"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService handles the invoice lifecycle. Only finance approval has an
// effect outside billing, and it reaches the catalog through the producer.
type InvoiceService struct {
	scope    TransactionScope
	invoices billing.InvoiceRepository
	producer *ApprovalEventProducer
	logger   *zap.Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	scope TransactionScope,
	invoices billing.InvoiceRepository,
	producer *ApprovalEventProducer,
	logger *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		scope:    scope,
		invoices: invoices,
		producer: producer,
		logger:   logger,
	}
}

// GetInvoice returns an invoice with its lines
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// CreateInvoice creates a draft invoice or quotation
func (s *InvoiceService) CreateInvoice(ctx context.Context, cmd CreateInvoiceCommand) (*InvoiceResponse, error) {
	inv, err := billing.NewInvoice(cmd.InvoiceNumber, cmd.Kind, cmd.Lines)
	if err != nil {
		return nil, err
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, shared.NewBusinessRuleViolation("INVOICE_NUMBER_TAKEN",
				fmt.Sprintf("invoice %s already exists", inv.InvoiceNumber))
		}
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// SubmitForReview hands a draft to finance
func (s *InvoiceService) SubmitForReview(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	return s.mutate(ctx, id, func(_ TransactionalRepositories, inv *billing.Invoice) error {
		return inv.SubmitForReview()
	})
}

// Approve records finance approval and queues the product status update in
// the same transaction
func (s *InvoiceService) Approve(ctx context.Context, id uuid.UUID, approver string) (*InvoiceResponse, error) {
	return s.mutate(ctx, id, func(repos TransactionalRepositories, inv *billing.Invoice) error {
		return s.approve(ctx, repos, inv, approver, time.Now())
	})
}

// Reject sends a document back from finance review
func (s *InvoiceService) Reject(ctx context.Context, id uuid.UUID, reason string) (*InvoiceResponse, error) {
	return s.mutate(ctx, id, func(_ TransactionalRepositories, inv *billing.Invoice) error {
		return inv.Reject(reason)
	})
}

// Consolidate folds an approved invoice into the final invoice. It emits nothing.
func (s *InvoiceService) Consolidate(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	return s.mutate(ctx, id, func(_ TransactionalRepositories, inv *billing.Invoice) error {
		return inv.Consolidate()
	})
}

// HandleApprovalNotification applies an approval reported by the finance
// workflow. Only PENDING_FINANCE_REVIEW -> FINANCE_APPROVED is accepted. A
// repeated notification for an invoice that is already approved is a no-op;
// the returned flag reports whether an update was queued.
func (s *InvoiceService) HandleApprovalNotification(ctx context.Context, n ApprovalNotification) (*InvoiceResponse, bool, error) {
	prior, err := billing.ParseInvoiceStatus(n.PriorState)
	if err != nil {
		return nil, false, err
	}
	next, err := billing.ParseInvoiceStatus(n.NewState)
	if err != nil {
		return nil, false, err
	}
	if err := billing.CheckApprovalStates(prior, next); err != nil {
		s.logger.Warn("ignoring non-approval transition notification",
			zap.String("invoice_id", n.InvoiceID.String()),
			zap.String("prior_state", string(prior)),
			zap.String("new_state", string(next)),
		)
		return nil, false, err
	}

	emitted := false
	resp, err := s.mutate(ctx, n.InvoiceID, func(repos TransactionalRepositories, inv *billing.Invoice) error {
		switch inv.Status {
		case billing.InvoiceStatusPendingFinanceReview:
			emitted = true
			return s.approve(ctx, repos, inv, n.ApprovedBy, n.ApprovedAt)
		case billing.InvoiceStatusFinanceApproved, billing.InvoiceStatusConsolidated:
			s.logger.Info("approval already applied",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("status", string(inv.Status)),
			)
			return errNoChange
		default:
			return shared.NewBusinessRuleViolation("INVOICE_NOT_IN_REVIEW",
				fmt.Sprintf("invoice %s is %s, not %s", inv.InvoiceNumber, inv.Status, billing.InvoiceStatusPendingFinanceReview))
		}
	})
	if err != nil {
		return nil, false, err
	}
	return resp, emitted, nil
}

// errNoChange ends a mutation without saving
var errNoChange = errors.New("no change")

func (s *InvoiceService) approve(ctx context.Context, repos TransactionalRepositories, inv *billing.Invoice, approver string, at time.Time) error {
	transition, err := inv.ApproveFinance(approver, at)
	if err != nil {
		return err
	}
	return s.producer.OnApprovalTransition(ctx, repos.Outbox(), transition)
}

// mutate loads the invoice under a row lock, applies fn and saves the header
func (s *InvoiceService) mutate(ctx context.Context, id uuid.UUID, fn func(repos TransactionalRepositories, inv *billing.Invoice) error) (*InvoiceResponse, error) {
	var result *billing.Invoice
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err := repos.InvoiceRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		result = inv
		if err := fn(repos, inv); err != nil {
			return err
		}
		return repos.InvoiceRepo().Save(ctx, inv)
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return nil, err
	}
	resp := ToInvoiceResponse(result)
	return &resp, nil
}
