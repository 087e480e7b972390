package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/invsync/internal/domain/billing"
	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PayloadDecoder turns an envelope payload into a typed, validated struct
type PayloadDecoder interface {
	Decode(env *shared.Envelope, target any) error
}

// StatusMetrics receives per-line status update outcomes
type StatusMetrics interface {
	RecordStatusLine(ctx context.Context, targetStatus, outcome string)
}

// StatusUpdateLine is one product of a product.status.update payload
type StatusUpdateLine struct {
	ProductRef uuid.UUID `json:"product_ref" validate:"required"`
	Quantity   int64     `json:"quantity" validate:"gte=0"`
}

// StatusUpdatePayload is the wire contract of product.status.update
type StatusUpdatePayload struct {
	InvoiceID    uuid.UUID          `json:"invoice_id" validate:"required"`
	Lines        []StatusUpdateLine `json:"lines" validate:"required,min=1,dive"`
	TargetStatus string             `json:"target_status" validate:"required"`
	Sequence     int64              `json:"sequence" validate:"gte=0"`
}

// StatusUpdateConsumer applies product.status.update exactly once in effect.
// The ledger claim and every status change commit in one transaction, so a
// redelivery either finds the claim and changes nothing or finds nothing and
// applies everything.
type StatusUpdateConsumer struct {
	scope   TransactionScope
	ledger  catalog.StatusLedgerRepository
	decoder PayloadDecoder
	metrics StatusMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewStatusUpdateConsumer creates a new StatusUpdateConsumer
func NewStatusUpdateConsumer(scope TransactionScope, ledger catalog.StatusLedgerRepository, decoder PayloadDecoder, logger *zap.Logger) *StatusUpdateConsumer {
	return &StatusUpdateConsumer{
		scope:   scope,
		ledger:  ledger,
		decoder: decoder,
		logger:  logger,
		now:     time.Now,
	}
}

// WithMetrics sets the counters applied lines are reported to
func (c *StatusUpdateConsumer) WithMetrics(m StatusMetrics) *StatusUpdateConsumer {
	c.metrics = m
	return c
}

// EventTypes returns the event types this handler is interested in
func (c *StatusUpdateConsumer) EventTypes() []string {
	return []string{billing.EventTypeProductStatusUpdate}
}

// Handle processes one product.status.update delivery
func (c *StatusUpdateConsumer) Handle(ctx context.Context, env *shared.Envelope) error {
	var payload StatusUpdatePayload
	if err := c.decoder.Decode(env, &payload); err != nil {
		return err
	}
	rule, err := catalog.LookupStatusRule(payload.TargetStatus)
	if err != nil {
		return err
	}
	key, err := ledgerKey(env, payload)
	if err != nil {
		return err
	}

	log := c.logger.With(
		zap.String("idempotency_key", key),
		zap.String("invoice_id", payload.InvoiceID.String()),
		zap.Int64("sequence", payload.Sequence),
	)

	seen, err := c.ledger.Exists(ctx, key)
	if err != nil {
		return shared.NewTransientError("status ledger lookup failed", err)
	}
	if seen {
		log.Debug("status update already applied, acknowledging")
		return nil
	}

	var (
		outcome = catalog.LedgerOutcomeClaimed
		missing []string
		lines   []string
		claimed bool
	)
	err = c.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		entry := catalog.NewStatusLedgerEntry(key, env.EventID, payload.InvoiceID, payload.Sequence)
		var err error
		claimed, err = repos.LedgerRepo().Claim(ctx, entry)
		if err != nil || !claimed {
			return err
		}

		outcome, missing, lines = catalog.LedgerOutcomeClaimed, nil, nil
		at := c.now()
		for _, ref := range productRefs(payload.Lines) {
			decision, err := c.applyToItem(ctx, repos, ref, rule, payload.Sequence, key, at)
			if errors.Is(err, shared.ErrNotFound) {
				missing = append(missing, ref.String())
				incident := catalog.NewIncident(catalog.IncidentMissingProduct, ref.String(), "event:"+env.EventID.String(),
					fmt.Sprintf("product.status.update for invoice %s references unknown product", payload.InvoiceID))
				if err := repos.IncidentRepo().Record(ctx, incident); err != nil {
					return err
				}
				outcome = catalog.LedgerOutcomePartial
				lines = append(lines, "MISSING")
				continue
			}
			if err != nil {
				return err
			}
			outcome = outcome.Merge(decision)
			lines = append(lines, string(decision))
		}
		return repos.LedgerRepo().SetOutcome(ctx, key, outcome)
	})
	if err != nil {
		if shared.KindOf(err) == shared.KindTransient {
			return shared.NewTransientError("status update not persisted", err)
		}
		return err
	}

	if !claimed {
		log.Debug("status update claimed concurrently, acknowledging")
		return nil
	}
	if c.metrics != nil {
		for _, o := range lines {
			c.metrics.RecordStatusLine(ctx, string(rule.Target), o)
		}
	}
	log.Info("status update applied",
		zap.String("target_status", string(rule.Target)),
		zap.String("outcome", string(outcome)),
	)
	if len(missing) > 0 {
		return shared.NewConsistencyViolation("MISSING_PRODUCT",
			"status update references unknown products: "+strings.Join(missing, ", "))
	}
	return nil
}

// ledgerKey derives the key of the approval fact from the payload. An
// envelope carrying any other key is malformed.
func ledgerKey(env *shared.Envelope, payload StatusUpdatePayload) (string, error) {
	key := billing.ApprovalIdempotencyKey(payload.InvoiceID)
	if env.IdempotencyKey != key {
		return "", shared.NewValidationError("IDEMPOTENCY_KEY_MISMATCH",
			fmt.Sprintf("envelope idempotency key %q does not match invoice %s", env.IdempotencyKey, payload.InvoiceID))
	}
	return key, nil
}

func (c *StatusUpdateConsumer) applyToItem(
	ctx context.Context,
	repos TransactionalRepositories,
	id uuid.UUID,
	rule catalog.StatusRule,
	sequence int64,
	eventKey string,
	at time.Time,
) (catalog.StatusDecision, error) {
	item, err := repos.CatalogItemRepo().FindByIDForUpdate(ctx, id)
	if err != nil {
		return "", err
	}
	decision := item.ApplyStatus(rule, sequence, eventKey, at)
	if decision == catalog.StatusDecisionStale {
		c.logger.Info("stale status update ignored",
			zap.String("item_id", id.String()),
			zap.Int64("sequence", sequence),
			zap.Int64("watermark", item.StatusSequence),
		)
		return decision, nil
	}
	if err := repos.CatalogItemRepo().SaveStatus(ctx, item); err != nil {
		return "", err
	}
	return decision, nil
}

// productRefs returns the distinct products in a stable order so concurrent
// consumers lock rows in the same sequence
func productRefs(lines []StatusUpdateLine) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	refs := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductRef]; ok {
			continue
		}
		seen[l.ProductRef] = struct{}{}
		refs = append(refs, l.ProductRef)
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].String() < refs[j].String()
	})
	return refs
}

var _ shared.EventHandler = (*StatusUpdateConsumer)(nil)
