package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/intake"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service drives lots through intake: identity resolution on receipt,
// operator decisions on unmatched lines, and posting. It never creates a
// catalog item without a recorded approval.
type Service struct {
	scope     TransactionScope
	lots      intake.LotRepository
	incidents catalog.IncidentRepository
	locker    IdentityLocker
	metrics   Metrics
	logger    *zap.Logger
}

// NewService creates a new intake Service
func NewService(
	scope TransactionScope,
	lots intake.LotRepository,
	incidents catalog.IncidentRepository,
	locker IdentityLocker,
	logger *zap.Logger,
) *Service {
	return &Service{
		scope:     scope,
		lots:      lots,
		incidents: incidents,
		locker:    locker,
		metrics:   noopMetrics{},
		logger:    logger,
	}
}

// GetLot returns a lot with its lines
func (s *Service) GetLot(ctx context.Context, id uuid.UUID) (*LotResponse, error) {
	lot, err := s.lots.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToLotResponse(lot)
	return &resp, nil
}

// ReceiveLot records a received lot and runs every line through identity
// resolution. Matched lines are resolved, unmatched lines wait for an
// operator, and ambiguous lines stay pending behind an incident.
func (s *Service) ReceiveLot(ctx context.Context, cmd ReceiveLotCommand) (_ *LotResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "intake", "receive_lot",
		telemetry.WithAttribute(telemetry.SpanAttrLotNumber, cmd.LotNumber),
		telemetry.WithAttribute(telemetry.SpanAttrLineCount, len(cmd.Lines)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	lot, err := intake.NewLot(cmd.LotNumber, cmd.VendorID, cmd.WarehouseID, cmd.ReceivedAt, cmd.Lines)
	if err != nil {
		return nil, err
	}
	if err := lot.BeginResolution(); err != nil {
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrLotID, lot.ID.String())

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := s.resolveLines(ctx, repos, lot); err != nil {
			return err
		}
		if err := repos.LotRepo().Create(ctx, lot); err != nil {
			if errors.Is(err, shared.ErrAlreadyExists) {
				return shared.NewBusinessRuleViolation("LOT_ALREADY_RECEIVED",
					fmt.Sprintf("lot %s was already received", lot.LotNumber))
			}
			return err
		}
		return writeEvents(ctx, repos, lot)
	})
	if err != nil {
		return nil, err
	}

	telemetry.AddEvent(span, "lot_resolved", "status", string(lot.Status))
	s.logger.Info("lot received",
		zap.String("lot_id", lot.ID.String()),
		zap.String("lot_number", lot.LotNumber),
		zap.String("status", string(lot.Status)),
		zap.Int("lines", len(lot.Lines)),
	)
	resp := ToLotResponse(lot)
	return &resp, nil
}

// ResolvePending re-runs identity resolution for lines left pending, e.g.
// after an operator cleaned up an ambiguous identity
func (s *Service) ResolvePending(ctx context.Context, lotID uuid.UUID) (*LotResponse, error) {
	var result *intake.Lot
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		lot, err := repos.LotRepo().FindByIDForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		if lot.Status == intake.LotStatusPosted {
			return shared.NewBusinessRuleViolation("LOT_ALREADY_POSTED", "posted lots are immutable")
		}
		if err := s.resolveLines(ctx, repos, lot); err != nil {
			return err
		}
		if err := repos.LotRepo().Save(ctx, lot); err != nil {
			return err
		}
		result = lot
		return writeEvents(ctx, repos, lot)
	})
	if err != nil {
		return nil, err
	}
	resp := ToLotResponse(result)
	return &resp, nil
}

// ConfirmLine records an operator approval and binds the line to a catalog
// item, creating it only if the identity still matches nothing. Creation is
// serialized per identity key, so two lots confirming the same new part end
// up on one item.
func (s *Service) ConfirmLine(ctx context.Context, cmd ConfirmLineCommand) (_ *LotResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "intake", "confirm_line",
		telemetry.WithAttribute(telemetry.SpanAttrLotID, cmd.LotID),
		telemetry.WithAttribute(telemetry.SpanAttrLineIndex, cmd.LineIndex),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	current, err := s.lots.FindByID(ctx, cmd.LotID)
	if err != nil {
		return nil, err
	}
	line, err := current.Line(cmd.LineIndex)
	if err != nil {
		return nil, err
	}
	key, err := catalog.NewIdentityKey(line.Candidate())
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, key.LockKey())
	if err != nil {
		return nil, shared.NewTransientError("identity lock unavailable", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release identity lock", zap.String("identity_hash", key.Hash()), zap.Error(err))
		}
	}()

	var result *intake.Lot
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		lot, err := repos.LotRepo().FindByIDForUpdate(ctx, cmd.LotID)
		if err != nil {
			return err
		}
		confirmation, approval, err := lot.ConfirmLine(cmd.LineIndex, cmd.Operator)
		if err != nil {
			return err
		}
		if err := createConfirmation(ctx, repos, confirmation); err != nil {
			return err
		}

		line, err := lot.Line(cmd.LineIndex)
		if err != nil {
			return err
		}
		price := line.UnitCost
		if cmd.Price != nil {
			price = *cmd.Price
		}
		itemID, err := s.findOrCreateItem(ctx, repos, approval, price)
		if err != nil {
			return err
		}
		telemetry.SetAttributes(span, telemetry.SpanAttrCatalogItemID, itemID)
		if err := lot.ResolveLine(cmd.LineIndex, itemID); err != nil {
			return err
		}
		if err := repos.LotRepo().Save(ctx, lot); err != nil {
			return err
		}
		result = lot
		return writeEvents(ctx, repos, lot)
	})
	if err != nil {
		if shared.IsKind(err, shared.KindConsistency) {
			s.recordIncident(ctx, catalog.IncidentAmbiguousIdentity, key.Hash(), "lot:"+current.LotNumber, err)
		}
		return nil, err
	}

	s.logger.Info("lot line confirmed",
		zap.String("lot_id", cmd.LotID.String()),
		zap.Int("line_index", cmd.LineIndex),
		zap.String("operator", cmd.Operator),
		zap.String("identity_hash", key.Hash()),
	)
	resp := ToLotResponse(result)
	return &resp, nil
}

// DeclineLine rejects a line; the lot can still post its other lines
func (s *Service) DeclineLine(ctx context.Context, cmd DeclineLineCommand) (*LotResponse, error) {
	var result *intake.Lot
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		lot, err := repos.LotRepo().FindByIDForUpdate(ctx, cmd.LotID)
		if err != nil {
			return err
		}
		confirmation, err := lot.DeclineLine(cmd.LineIndex, cmd.Operator, cmd.Reason)
		if err != nil {
			return err
		}
		if err := createConfirmation(ctx, repos, confirmation); err != nil {
			return err
		}
		if err := repos.LotRepo().Save(ctx, lot); err != nil {
			return err
		}
		result = lot
		return writeEvents(ctx, repos, lot)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("lot line declined",
		zap.String("lot_id", cmd.LotID.String()),
		zap.Int("line_index", cmd.LineIndex),
		zap.String("operator", cmd.Operator),
	)
	resp := ToLotResponse(result)
	return &resp, nil
}

// PostLot adds the quantities of every resolved line to the catalog. It is
// refused while any line still waits for a decision.
func (s *Service) PostLot(ctx context.Context, lotID uuid.UUID) (_ *LotResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "intake", "post_lot",
		telemetry.WithAttribute(telemetry.SpanAttrLotID, lotID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	var result *intake.Lot
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		lot, err := repos.LotRepo().FindByIDForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		increments, err := lot.Post()
		if err != nil {
			return err
		}
		var total int64
		for _, inc := range increments {
			total += inc.Quantity
			if err := repos.CatalogItemRepo().IncrementQuantity(ctx, inc.CatalogItemID, inc.Quantity); err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return shared.NewConsistencyViolation("CATALOG_ITEM_MISSING",
						fmt.Sprintf("lot %s references missing catalog item %s", lot.LotNumber, inc.CatalogItemID))
				}
				return err
			}
		}
		telemetry.SetAttributes(span,
			telemetry.SpanAttrLotNumber, lot.LotNumber,
			telemetry.SpanAttrQuantity, total,
		)
		if err := repos.LotRepo().Save(ctx, lot); err != nil {
			return err
		}
		result = lot
		return writeEvents(ctx, repos, lot)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLotPosted(ctx)
	s.logger.Info("lot posted",
		zap.String("lot_id", result.ID.String()),
		zap.String("lot_number", result.LotNumber),
	)
	resp := ToLotResponse(result)
	return &resp, nil
}

func (s *Service) resolveLines(ctx context.Context, repos TransactionalRepositories, lot *intake.Lot) error {
	resolver := catalog.NewIdentityResolver(repos.CatalogItemRepo())
	for i := range lot.Lines {
		line := &lot.Lines[i]
		if line.Status != intake.LineStatusPendingResolution {
			continue
		}

		res, err := resolver.Resolve(ctx, line.Candidate())
		switch {
		case shared.IsKind(err, shared.KindConsistency):
			s.logger.Error("ambiguous identity, line left pending",
				zap.String("lot_number", lot.LotNumber),
				zap.Int("line_index", line.LineIndex),
				zap.String("identity_hash", res.Key.Hash()),
				zap.Error(err),
			)
			s.metrics.RecordResolution(ctx, ResolutionAmbiguous)
			incident := catalog.NewIncident(catalog.IncidentAmbiguousIdentity, res.Key.Hash(), "lot:"+lot.LotNumber, err.Error())
			if err := repos.IncidentRepo().Record(ctx, incident); err != nil {
				return err
			}
			continue
		case err != nil:
			return err
		case res.IsMatch():
			s.metrics.RecordResolution(ctx, ResolutionMatched)
			err = lot.ResolveLine(line.LineIndex, res.Item.ID)
		default:
			s.metrics.RecordResolution(ctx, ResolutionUnmatched)
			err = lot.RequireConfirmation(line.LineIndex)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// findOrCreateItem re-resolves under the identity lock. A unique violation
// means another writer created the item without holding the lock; the row it
// committed is then bound instead.
func (s *Service) findOrCreateItem(ctx context.Context, repos TransactionalRepositories, approval *catalog.CreationApproval, price decimal.Decimal) (uuid.UUID, error) {
	resolver := catalog.NewIdentityResolver(repos.CatalogItemRepo())
	res, err := resolver.Resolve(ctx, approval.Candidate)
	if err != nil {
		return uuid.Nil, err
	}
	if res.IsMatch() {
		return res.Item.ID, nil
	}

	item, err := catalog.NewCatalogItem(approval, price)
	if err != nil {
		return uuid.Nil, err
	}
	err = repos.CatalogItemRepo().Create(ctx, item)
	if errors.Is(err, shared.ErrAlreadyExists) {
		s.logger.Warn("identity created concurrently, binding existing item", zap.String("identity_hash", item.IdentityHash))
		res, err = resolver.Resolve(ctx, approval.Candidate)
		if err != nil {
			return uuid.Nil, err
		}
		if !res.IsMatch() {
			return uuid.Nil, shared.ErrConcurrencyConflict
		}
		return res.Item.ID, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	if err := writeEvents(ctx, repos, item); err != nil {
		return uuid.Nil, err
	}
	s.logger.Info("catalog item created",
		zap.String("item_id", item.ID.String()),
		zap.String("identity_hash", item.IdentityHash),
		zap.String("confirmation_id", approval.ConfirmationID.String()),
	)
	return item.ID, nil
}

func (s *Service) recordIncident(ctx context.Context, kind catalog.IncidentKind, subject, source string, cause error) {
	incident := catalog.NewIncident(kind, subject, source, cause.Error())
	if err := s.incidents.Record(context.WithoutCancel(ctx), incident); err != nil {
		s.logger.Error("failed to record incident",
			zap.String("kind", string(kind)),
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

func createConfirmation(ctx context.Context, repos TransactionalRepositories, confirmation *intake.LineConfirmation) error {
	err := repos.ConfirmationRepo().Create(ctx, confirmation)
	if errors.Is(err, shared.ErrAlreadyExists) {
		return shared.NewBusinessRuleViolation("LINE_ALREADY_DECIDED",
			fmt.Sprintf("line %d already has a decision", confirmation.LineIndex))
	}
	return err
}

func writeEvents(ctx context.Context, repos TransactionalRepositories, aggregate shared.AggregateRoot) error {
	events := aggregate.GetDomainEvents()
	if len(events) == 0 {
		return nil
	}
	if err := repos.Outbox().Write(ctx, events...); err != nil {
		return err
	}
	aggregate.ClearDomainEvents()
	return nil
}
