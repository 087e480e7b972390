package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	appcatalog "github.com/erp/invsync/internal/application/catalog"
	appintake "github.com/erp/invsync/internal/application/intake"
	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/event"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScope(t *testing.T) (*GormTransactionScope, *event.PayloadCodec) {
	t.Helper()
	db := setupSQLiteDB(t)
	codec := event.NewPayloadCodec(nil)
	return NewGormTransactionScope(db, event.NewOutboxPublisher(codec)), codec
}

func TestIntakeTransactionScope_CommitsStateAndEvents(t *testing.T) {
	scope, _ := newTestScope(t)
	ctx := context.Background()

	lot := newTestLot(t, "LOT-TX")
	require.NoError(t, lot.BeginResolution())
	require.NoError(t, lot.RequireConfirmation(0))

	err := scope.IntakeScope().Execute(ctx, func(repos appintake.TransactionalRepositories) error {
		if err := repos.LotRepo().Create(ctx, lot); err != nil {
			return err
		}
		return repos.Outbox().Write(ctx, lot.GetDomainEvents()...)
	})
	require.NoError(t, err)

	pending, err := event.NewGormOutboxRepository(scope.db).FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, lot.ID, pending[0].AggregateID)
}

func TestIntakeTransactionScope_RollsBackEventsWithState(t *testing.T) {
	scope, _ := newTestScope(t)
	ctx := context.Background()

	lot := newTestLot(t, "LOT-ROLLBACK")
	require.NoError(t, lot.BeginResolution())
	require.NoError(t, lot.RequireConfirmation(0))

	boom := errors.New("boom")
	err := scope.IntakeScope().Execute(ctx, func(repos appintake.TransactionalRepositories) error {
		require.NoError(t, repos.LotRepo().Create(ctx, lot))
		require.NoError(t, repos.Outbox().Write(ctx, lot.GetDomainEvents()...))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = NewGormLotRepository(scope.db).FindByID(ctx, lot.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	pending, err := event.NewGormOutboxRepository(scope.db).FindPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func statusEnvelope(t *testing.T, invoiceID uuid.UUID, refs []uuid.UUID, target string, sequence int64) *shared.Envelope {
	t.Helper()
	lines := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		lines = append(lines, map[string]any{"product_ref": ref, "quantity": 1})
	}
	payload, err := json.Marshal(map[string]any{
		"invoice_id":    invoiceID,
		"lines":         lines,
		"target_status": target,
		"sequence":      sequence,
	})
	require.NoError(t, err)
	return &shared.Envelope{
		EventID:        uuid.New(),
		EventType:      "product.status.update",
		IdempotencyKey: shared.DeriveIdempotencyKey(invoiceID.String(), "finance_approved"),
		ProducerID:     "billing",
		AggregateID:    invoiceID,
		AggregateType:  "Invoice",
		EmittedAt:      time.Now(),
		SchemaVersion:  1,
		Payload:        payload,
	}
}

func TestCatalogTransactionScope_StatusUpdateIsAppliedOnce(t *testing.T) {
	scope, codec := newTestScope(t)
	ctx := context.Background()

	items := NewGormCatalogItemRepository(scope.db)
	item := newTestItem(t, catalog.Candidate{PartName: "Clutch Kit"})
	require.NoError(t, items.Create(ctx, item))

	ledger := NewGormStatusLedgerRepository(scope.db)
	consumer := appcatalog.NewStatusUpdateConsumer(scope.CatalogScope(), ledger, codec, zap.NewNop())

	env := statusEnvelope(t, uuid.New(), []uuid.UUID{item.ID}, "sold", 1000)
	require.NoError(t, consumer.Handle(ctx, env))

	redelivery := *env
	redelivery.EventID = uuid.New()
	require.NoError(t, consumer.Handle(ctx, &redelivery))

	found, err := items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.ProductStatusSold, found.Status)
	assert.Equal(t, 2, found.Version, "the redelivery must not touch the item")

	entry, err := ledger.FindByKey(ctx, env.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, catalog.LedgerOutcomeApplied, entry.Outcome)
}

func TestCatalogTransactionScope_MissingProductIsRecorded(t *testing.T) {
	scope, codec := newTestScope(t)
	ctx := context.Background()

	items := NewGormCatalogItemRepository(scope.db)
	item := newTestItem(t, catalog.Candidate{PartName: "Radiator"})
	require.NoError(t, items.Create(ctx, item))

	ledger := NewGormStatusLedgerRepository(scope.db)
	consumer := appcatalog.NewStatusUpdateConsumer(scope.CatalogScope(), ledger, codec, zap.NewNop())

	missing := uuid.New()
	env := statusEnvelope(t, uuid.New(), []uuid.UUID{item.ID, missing}, "reserved", 50)
	err := consumer.Handle(ctx, env)
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindConsistency))

	found, err := items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.ProductStatusReserved, found.Status)

	incidents, err := NewGormIncidentRepository(scope.db).FindOpen(ctx, 10)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, missing.String(), incidents[0].Subject)

	entry, err := ledger.FindByKey(ctx, env.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, catalog.LedgerOutcomePartial, entry.Outcome)
}
