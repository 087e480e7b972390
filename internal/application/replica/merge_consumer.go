package replica

import (
	"context"
	"encoding/json"

	"github.com/erp/invsync/internal/domain/replica"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PayloadDecoder turns an envelope payload into a typed, validated struct
type PayloadDecoder interface {
	Decode(env *shared.Envelope, target any) error
}

// ChangePayload is the wire contract of branch.updated and employee.updated.
// Only the keys present in ChangedFields were changed by the owner.
type ChangePayload struct {
	EntityID      uuid.UUID                  `json:"entity_id" validate:"required"`
	ChangedFields map[string]json.RawMessage `json:"changed_fields" validate:"required"`
}

// MergeConsumer keeps the local branch and employee replicas in sync.
// Applying the same change twice leaves the same row, so redeliveries are
// harmless without a ledger.
type MergeConsumer struct {
	repo    replica.Repository
	decoder PayloadDecoder
	metrics ApplyMetrics
	logger  *zap.Logger
}

// ApplyMetrics receives replica apply outcomes
type ApplyMetrics interface {
	RecordReplicaApply(ctx context.Context, entity, outcome string)
}

// NewMergeConsumer creates a new MergeConsumer
func NewMergeConsumer(repo replica.Repository, decoder PayloadDecoder, logger *zap.Logger) *MergeConsumer {
	return &MergeConsumer{repo: repo, decoder: decoder, logger: logger}
}

// WithMetrics sets the counters apply outcomes are reported to
func (c *MergeConsumer) WithMetrics(m ApplyMetrics) *MergeConsumer {
	c.metrics = m
	return c
}

// EventTypes returns the event types this handler is interested in
func (c *MergeConsumer) EventTypes() []string {
	return []string{replica.EventTypeBranchUpdated, replica.EventTypeEmployeeUpdated}
}

// Handle applies one change event
func (c *MergeConsumer) Handle(ctx context.Context, env *shared.Envelope) error {
	schema, ok := replica.SchemaFor(env.EventType)
	if !ok {
		return shared.NewValidationError("UNSUPPORTED_EVENT_TYPE", "no replica schema for "+env.EventType)
	}
	var payload ChangePayload
	if err := c.decoder.Decode(env, &payload); err != nil {
		return err
	}
	return c.ApplyChange(ctx, schema, payload.EntityID, payload.ChangedFields)
}

// ApplyChange writes exactly the present fields of a change to the replica
func (c *MergeConsumer) ApplyChange(ctx context.Context, schema replica.Schema, entityID uuid.UUID, changed map[string]json.RawMessage) error {
	cs, err := schema.BuildChangeSet(entityID, changed)
	if err != nil {
		return err
	}
	log := c.logger.With(
		zap.String("entity", schema.Entity),
		zap.String("entity_id", entityID.String()),
	)
	if len(cs.Ignored) > 0 {
		log.Warn("ignoring unknown replica fields", zap.Strings("fields", cs.Ignored))
	}
	if cs.IsEmpty() {
		log.Debug("change carries no known fields, nothing to apply")
		c.record(ctx, schema.Entity, "empty")
		return nil
	}
	if err := c.repo.Apply(ctx, schema, cs); err != nil {
		c.record(ctx, schema.Entity, "failed")
		return shared.NewTransientError("replica write failed", err)
	}
	c.record(ctx, schema.Entity, "applied")
	log.Info("replica updated", zap.Strings("columns", cs.Columns()))
	return nil
}

func (c *MergeConsumer) record(ctx context.Context, entity, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordReplicaApply(ctx, entity, outcome)
	}
}

var _ shared.EventHandler = (*MergeConsumer)(nil)
