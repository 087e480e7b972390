package event

import (
	"context"
	"sync/atomic"

	"github.com/erp/invsync/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotencyMetrics tracks idempotency-related statistics
type IdempotencyMetrics struct {
	// EventsProcessed is the number of deliveries handed to the wrapped handler and completed
	EventsProcessed atomic.Int64
	// EventsDuplicate is the number of deliveries short-circuited by the store
	EventsDuplicate atomic.Int64
	// EventsFailed is the number of deliveries the wrapped handler failed
	EventsFailed atomic.Int64
}

// Stats returns a snapshot of the current metrics
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		EventsProcessed: m.EventsProcessed.Load(),
		EventsDuplicate: m.EventsDuplicate.Load(),
		EventsFailed:    m.EventsFailed.Load(),
	}
}

// IdempotencyStats is a snapshot of idempotency metrics
type IdempotencyStats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDuplicate int64 `json:"events_duplicate"`
	EventsFailed    int64 `json:"events_failed"`
}

// IdempotentHandler short-circuits redeliveries of business facts that were
// already fully handled. The key is marked only after the wrapped handler
// succeeds, so a failed attempt is retried in full. The store is a cache:
// when it is unavailable the delivery goes through and the handler's own
// durable ledger decides.
type IdempotentHandler struct {
	handler shared.EventHandler
	store   shared.IdempotencyStore
	prefix  string
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *IdempotencyMetrics
}

// IdempotentHandlerOption is a functional option for IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig sets the idempotency configuration
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithIdempotencyMetrics sets the metrics collector
func WithIdempotencyMetrics(metrics *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.metrics = metrics
	}
}

// NewIdempotentHandler wraps handler. prefix scopes keys, usually the consumer name.
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	prefix string,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		prefix:  prefix,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
		metrics: &IdempotencyMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

func (h *IdempotentHandler) key(env *shared.Envelope) string {
	return h.prefix + ":" + env.IdempotencyKey
}

// Handle processes the envelope unless its business fact was already handled
func (h *IdempotentHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, env)
	}

	key := h.key(env)
	seen, err := h.store.IsProcessed(ctx, key)
	if err != nil {
		h.logger.Warn("idempotency store unavailable, processing anyway",
			zap.String("event_id", env.EventID.String()),
			zap.Error(err),
		)
	} else if seen {
		h.metrics.EventsDuplicate.Add(1)
		h.logger.Debug("duplicate delivery, skipping",
			zap.String("event_id", env.EventID.String()),
			zap.String("idempotency_key", env.IdempotencyKey),
		)
		return nil
	}

	if err := h.handler.Handle(ctx, env); err != nil {
		h.metrics.EventsFailed.Add(1)
		return err
	}
	h.metrics.EventsProcessed.Add(1)

	if _, err := h.store.MarkProcessed(ctx, key, h.config.TTL); err != nil {
		h.logger.Warn("failed to remember processed delivery",
			zap.String("event_id", env.EventID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// GetMetrics returns the metrics for this handler
func (h *IdempotentHandler) GetMetrics() *IdempotencyMetrics {
	return h.metrics
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
