package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/logger"
	"github.com/erp/invsync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Ack tells a broker adapter what to do with a delivery
type Ack int

const (
	// AckDelivery acknowledges the delivery; it will not be seen again
	AckDelivery Ack = iota
	// NackDelivery leaves the delivery for broker redelivery
	NackDelivery
)

// String returns the name of the decision
func (a Ack) String() string {
	if a == NackDelivery {
		return "nack"
	}
	return "ack"
}

// DispatchMetrics tracks dispatch outcomes
type DispatchMetrics struct {
	Delivered    atomic.Int64
	Nacked       atomic.Int64
	DeadLettered atomic.Int64
	Rejected     atomic.Int64
}

// DispatchStats is a snapshot of dispatch metrics
type DispatchStats struct {
	Delivered    int64 `json:"delivered"`
	Nacked       int64 `json:"nacked"`
	DeadLettered int64 `json:"dead_lettered"`
	Rejected     int64 `json:"rejected"`
}

// Stats returns a snapshot of the current metrics
func (m *DispatchMetrics) Stats() DispatchStats {
	return DispatchStats{
		Delivered:    m.Delivered.Load(),
		Nacked:       m.Nacked.Load(),
		DeadLettered: m.DeadLettered.Load(),
		Rejected:     m.Rejected.Load(),
	}
}

// Dispatcher decodes raw deliveries, routes them to handlers and turns the
// handler results into ack/nack decisions:
//   - validation errors are dead-lettered and acknowledged
//   - transient errors are not acknowledged
//   - consistency and business rule violations are logged and acknowledged
type Dispatcher struct {
	consumer    string
	registry    *HandlerRegistry
	deadLetters shared.DeadLetterRepository
	logger      *zap.Logger
	metrics     *DispatchMetrics
	recorder    *telemetry.SyncMetrics
}

// DispatcherOption is a functional option for Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatchMetrics sets the metrics collector
func WithDispatchMetrics(metrics *DispatchMetrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// WithSyncMetrics records outcomes on the OpenTelemetry instruments as well
func WithSyncMetrics(recorder *telemetry.SyncMetrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.recorder = recorder
	}
}

// NewDispatcher creates a dispatcher for the named consumer
func NewDispatcher(consumer string, deadLetters shared.DeadLetterRepository, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		consumer:    consumer,
		registry:    NewHandlerRegistry(),
		deadLetters: deadLetters,
		logger:      logger.With(zap.String("consumer", consumer)),
		metrics:     &DispatchMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Consumer returns the consumer name used for dead letters and subscriptions
func (d *Dispatcher) Consumer() string {
	return d.consumer
}

// Subscribe registers a handler. Without explicit types the handler's own are used.
func (d *Dispatcher) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	d.registry.Register(handler, eventTypes...)
	d.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (d *Dispatcher) Unsubscribe(handler shared.EventHandler) {
	d.registry.Unregister(handler)
}

// EventTypes returns the subscribed event types
func (d *Dispatcher) EventTypes() []string {
	return d.registry.EventTypes()
}

// Metrics returns the dispatch metrics
func (d *Dispatcher) Metrics() *DispatchMetrics {
	return d.metrics
}

// Dispatch handles one raw delivery from a broker
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) Ack {
	env, err := shared.DecodeEnvelope(body)
	if err != nil {
		return d.deadLetter(ctx, nil, body, err)
	}
	return d.DispatchEnvelope(ctx, env, body)
}

// DispatchEnvelope routes a decoded envelope to every handler subscribed to
// its type. Handlers run in registration order; the first transient failure
// stops the delivery so the broker redelivers it to all of them.
func (d *Dispatcher) DispatchEnvelope(ctx context.Context, env *shared.Envelope, body []byte) Ack {
	ctx, span := telemetry.StartSpan(ctx, "event.dispatch",
		telemetry.WithSpanKind(trace.SpanKindConsumer),
		telemetry.WithAttribute(telemetry.SpanAttrEventType, env.EventType),
		telemetry.WithAttribute(telemetry.SpanAttrEventID, env.EventID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrIdempotencyKey, env.IdempotencyKey),
		telemetry.WithAttribute(telemetry.SpanAttrConsumer, d.consumer),
	)
	defer span.End()

	ctx, log := logger.WithEvent(ctx, d.logger, env.EventID.String(), env.IdempotencyKey)
	log = log.With(zap.String("event_type", env.EventType))

	handlers := d.registry.GetHandlers(env.EventType)
	if len(handlers) == 0 {
		log.Debug("no handler for event type, acknowledging")
		d.metrics.Delivered.Add(1)
		return AckDelivery
	}

	for _, handler := range handlers {
		err := d.invoke(ctx, handler, env)
		if err == nil {
			continue
		}
		telemetry.RecordError(span, err)

		switch shared.KindOf(err) {
		case shared.KindValidation:
			return d.deadLetter(ctx, env, body, err)
		case shared.KindTransient:
			d.metrics.Nacked.Add(1)
			d.recorder.RecordDispatch(ctx, d.consumer, env.EventType, "nack")
			log.Warn("transient failure, leaving delivery for redelivery", zap.Error(err))
			return NackDelivery
		case shared.KindConsistency:
			d.metrics.Rejected.Add(1)
			d.recorder.RecordDispatch(ctx, d.consumer, env.EventType, "consistency_violation")
			log.Error("consistency violation, halting item and continuing",
				zap.String("aggregate_id", env.AggregateID.String()),
				zap.String("producer_id", env.ProducerID),
				zap.Error(err),
			)
		default:
			d.metrics.Rejected.Add(1)
			d.recorder.RecordDispatch(ctx, d.consumer, env.EventType, "business_rule_violation")
			log.Error("business rule violation, event rejected",
				zap.String("aggregate_id", env.AggregateID.String()),
				zap.String("aggregate_type", env.AggregateType),
				zap.String("producer_id", env.ProducerID),
				zap.ByteString("payload", env.Payload),
				zap.Error(err),
			)
		}
	}

	d.metrics.Delivered.Add(1)
	d.recorder.RecordDispatch(ctx, d.consumer, env.EventType, "ack")
	telemetry.SetOK(span)
	return AckDelivery
}

// invoke runs a handler and turns a panic into a validation failure so a
// poison message is parked instead of crashing the worker forever
func (d *Dispatcher) invoke(ctx context.Context, handler shared.EventHandler, env *shared.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				zap.String("event_type", env.EventType),
				zap.String("event_id", env.EventID.String()),
				zap.Any("panic", r),
			)
			err = shared.NewValidationError("HANDLER_PANIC", fmt.Sprintf("handler panicked: %v", r))
		}
	}()
	telemetry.WithProfilingLabels(ctx, map[string]string{
		"consumer":   d.consumer,
		"event_type": env.EventType,
	}, func(ctx context.Context) {
		err = handler.Handle(ctx, env)
	})
	return err
}

func (d *Dispatcher) deadLetter(ctx context.Context, env *shared.Envelope, body []byte, cause error) Ack {
	dl := shared.NewDeadLetter(d.consumer, env, body, cause)
	if err := d.deadLetters.Save(ctx, dl); err != nil {
		d.metrics.Nacked.Add(1)
		d.logger.Error("failed to store dead letter, leaving delivery for redelivery",
			zap.String("code", dl.Code),
			zap.Error(err),
		)
		return NackDelivery
	}
	d.metrics.DeadLettered.Add(1)
	eventType := dl.EventType
	if eventType == "" {
		eventType = "unknown"
	}
	d.recorder.RecordDispatch(ctx, d.consumer, eventType, "dead_letter")
	d.logger.Warn("delivery dead-lettered",
		zap.String("dead_letter_id", dl.ID.String()),
		zap.String("event_type", dl.EventType),
		zap.String("code", dl.Code),
		zap.String("reason", dl.Reason),
	)
	return AckDelivery
}

var _ shared.EventSubscriber = (*Dispatcher)(nil)
