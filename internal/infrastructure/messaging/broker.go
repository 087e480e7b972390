package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/config"
	"github.com/erp/invsync/internal/infrastructure/event"
	"go.uber.org/zap"
)

// Message attribute names carried next to the envelope body
const (
	AttrEventType      = "event_type"
	AttrEventID        = "event_id"
	AttrIdempotencyKey = "idempotency_key"
	AttrSchemaVersion  = "schema_version"
)

// Broker publishes envelopes and feeds deliveries to dispatchers
type Broker interface {
	shared.EventBus
	// Consume delivers every envelope to the dispatcher until ctx is done.
	// The dispatcher's ack decision is passed on to the broker.
	Consume(ctx context.Context, d *event.Dispatcher) error
	// Close releases the broker connection
	Close() error
}

// NewBroker builds the broker selected by cfg.Driver
func NewBroker(ctx context.Context, cfg config.BrokerConfig, consumer config.ConsumerConfig, logger *zap.Logger) (Broker, error) {
	switch cfg.Driver {
	case config.BrokerMemory, "":
		return NewMemoryBroker(event.NewInMemoryEventBus(logger, event.WithRedelivery(redeliveryConfig(consumer)))), nil
	case config.BrokerPubSub:
		return NewPubSubBroker(ctx, cfg, logger)
	case config.BrokerKafka:
		return NewKafkaBroker(cfg, consumer, logger), nil
	default:
		return nil, fmt.Errorf("unsupported broker driver: %s", cfg.Driver)
	}
}

func redeliveryConfig(cfg config.ConsumerConfig) event.RedeliveryConfig {
	rc := event.DefaultRedeliveryConfig()
	if cfg.RedeliveryMax > 0 {
		rc.MaxRedeliveries = uint64(cfg.RedeliveryMax)
	}
	if cfg.RedeliveryInitial > 0 {
		rc.InitialInterval = cfg.RedeliveryInitial
	}
	if cfg.RedeliveryMaxInterval > 0 {
		rc.MaxInterval = cfg.RedeliveryMaxInterval
	}
	return rc
}

func encodeEnvelope(env *shared.Envelope) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, shared.NewValidationError("ENVELOPE_UNENCODABLE", fmt.Sprintf("cannot encode envelope %s: %v", env.EventID, err))
	}
	return body, nil
}

// partitionKey keeps the envelopes of one aggregate in order
func partitionKey(env *shared.Envelope) string {
	return env.AggregateType + ":" + env.AggregateID.String()
}

// MemoryBroker adapts the in-process bus to the Broker interface
type MemoryBroker struct {
	*event.InMemoryEventBus
}

// NewMemoryBroker creates a new MemoryBroker
func NewMemoryBroker(bus *event.InMemoryEventBus) *MemoryBroker {
	return &MemoryBroker{InMemoryEventBus: bus}
}

// Consume attaches the dispatcher and blocks until ctx is done
func (b *MemoryBroker) Consume(ctx context.Context, d *event.Dispatcher) error {
	b.AddConsumer(d)
	<-ctx.Done()
	return nil
}

// Close is a no-op for the in-process bus
func (b *MemoryBroker) Close() error {
	return nil
}

var _ Broker = (*MemoryBroker)(nil)
