package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/config"
	"github.com/erp/invsync/internal/infrastructure/event"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// PubSubBroker publishes envelopes to one Pub/Sub topic. Each consumer gets
// its own subscription, named <prefix>-<consumer>.
type PubSubBroker struct {
	client *pubsub.Client
	cfg    config.BrokerConfig
	logger *zap.Logger

	mu    sync.Mutex
	topic *pubsub.Topic
}

// NewPubSubBroker connects to Pub/Sub with Application Default Credentials
// unless client options are given
func NewPubSubBroker(ctx context.Context, cfg config.BrokerConfig, logger *zap.Logger, opts ...option.ClientOption) (*PubSubBroker, error) {
	if cfg.PubSub.ProjectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return NewPubSubBrokerWithClient(client, cfg, logger), nil
}

// NewPubSubBrokerWithClient wraps an existing client
func NewPubSubBrokerWithClient(client *pubsub.Client, cfg config.BrokerConfig, logger *zap.Logger) *PubSubBroker {
	return &PubSubBroker{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("broker", config.BrokerPubSub), zap.String("topic", cfg.Topic)),
	}
}

// Start makes sure the topic exists
func (b *PubSubBroker) Start(ctx context.Context) error {
	topic, err := b.ensureTopic(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.topic = topic
	b.mu.Unlock()
	b.logger.Info("pubsub broker started")
	return nil
}

func (b *PubSubBroker) ensureTopic(ctx context.Context) (*pubsub.Topic, error) {
	topic := b.client.Topic(b.cfg.Topic)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %q: %w", b.cfg.Topic, err)
	}
	if !ok {
		topic, err = b.client.CreateTopic(ctx, b.cfg.Topic)
		if err != nil {
			return nil, fmt.Errorf("create topic %q: %w", b.cfg.Topic, err)
		}
	}
	topic.EnableMessageOrdering = true
	return topic, nil
}

// Publish sends every envelope and waits until the server accepted each one
func (b *PubSubBroker) Publish(ctx context.Context, envelopes ...*shared.Envelope) error {
	b.mu.Lock()
	topic := b.topic
	b.mu.Unlock()
	if topic == nil {
		return shared.NewTransientError("cannot publish", errors.New("pubsub broker is not started"))
	}

	results := make([]*pubsub.PublishResult, 0, len(envelopes))
	for _, env := range envelopes {
		body, err := encodeEnvelope(env)
		if err != nil {
			return err
		}
		results = append(results, topic.Publish(ctx, &pubsub.Message{
			Data:        body,
			OrderingKey: partitionKey(env),
			Attributes: map[string]string{
				AttrEventType:      env.EventType,
				AttrEventID:        env.EventID.String(),
				AttrIdempotencyKey: env.IdempotencyKey,
				AttrSchemaVersion:  strconv.Itoa(env.SchemaVersion),
			},
		}))
	}

	for i, res := range results {
		if _, err := res.Get(ctx); err != nil {
			// a failed publish pauses its ordering key until resumed
			topic.ResumePublish(partitionKey(envelopes[i]))
			return shared.NewTransientError(fmt.Sprintf("publish %s", envelopes[i].EventID), err)
		}
	}
	return nil
}

// Consume receives from the dispatcher's subscription until ctx is done
func (b *PubSubBroker) Consume(ctx context.Context, d *event.Dispatcher) error {
	sub, err := b.ensureSubscription(ctx, d.Consumer())
	if err != nil {
		return err
	}
	if b.cfg.PubSub.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = b.cfg.PubSub.MaxOutstanding
	}

	log := b.logger.With(zap.String("subscription", sub.ID()))
	log.Info("pubsub consumer started")
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if d.Dispatch(ctx, msg.Data) == event.NackDelivery {
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive from %s: %w", sub.ID(), err)
	}
	log.Info("pubsub consumer stopped")
	return nil
}

// SubscriptionName returns the subscription used by a consumer
func (b *PubSubBroker) SubscriptionName(consumer string) string {
	return b.cfg.PubSub.SubscriptionPrefix + "-" + consumer
}

func (b *PubSubBroker) ensureSubscription(ctx context.Context, consumer string) (*pubsub.Subscription, error) {
	name := b.SubscriptionName(consumer)
	sub := b.client.Subscription(name)
	ok, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription %q: %w", name, err)
	}
	if ok {
		return sub, nil
	}

	topic, err := b.ensureTopic(ctx)
	if err != nil {
		return nil, err
	}
	sub, err = b.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
		Topic:                 topic,
		AckDeadline:           b.cfg.PubSub.AckDeadline,
		EnableMessageOrdering: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %q: %w", name, err)
	}
	return sub, nil
}

// Stop flushes pending publishes
func (b *PubSubBroker) Stop(ctx context.Context) error {
	b.mu.Lock()
	topic := b.topic
	b.topic = nil
	b.mu.Unlock()
	if topic != nil {
		topic.Stop()
	}
	b.logger.Info("pubsub broker stopped")
	return nil
}

// Close closes the client
func (b *PubSubBroker) Close() error {
	return b.client.Close()
}

var _ Broker = (*PubSubBroker)(nil)
