package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/config"
	"github.com/erp/invsync/internal/infrastructure/event"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var errNacked = errors.New("delivery not acknowledged")

// messageWriter is the part of kafka.Writer the broker uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader is the part of kafka.Reader the broker uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBroker publishes envelopes to one Kafka topic keyed by aggregate, so
// the updates of one product land on one partition in order. Consumers join
// the group <prefix>-<consumer>.
type KafkaBroker struct {
	cfg        config.BrokerConfig
	redelivery event.RedeliveryConfig
	logger     *zap.Logger

	writer    messageWriter
	newReader func(groupID string) messageReader

	mu      sync.Mutex
	readers []messageReader
}

// NewKafkaBroker creates a broker backed by kafka-go
func NewKafkaBroker(cfg config.BrokerConfig, consumer config.ConsumerConfig, logger *zap.Logger) *KafkaBroker {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.Kafka.BatchTimeout,
		MaxAttempts:  cfg.Kafka.MaxAttempts,
		RequiredAcks: kafka.RequireAll,
	}
	newReader := func(groupID string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Topic,
			GroupID:  groupID,
			MinBytes: cfg.Kafka.MinBytes,
			MaxBytes: cfg.Kafka.MaxBytes,
		})
	}
	return newKafkaBroker(cfg, redeliveryConfig(consumer), logger, writer, newReader)
}

func newKafkaBroker(cfg config.BrokerConfig, redelivery event.RedeliveryConfig, logger *zap.Logger, writer messageWriter, newReader func(string) messageReader) *KafkaBroker {
	return &KafkaBroker{
		cfg:        cfg,
		redelivery: redelivery,
		logger:     logger.With(zap.String("broker", config.BrokerKafka), zap.String("topic", cfg.Topic)),
		writer:     writer,
		newReader:  newReader,
	}
}

// Start is a no-op; kafka-go connects lazily
func (b *KafkaBroker) Start(ctx context.Context) error {
	b.logger.Info("kafka broker started", zap.Strings("brokers", b.cfg.Kafka.Brokers))
	return nil
}

// Publish writes every envelope and returns once the brokers acknowledged them
func (b *KafkaBroker) Publish(ctx context.Context, envelopes ...*shared.Envelope) error {
	msgs := make([]kafka.Message, 0, len(envelopes))
	for _, env := range envelopes {
		body, err := encodeEnvelope(env)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(partitionKey(env)),
			Value: body,
			Time:  env.EmittedAt,
			Headers: []kafka.Header{
				{Key: AttrEventType, Value: []byte(env.EventType)},
				{Key: AttrEventID, Value: []byte(env.EventID.String())},
				{Key: AttrIdempotencyKey, Value: []byte(env.IdempotencyKey)},
				{Key: AttrSchemaVersion, Value: []byte(strconv.Itoa(env.SchemaVersion))},
			},
		})
	}
	if err := b.writer.WriteMessages(ctx, msgs...); err != nil {
		return shared.NewTransientError(fmt.Sprintf("write %d message(s) to kafka", len(msgs)), err)
	}
	return nil
}

// GroupID returns the consumer group used by a consumer
func (b *KafkaBroker) GroupID(consumer string) string {
	return b.cfg.Kafka.GroupPrefix + "-" + consumer
}

// Consume reads the topic in the dispatcher's consumer group. An offset is
// committed only after the dispatcher acknowledged the message; a nack is
// retried with backoff before the partition moves on, so nothing is skipped.
func (b *KafkaBroker) Consume(ctx context.Context, d *event.Dispatcher) error {
	reader := b.newReader(b.GroupID(d.Consumer()))
	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	log := b.logger.With(zap.String("group_id", b.GroupID(d.Consumer())))
	log.Info("kafka consumer started")
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("kafka consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := b.deliver(ctx, d, msg); err != nil {
			if ctx.Err() != nil {
				log.Info("kafka consumer stopped with uncommitted message",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
				)
				return nil
			}
			return err
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d on partition %d: %w", msg.Offset, msg.Partition, err)
		}
	}
}

func (b *KafkaBroker) deliver(ctx context.Context, d *event.Dispatcher, msg kafka.Message) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.redelivery.InitialInterval
	policy.MaxInterval = b.redelivery.MaxInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if d.Dispatch(ctx, msg.Value) == event.NackDelivery {
			b.logger.Warn("delivery nacked, retrying",
				zap.String("consumer", d.Consumer()),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Int("attempt", attempt),
			)
			return errNacked
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

// Stop flushes the writer
func (b *KafkaBroker) Stop(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- b.writer.Close() }()
	select {
	case err := <-done:
		b.logger.Info("kafka broker stopped")
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return errors.New("timed out flushing kafka writer")
	}
}

// Close closes the readers opened by Consume
func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, r := range b.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.readers = nil
	return errors.Join(errs...)
}

var _ Broker = (*KafkaBroker)(nil)
