package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/invsync/internal/domain/shared"
	"go.uber.org/zap"
)

var (
	errNacked     = errors.New("delivery not acknowledged")
	errBusStopped = errors.New("event bus is not running")
)

// RedeliveryConfig controls how often a nacked delivery is retried in-process
type RedeliveryConfig struct {
	MaxRedeliveries uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRedeliveryConfig returns the default redelivery configuration
func DefaultRedeliveryConfig() RedeliveryConfig {
	return RedeliveryConfig{
		MaxRedeliveries: 3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// InMemoryEventBus is a broker living in the process. Every published
// envelope is encoded to its wire form and delivered to each attached
// consumer; a nack is redelivered with exponential backoff.
type InMemoryEventBus struct {
	mu         sync.RWMutex
	consumers  []*Dispatcher
	redelivery RedeliveryConfig
	logger     *zap.Logger
	running    atomic.Bool
	inflight   sync.WaitGroup
}

// BusOption is a functional option for InMemoryEventBus
type BusOption func(*InMemoryEventBus)

// WithRedelivery sets the redelivery policy
func WithRedelivery(cfg RedeliveryConfig) BusOption {
	return func(b *InMemoryEventBus) {
		b.redelivery = cfg
	}
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger, opts ...BusOption) *InMemoryEventBus {
	b := &InMemoryEventBus{
		redelivery: DefaultRedeliveryConfig(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddConsumer attaches a consumer; it receives every envelope published afterwards
func (b *InMemoryEventBus) AddConsumer(d *Dispatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = append(b.consumers, d)
	b.logger.Debug("consumer attached", zap.String("consumer", d.Consumer()))
}

// Publish delivers each envelope to every consumer. It fails with a transient
// error when a consumer still refuses a delivery after redelivery, so the
// outbox keeps the entry and tries again later.
func (b *InMemoryEventBus) Publish(ctx context.Context, envelopes ...*shared.Envelope) error {
	if !b.running.Load() {
		return shared.NewTransientError("cannot publish", errBusStopped)
	}
	b.inflight.Add(1)
	defer b.inflight.Done()

	b.mu.RLock()
	consumers := append([]*Dispatcher(nil), b.consumers...)
	b.mu.RUnlock()

	for _, env := range envelopes {
		body, err := json.Marshal(env)
		if err != nil {
			return shared.NewValidationError("ENVELOPE_UNENCODABLE", fmt.Sprintf("cannot encode envelope %s: %v", env.EventID, err))
		}
		for _, consumer := range consumers {
			if err := b.deliver(ctx, consumer, body); err != nil {
				return shared.NewTransientError(
					fmt.Sprintf("consumer %s did not acknowledge %s", consumer.Consumer(), env.EventID), err)
			}
		}
	}
	return nil
}

func (b *InMemoryEventBus) deliver(ctx context.Context, consumer *Dispatcher, body []byte) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.redelivery.InitialInterval
	policy.MaxInterval = b.redelivery.MaxInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if consumer.Dispatch(ctx, body) == NackDelivery {
			b.logger.Debug("delivery nacked",
				zap.String("consumer", consumer.Consumer()),
				zap.Int("attempt", attempt),
			)
			return errNacked
		}
		return nil
	}, backoff.WithMaxRetries(backoff.WithContext(policy, ctx), b.redelivery.MaxRedeliveries))
}

// Start starts the event bus
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started")
	return nil
}

// Stop refuses new publications and waits for in-flight ones
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.running.Store(false)

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.logger.Info("event bus stopped")
	return nil
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
