package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/erp/invsync/internal/infrastructure/config"
	"github.com/erp/invsync/internal/infrastructure/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewBroker(t *testing.T) {
	ctx := context.Background()

	b, err := NewBroker(ctx, config.BrokerConfig{Driver: config.BrokerMemory}, config.ConsumerConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryBroker{}, b)

	b, err = NewBroker(ctx, config.BrokerConfig{Driver: config.BrokerKafka, Topic: "t"}, config.ConsumerConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &KafkaBroker{}, b)

	_, err = NewBroker(ctx, config.BrokerConfig{Driver: config.BrokerPubSub}, config.ConsumerConfig{}, zap.NewNop())
	assert.Error(t, err, "pubsub needs a project id")

	_, err = NewBroker(ctx, config.BrokerConfig{Driver: "nats"}, config.ConsumerConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestRedeliveryConfig(t *testing.T) {
	rc := redeliveryConfig(config.ConsumerConfig{})
	assert.Equal(t, event.DefaultRedeliveryConfig(), rc)

	rc = redeliveryConfig(config.ConsumerConfig{RedeliveryMax: 9, RedeliveryInitial: time.Second, RedeliveryMaxInterval: time.Minute})
	assert.Equal(t, uint64(9), rc.MaxRedeliveries)
	assert.Equal(t, time.Second, rc.InitialInterval)
	assert.Equal(t, time.Minute, rc.MaxInterval)
}

func TestMemoryBroker_ConsumeAttachesDispatcher(t *testing.T) {
	bus := event.NewInMemoryEventBus(zap.NewNop())
	b := NewMemoryBroker(bus)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Start(ctx))

	handler := &flakyHandler{eventType: "lot.posted"}
	d := event.NewDispatcher("catalog", &memoryDeadLetters{}, zap.NewNop())
	d.Subscribe(handler)

	done := make(chan error, 1)
	go func() { done <- b.Consume(ctx, d) }()

	env := newEnvelope("lot.posted")
	assert.Eventually(t, func() bool {
		if err := b.Publish(context.Background(), env); err != nil {
			return false
		}
		return len(handler.handled()) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, b.Stop(context.Background()))
	require.NoError(t, b.Close())
	assert.Equal(t, env.EventID, handler.handled()[0])
}
