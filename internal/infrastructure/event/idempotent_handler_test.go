package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockEventHandler is a mock implementation of shared.EventHandler
type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	args := m.Called(ctx, env)
	return args.Error(0)
}

func (m *MockEventHandler) EventTypes() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestIdempotentHandler_Handle_NewDelivery(t *testing.T) {
	handler := new(MockEventHandler)
	store := new(MockIdempotencyStore)
	env := newTestEnvelope("lot.posted", map[string]any{})
	key := "billing:" + env.IdempotencyKey

	store.On("IsProcessed", mock.Anything, key).Return(false, nil)
	handler.On("Handle", mock.Anything, env).Return(nil)
	store.On("MarkProcessed", mock.Anything, key, 24*time.Hour).Return(true, nil)

	h := NewIdempotentHandler(handler, store, "billing", zap.NewNop())
	require.NoError(t, h.Handle(context.Background(), env))

	handler.AssertExpectations(t)
	store.AssertExpectations(t)
	assert.Equal(t, int64(1), h.GetMetrics().Stats().EventsProcessed)
}

func TestIdempotentHandler_Handle_Duplicate(t *testing.T) {
	handler := new(MockEventHandler)
	store := new(MockIdempotencyStore)
	env := newTestEnvelope("lot.posted", map[string]any{})

	store.On("IsProcessed", mock.Anything, "billing:"+env.IdempotencyKey).Return(true, nil)

	h := NewIdempotentHandler(handler, store, "billing", zap.NewNop())
	require.NoError(t, h.Handle(context.Background(), env))

	handler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, int64(1), h.GetMetrics().Stats().EventsDuplicate)
}

func TestIdempotentHandler_Handle_FailureIsNotRemembered(t *testing.T) {
	handler := new(MockEventHandler)
	store := new(MockIdempotencyStore)
	env := newTestEnvelope("lot.posted", map[string]any{})
	handlerErr := errors.New("db down")

	store.On("IsProcessed", mock.Anything, mock.Anything).Return(false, nil)
	handler.On("Handle", mock.Anything, env).Return(handlerErr)

	h := NewIdempotentHandler(handler, store, "billing", zap.NewNop())
	err := h.Handle(context.Background(), env)

	assert.ErrorIs(t, err, handlerErr)
	store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, int64(1), h.GetMetrics().Stats().EventsFailed)
}

func TestIdempotentHandler_Handle_StoreUnavailable(t *testing.T) {
	handler := new(MockEventHandler)
	store := new(MockIdempotencyStore)
	env := newTestEnvelope("lot.posted", map[string]any{})

	store.On("IsProcessed", mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	handler.On("Handle", mock.Anything, env).Return(nil)
	store.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))

	h := NewIdempotentHandler(handler, store, "billing", zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), env))
	handler.AssertCalled(t, "Handle", mock.Anything, env)
}

func TestIdempotentHandler_Handle_Disabled(t *testing.T) {
	handler := new(MockEventHandler)
	store := new(MockIdempotencyStore)
	env := newTestEnvelope("lot.posted", map[string]any{})
	handler.On("Handle", mock.Anything, env).Return(nil)

	h := NewIdempotentHandler(handler, store, "billing", zap.NewNop(),
		WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: false}))
	require.NoError(t, h.Handle(context.Background(), env))

	store.AssertNotCalled(t, "IsProcessed", mock.Anything, mock.Anything)
}

func TestIdempotentHandler_KeysAreScopedByPrefix(t *testing.T) {
	store := new(MockIdempotencyStore)
	env := newTestEnvelope("lot.posted", map[string]any{})

	store.On("IsProcessed", mock.Anything, "billing:"+env.IdempotencyKey).Return(true, nil)
	store.On("IsProcessed", mock.Anything, "catalog:"+env.IdempotencyKey).Return(false, nil)
	store.On("MarkProcessed", mock.Anything, "catalog:"+env.IdempotencyKey, mock.Anything).Return(true, nil)

	billing := new(MockEventHandler)
	catalog := new(MockEventHandler)
	catalog.On("Handle", mock.Anything, env).Return(nil)

	require.NoError(t, NewIdempotentHandler(billing, store, "billing", zap.NewNop()).Handle(context.Background(), env))
	require.NoError(t, NewIdempotentHandler(catalog, store, "catalog", zap.NewNop()).Handle(context.Background(), env))

	billing.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	catalog.AssertExpectations(t)
}

func TestIdempotentHandler_EventTypes(t *testing.T) {
	handler := new(MockEventHandler)
	handler.On("EventTypes").Return([]string{"lot.posted"})

	h := NewIdempotentHandler(handler, new(MockIdempotencyStore), "x", zap.NewNop())

	assert.Equal(t, []string{"lot.posted"}, h.EventTypes())
}
