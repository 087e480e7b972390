package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
)

type testEvent struct {
	shared.BaseDomainEvent
	Note     string `json:"note" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

func newTestEvent(eventType string) *testEvent {
	aggID := uuid.New()
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", aggID,
			shared.DeriveIdempotencyKey(aggID.String(), eventType)),
		Note:     "hello",
		Quantity: 1,
	}
}

func newTestEnvelope(eventType string, payload any) *shared.Envelope {
	data, _ := json.Marshal(payload)
	return &shared.Envelope{
		EventID:        uuid.New(),
		EventType:      eventType,
		IdempotencyKey: shared.DeriveIdempotencyKey(uuid.NewString()),
		ProducerID:     "test",
		AggregateID:    uuid.New(),
		AggregateType:  "TestAggregate",
		SchemaVersion:  1,
		Payload:        data,
	}
}

func encodeEnvelope(env *shared.Envelope) []byte {
	data, _ := json.Marshal(env)
	return data
}

// funcHandler is an EventHandler backed by a function
type funcHandler struct {
	types []string
	fn    func(ctx context.Context, env *shared.Envelope) error
	calls atomic.Int32
}

func newFuncHandler(fn func(ctx context.Context, env *shared.Envelope) error, types ...string) *funcHandler {
	return &funcHandler{types: types, fn: fn}
}

func (h *funcHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	h.calls.Add(1)
	if h.fn == nil {
		return nil
	}
	return h.fn(ctx, env)
}

func (h *funcHandler) EventTypes() []string {
	return h.types
}

// memoryDeadLetters is an in-memory DeadLetterRepository
type memoryDeadLetters struct {
	mu      sync.Mutex
	letters []*shared.DeadLetter
	saveErr error
}

func (r *memoryDeadLetters) Save(_ context.Context, dl *shared.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.letters = append(r.letters, dl)
	return nil
}

func (r *memoryDeadLetters) FindRecent(_ context.Context, _, _ int) ([]*shared.DeadLetter, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*shared.DeadLetter(nil), r.letters...), int64(len(r.letters)), nil
}

func (r *memoryDeadLetters) all() []*shared.DeadLetter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*shared.DeadLetter(nil), r.letters...)
}
