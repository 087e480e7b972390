package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
)

type memoryDeadLetters struct {
	mu      sync.Mutex
	letters []*shared.DeadLetter
}

func (m *memoryDeadLetters) Save(_ context.Context, dl *shared.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters = append(m.letters, dl)
	return nil
}

func (m *memoryDeadLetters) FindRecent(_ context.Context, _, _ int) ([]*shared.DeadLetter, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*shared.DeadLetter(nil), m.letters...), int64(len(m.letters)), nil
}

func (m *memoryDeadLetters) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.letters)
}

// flakyHandler fails with a transient error for the first failures calls
type flakyHandler struct {
	eventType string
	failures  int32
	calls     atomic.Int32
	mu        sync.Mutex
	seen      []uuid.UUID
}

func (h *flakyHandler) Handle(_ context.Context, env *shared.Envelope) error {
	n := h.calls.Add(1)
	if n <= h.failures {
		return shared.NewTransientError("database unavailable", nil)
	}
	h.mu.Lock()
	h.seen = append(h.seen, env.EventID)
	h.mu.Unlock()
	return nil
}

func (h *flakyHandler) EventTypes() []string {
	return []string{h.eventType}
}

func (h *flakyHandler) handled() []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uuid.UUID(nil), h.seen...)
}

func newEnvelope(eventType string) *shared.Envelope {
	payload, _ := json.Marshal(map[string]string{"note": "hello"})
	aggID := uuid.New()
	return &shared.Envelope{
		EventID:        uuid.New(),
		EventType:      eventType,
		IdempotencyKey: shared.DeriveIdempotencyKey(aggID.String(), eventType),
		ProducerID:     "test",
		AggregateID:    aggID,
		AggregateType:  "TestAggregate",
		SchemaVersion:  1,
		Payload:        payload,
	}
}
