package shared

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents an event that occurred in the domain
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	// IdempotencyKey identifies the business fact behind the event.
	// Re-publishing the same fact yields the same key.
	IdempotencyKey() string
}

// BaseDomainEvent provides common fields for all domain events
type BaseDomainEvent struct {
	ID      uuid.UUID `json:"id"`
	Type    string    `json:"type"`
	Time    time.Time `json:"timestamp"`
	AggID   uuid.UUID `json:"aggregate_id"`
	AggType string    `json:"aggregate_type"`
	IdemKey string    `json:"idempotency_key"`
	Version int       `json:"schema_version,omitempty"`
}

// EventID returns the unique event identifier
func (e *BaseDomainEvent) EventID() uuid.UUID {
	return e.ID
}

// EventType returns the type of the event
func (e *BaseDomainEvent) EventType() string {
	return e.Type
}

// OccurredAt returns when the event occurred
func (e *BaseDomainEvent) OccurredAt() time.Time {
	return e.Time
}

// AggregateID returns the ID of the aggregate that produced this event
func (e *BaseDomainEvent) AggregateID() uuid.UUID {
	return e.AggID
}

// AggregateType returns the type of the aggregate
func (e *BaseDomainEvent) AggregateType() string {
	return e.AggType
}

// IdempotencyKey returns the business-fact key of the event
func (e *BaseDomainEvent) IdempotencyKey() string {
	return e.IdemKey
}

// SchemaVersion returns the schema version of the event
// Returns 1 if no version is set
func (e *BaseDomainEvent) SchemaVersion() int {
	if e.Version == 0 {
		return 1
	}
	return e.Version
}

// NewBaseDomainEvent creates a new base domain event keyed by the given business fact
func NewBaseDomainEvent(eventType, aggType string, aggID uuid.UUID, idempotencyKey string) BaseDomainEvent {
	return BaseDomainEvent{
		ID:      uuid.New(),
		Type:    eventType,
		Time:    time.Now(),
		AggID:   aggID,
		AggType: aggType,
		IdemKey: idempotencyKey,
		Version: 1,
	}
}

// DeriveIdempotencyKey hashes the parts of a business fact into a stable key.
// It never includes wall-clock time, so redelivery and re-publication agree.
func DeriveIdempotencyKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Envelope is the wire form of a domain event on the bus
type Envelope struct {
	EventID        uuid.UUID       `json:"event_id"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	ProducerID     string          `json:"producer_id"`
	AggregateID    uuid.UUID       `json:"aggregate_id"`
	AggregateType  string          `json:"aggregate_type"`
	EmittedAt      time.Time       `json:"emitted_at"`
	SchemaVersion  int             `json:"schema_version"`
	Payload        json.RawMessage `json:"payload"`
}

// Validate checks the envelope headers. Payload validation belongs to the consumer.
func (e *Envelope) Validate() error {
	if e.EventType == "" {
		return NewValidationError("ENVELOPE_MISSING_TYPE", "envelope has no event_type")
	}
	if e.IdempotencyKey == "" {
		return NewValidationError("ENVELOPE_MISSING_KEY", "envelope has no idempotency_key")
	}
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return NewValidationError("ENVELOPE_MISSING_PAYLOAD", "envelope has no payload")
	}
	return nil
}

// DecodeEnvelope parses a raw message body into an envelope
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DomainError{Kind: KindValidation, Code: "ENVELOPE_MALFORMED", Message: "cannot decode envelope", cause: err}
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// NewEnvelope wraps a domain event and its serialized payload for the wire
func NewEnvelope(event DomainEvent, producerID string, payload []byte) *Envelope {
	return &Envelope{
		EventID:        event.EventID(),
		EventType:      event.EventType(),
		IdempotencyKey: event.IdempotencyKey(),
		ProducerID:     producerID,
		AggregateID:    event.AggregateID(),
		AggregateType:  event.AggregateType(),
		EmittedAt:      event.OccurredAt(),
		SchemaVersion:  schemaVersionOf(event),
		Payload:        payload,
	}
}

func schemaVersionOf(event DomainEvent) int {
	if v, ok := event.(interface{ SchemaVersion() int }); ok {
		return v.SchemaVersion()
	}
	return 1
}
