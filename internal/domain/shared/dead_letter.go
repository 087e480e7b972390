package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DeadLetter is an inbound message that can never be processed as sent.
// It was acknowledged on the bus and parked here for an operator.
type DeadLetter struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	EventID        *uuid.UUID `gorm:"type:uuid;index"`
	EventType      string     `gorm:"type:varchar(100);index"`
	IdempotencyKey string     `gorm:"type:varchar(128)"`
	Consumer       string     `gorm:"type:varchar(100);not null"`
	Code           string     `gorm:"type:varchar(64);not null"`
	Reason         string     `gorm:"type:text;not null"`
	Body           []byte     `gorm:"not null"`
	CreatedAt      time.Time  `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (DeadLetter) TableName() string {
	return "dead_letters"
}

// NewDeadLetter builds a dead letter for a rejected message. env may be nil
// when the body could not even be decoded as an envelope.
func NewDeadLetter(consumer string, env *Envelope, body []byte, cause error) *DeadLetter {
	dl := &DeadLetter{
		ID:        uuid.New(),
		Consumer:  consumer,
		Code:      "UNKNOWN",
		Reason:    cause.Error(),
		Body:      body,
		CreatedAt: time.Now(),
	}
	var de *DomainError
	if errors.As(cause, &de) {
		dl.Code = de.Code
	}
	if env != nil {
		id := env.EventID
		dl.EventID = &id
		dl.EventType = env.EventType
		dl.IdempotencyKey = env.IdempotencyKey
	}
	return dl
}

// DeadLetterRepository defines the interface for dead letter persistence
type DeadLetterRepository interface {
	// Save stores a dead letter
	Save(ctx context.Context, dl *DeadLetter) error
	// FindRecent returns dead letters, newest first, with the total count
	FindRecent(ctx context.Context, page, pageSize int) ([]*DeadLetter, int64, error)
}
