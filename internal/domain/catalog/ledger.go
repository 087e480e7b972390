package catalog

import (
	"time"

	"github.com/google/uuid"
)

// LedgerOutcome records what a status update did once it was claimed
type LedgerOutcome string

const (
	LedgerOutcomeClaimed   LedgerOutcome = "CLAIMED"
	LedgerOutcomeApplied   LedgerOutcome = "APPLIED"
	LedgerOutcomeUnchanged LedgerOutcome = "UNCHANGED"
	LedgerOutcomeStale     LedgerOutcome = "STALE"
	// LedgerOutcomePartial means at least one referenced product was missing
	// and was reported as an incident
	LedgerOutcomePartial LedgerOutcome = "PARTIAL"
)

// StatusLedgerEntry marks a product.status.update idempotency key as consumed.
// The primary key makes a second claim of the same key a no-op.
type StatusLedgerEntry struct {
	IdempotencyKey string        `gorm:"type:varchar(128);primaryKey"`
	EventID        uuid.UUID     `gorm:"type:uuid;not null"`
	InvoiceID      uuid.UUID     `gorm:"type:uuid;not null;index"`
	Sequence       int64         `gorm:"not null"`
	Outcome        LedgerOutcome `gorm:"type:varchar(20);not null"`
	AppliedAt      time.Time     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StatusLedgerEntry) TableName() string {
	return "status_update_ledger"
}

// NewStatusLedgerEntry creates a claim for the given key
func NewStatusLedgerEntry(idempotencyKey string, eventID, invoiceID uuid.UUID, sequence int64) *StatusLedgerEntry {
	return &StatusLedgerEntry{
		IdempotencyKey: idempotencyKey,
		EventID:        eventID,
		InvoiceID:      invoiceID,
		Sequence:       sequence,
		Outcome:        LedgerOutcomeClaimed,
		AppliedAt:      time.Now(),
	}
}

// Merge folds the outcome of one product line into the entry outcome.
// PARTIAL dominates, then APPLIED, then UNCHANGED, then STALE.
func (o LedgerOutcome) Merge(line StatusDecision) LedgerOutcome {
	next := LedgerOutcome(line)
	if rank(next) > rank(o) {
		return next
	}
	return o
}

func rank(o LedgerOutcome) int {
	switch o {
	case LedgerOutcomePartial:
		return 4
	case LedgerOutcomeApplied:
		return 3
	case LedgerOutcomeUnchanged:
		return 2
	case LedgerOutcomeStale:
		return 1
	}
	return 0
}
