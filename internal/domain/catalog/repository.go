package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ItemFinder looks up catalog items by identity predicate
type ItemFinder interface {
	// FindByPredicate returns up to limit items matching p
	FindByPredicate(ctx context.Context, p IdentityPredicate, limit int) ([]CatalogItem, error)
}

// CatalogItemRepository defines the interface for catalog item persistence
type CatalogItemRepository interface {
	ItemFinder

	// FindByID finds an item by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*CatalogItem, error)

	// FindByIDForUpdate finds an item and locks its row for the current transaction
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*CatalogItem, error)

	// Create inserts a new item. A collision on the identity hash returns shared.ErrAlreadyExists.
	Create(ctx context.Context, item *CatalogItem) error

	// IncrementQuantity atomically adds delta to the stored quantity
	IncrementQuantity(ctx context.Context, id uuid.UUID, delta int64) error

	// SaveStatus persists the status columns and watermark of an item
	SaveStatus(ctx context.Context, item *CatalogItem) error
}

// StatusLedgerRepository defines the interface for the status update ledger
type StatusLedgerRepository interface {
	// Claim inserts the entry unless the key already exists.
	// It returns false when another delivery already claimed the key.
	Claim(ctx context.Context, entry *StatusLedgerEntry) (bool, error)

	// SetOutcome records the outcome of a claimed key
	SetOutcome(ctx context.Context, idempotencyKey string, outcome LedgerOutcome) error

	// Exists reports whether the key was already claimed
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// IncidentRepository defines the interface for consistency incidents
type IncidentRepository interface {
	// Record stores a new incident
	Record(ctx context.Context, incident *Incident) error

	// FindOpen returns unresolved incidents, newest first
	FindOpen(ctx context.Context, limit int) ([]Incident, error)
	// Resolve closes an open incident
	Resolve(ctx context.Context, id uuid.UUID) error
}
