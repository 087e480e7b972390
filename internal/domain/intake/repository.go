package intake

import (
	"context"

	"github.com/google/uuid"
)

// LotRepository defines the interface for lot persistence.
// Lots are always loaded and saved together with their lines.
type LotRepository interface {
	// FindByID finds a lot by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Lot, error)

	// FindByIDForUpdate finds a lot and locks its row for the current transaction
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Lot, error)

	// FindByLotNumber finds a lot by its lot number
	FindByLotNumber(ctx context.Context, lotNumber string) (*Lot, error)

	// Create inserts a lot and its lines. A duplicate lot number returns shared.ErrAlreadyExists.
	Create(ctx context.Context, lot *Lot) error

	// Save persists the lot header and line states with optimistic locking
	Save(ctx context.Context, lot *Lot) error
}

// ConfirmationRepository defines the interface for operator decisions
type ConfirmationRepository interface {
	// Create stores a decision. A second decision for the same line returns shared.ErrAlreadyExists.
	Create(ctx context.Context, confirmation *LineConfirmation) error

	// FindByLot returns all decisions recorded for a lot
	FindByLot(ctx context.Context, lotID uuid.UUID) ([]LineConfirmation, error)
}
