package billing

import (
	"context"

	"github.com/google/uuid"
)

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// FindByID finds an invoice with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByIDForUpdate finds an invoice and locks its row for the current transaction
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// Create inserts an invoice and its lines
	Create(ctx context.Context, inv *Invoice) error

	// Save persists the invoice header with optimistic locking
	Save(ctx context.Context, inv *Invoice) error
}
