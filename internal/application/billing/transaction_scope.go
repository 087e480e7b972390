package billing

import (
	"context"

	"github.com/erp/invsync/internal/domain/billing"
	"github.com/erp/invsync/internal/domain/shared"
)

// TransactionScope provides transactional access to the billing repositories
type TransactionScope interface {
	// Execute runs fn within a database transaction. An error rolls it back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all repositories within a transaction
type TransactionalRepositories interface {
	// InvoiceRepo returns the invoice repository scoped to the current transaction
	InvoiceRepo() billing.InvoiceRepository
	// Outbox returns the event writer scoped to the current transaction
	Outbox() shared.EventWriter
}
