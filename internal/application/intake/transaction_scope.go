package intake

import (
	"context"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/intake"
	"github.com/erp/invsync/internal/domain/shared"
)

// TransactionScope provides transactional access to the intake repositories.
// Everything done through one TransactionalRepositories value commits or
// rolls back together, outbox writes included.
type TransactionScope interface {
	// Execute runs fn within a database transaction. An error rolls it back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all repositories within a transaction
type TransactionalRepositories interface {
	// LotRepo returns the lot repository scoped to the current transaction
	LotRepo() intake.LotRepository
	// ConfirmationRepo returns the confirmation repository scoped to the current transaction
	ConfirmationRepo() intake.ConfirmationRepository
	// CatalogItemRepo returns the catalog item repository scoped to the current transaction
	CatalogItemRepo() catalog.CatalogItemRepository
	// IncidentRepo returns the incident repository scoped to the current transaction
	IncidentRepo() catalog.IncidentRepository
	// Outbox returns the event writer scoped to the current transaction
	Outbox() shared.EventWriter
}
