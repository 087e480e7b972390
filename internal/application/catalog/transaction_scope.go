package catalog

import (
	"context"

	"github.com/erp/invsync/internal/domain/catalog"
)

// TransactionScope provides transactional access to the catalog repositories
type TransactionScope interface {
	// Execute runs fn within a database transaction. An error rolls it back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all repositories within a transaction
type TransactionalRepositories interface {
	// CatalogItemRepo returns the catalog item repository scoped to the current transaction
	CatalogItemRepo() catalog.CatalogItemRepository
	// LedgerRepo returns the status ledger repository scoped to the current transaction
	LedgerRepo() catalog.StatusLedgerRepository
	// IncidentRepo returns the incident repository scoped to the current transaction
	IncidentRepo() catalog.IncidentRepository
}
