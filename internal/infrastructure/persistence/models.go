package persistence

import (
	"github.com/erp/invsync/internal/domain/billing"
	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/intake"
	"github.com/erp/invsync/internal/domain/replica"
	"github.com/erp/invsync/internal/domain/shared"
)

// Models returns every persisted model. Production schemas come from the SQL
// migrations; AutoMigrate over this list is for tests and local sqlite runs.
func Models() []any {
	return []any{
		&catalog.CatalogItem{},
		&catalog.StatusLedgerEntry{},
		&catalog.Incident{},
		&intake.Lot{},
		&intake.LotLine{},
		&intake.LineConfirmation{},
		&billing.Invoice{},
		&billing.InvoiceLine{},
		&replica.BranchReplica{},
		&replica.EmployeeReplica{},
		&shared.OutboxEntry{},
		&shared.DeadLetter{},
	}
}
