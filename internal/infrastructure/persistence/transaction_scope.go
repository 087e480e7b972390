package persistence

import (
	"context"

	appbilling "github.com/erp/invsync/internal/application/billing"
	appcatalog "github.com/erp/invsync/internal/application/catalog"
	appintake "github.com/erp/invsync/internal/application/intake"
	"github.com/erp/invsync/internal/domain/billing"
	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/intake"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/event"
	"gorm.io/gorm"
)

// GormTransactionScope runs application work in one GORM transaction.
// Events written through Outbox() commit or roll back with the state change.
type GormTransactionScope struct {
	db     *gorm.DB
	outbox *event.OutboxPublisher
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB, outbox *event.OutboxPublisher) *GormTransactionScope {
	return &GormTransactionScope{db: db, outbox: outbox}
}

func (s *GormTransactionScope) run(ctx context.Context, fn func(repos *gormTransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, outbox: s.outbox})
	})
}

// IntakeScope adapts the scope to the intake service
func (s *GormTransactionScope) IntakeScope() *IntakeTransactionScope {
	return &IntakeTransactionScope{s}
}

// BillingScope adapts the scope to the invoice service
func (s *GormTransactionScope) BillingScope() *BillingTransactionScope {
	return &BillingTransactionScope{s}
}

// CatalogScope adapts the scope to the status update consumer
func (s *GormTransactionScope) CatalogScope() *CatalogTransactionScope {
	return &CatalogTransactionScope{s}
}

// IntakeTransactionScope implements intake.TransactionScope
type IntakeTransactionScope struct{ *GormTransactionScope }

// Execute runs fn within a database transaction
func (s *IntakeTransactionScope) Execute(ctx context.Context, fn func(repos appintake.TransactionalRepositories) error) error {
	return s.run(ctx, func(repos *gormTransactionalRepositories) error { return fn(repos) })
}

// BillingTransactionScope implements billing.TransactionScope
type BillingTransactionScope struct{ *GormTransactionScope }

// Execute runs fn within a database transaction
func (s *BillingTransactionScope) Execute(ctx context.Context, fn func(repos appbilling.TransactionalRepositories) error) error {
	return s.run(ctx, func(repos *gormTransactionalRepositories) error { return fn(repos) })
}

// CatalogTransactionScope implements catalog.TransactionScope
type CatalogTransactionScope struct{ *GormTransactionScope }

// Execute runs fn within a database transaction
func (s *CatalogTransactionScope) Execute(ctx context.Context, fn func(repos appcatalog.TransactionalRepositories) error) error {
	return s.run(ctx, func(repos *gormTransactionalRepositories) error { return fn(repos) })
}

// gormTransactionalRepositories provides access to all repositories within a transaction
type gormTransactionalRepositories struct {
	tx     *gorm.DB
	outbox *event.OutboxPublisher
}

// LotRepo returns the lot repository scoped to the current transaction
func (r *gormTransactionalRepositories) LotRepo() intake.LotRepository {
	return NewGormLotRepository(r.tx)
}

// ConfirmationRepo returns the confirmation repository scoped to the current transaction
func (r *gormTransactionalRepositories) ConfirmationRepo() intake.ConfirmationRepository {
	return NewGormConfirmationRepository(r.tx)
}

// CatalogItemRepo returns the catalog item repository scoped to the current transaction
func (r *gormTransactionalRepositories) CatalogItemRepo() catalog.CatalogItemRepository {
	return NewGormCatalogItemRepository(r.tx)
}

// LedgerRepo returns the status ledger repository scoped to the current transaction
func (r *gormTransactionalRepositories) LedgerRepo() catalog.StatusLedgerRepository {
	return NewGormStatusLedgerRepository(r.tx)
}

// IncidentRepo returns the incident repository scoped to the current transaction
func (r *gormTransactionalRepositories) IncidentRepo() catalog.IncidentRepository {
	return NewGormIncidentRepository(r.tx)
}

// InvoiceRepo returns the invoice repository scoped to the current transaction
func (r *gormTransactionalRepositories) InvoiceRepo() billing.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx)
}

// Outbox returns a writer that stores events in the current transaction
func (r *gormTransactionalRepositories) Outbox() shared.EventWriter {
	return txEventWriter{tx: r.tx, outbox: r.outbox}
}

type txEventWriter struct {
	tx     *gorm.DB
	outbox *event.OutboxPublisher
}

func (w txEventWriter) Write(ctx context.Context, events ...shared.DomainEvent) error {
	return w.outbox.PublishWithTx(ctx, w.tx, events...)
}

var (
	_ appintake.TransactionScope  = (*IntakeTransactionScope)(nil)
	_ appbilling.TransactionScope = (*BillingTransactionScope)(nil)
	_ appcatalog.TransactionScope = (*CatalogTransactionScope)(nil)

	_ appintake.TransactionalRepositories  = (*gormTransactionalRepositories)(nil)
	_ appbilling.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
	_ appcatalog.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
