package persistence

import (
	"testing"
	"time"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupSQLiteDB opens an in-memory database with the full schema.
// Every connection to :memory: is a separate database, so the pool holds one.
func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(sqlite.Open(":memory:"), &config.DatabaseConfig{MaxOpenConns: 1, MaxIdleConns: 1}, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.DB.AutoMigrate(Models()...))
	return db.DB
}

func newTestItem(t *testing.T, c catalog.Candidate) *catalog.CatalogItem {
	t.Helper()
	item, err := catalog.NewCatalogItem(&catalog.CreationApproval{
		ConfirmationID: uuid.New(),
		Candidate:      c,
		ApprovedBy:     "operator-1",
		ApprovedAt:     time.Now(),
	}, decimal.NewFromInt(10))
	require.NoError(t, err)
	return item
}
