package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingIncidents struct {
	memoryTxRepos
	err error
}

func (r failingIncidents) FindOpen(context.Context, int) ([]catalog.Incident, error) {
	return nil, r.err
}

func (r failingIncidents) Resolve(context.Context, uuid.UUID) error {
	return r.err
}

func TestQueryService_GetItem(t *testing.T) {
	store := newMemoryCatalogStore()
	item := newTestCatalogItem(t, "oil filter")
	store.put(item)
	repos := memoryTxRepos{s: store}
	service := NewQueryService(repos, repos, zap.NewNop())

	resp, err := service.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, resp.ID)
	assert.Equal(t, "oil filter", resp.PartName)
	assert.Equal(t, string(catalog.ProductStatusUnknown), resp.Status)
	assert.Equal(t, item.IdentityHash, resp.IdentityHash)

	_, err = service.GetItem(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestQueryService_ListOpenIncidents(t *testing.T) {
	store := newMemoryCatalogStore()
	repos := memoryTxRepos{s: store}
	require.NoError(t, repos.Record(context.Background(),
		catalog.NewIncident(catalog.IncidentMissingProduct, uuid.NewString(), "event-1", "no such item")))
	service := NewQueryService(repos, repos, zap.NewNop())

	incidents, err := service.ListOpenIncidents(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "MISSING_PRODUCT", incidents[0].Kind)
	assert.Equal(t, "event-1", incidents[0].Source)
	assert.Nil(t, incidents[0].ResolvedAt)
}

func TestQueryService_StoreFailuresAreTransient(t *testing.T) {
	repos := memoryTxRepos{s: newMemoryCatalogStore()}
	incidents := failingIncidents{memoryTxRepos: repos, err: errors.New("connection reset")}
	service := NewQueryService(repos, incidents, zap.NewNop())

	_, err := service.ListOpenIncidents(context.Background(), 10)
	assert.True(t, shared.IsKind(err, shared.KindTransient))

	err = service.ResolveIncident(context.Background(), uuid.New())
	assert.True(t, shared.IsKind(err, shared.KindTransient))
}

func TestQueryService_ResolveUnknownIncident(t *testing.T) {
	repos := memoryTxRepos{s: newMemoryCatalogStore()}
	incidents := failingIncidents{memoryTxRepos: repos, err: shared.ErrNotFound}
	service := NewQueryService(repos, incidents, zap.NewNop())

	err := service.ResolveIncident(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
