package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryFinder struct {
	items []CatalogItem
	err   error
}

func (f *memoryFinder) FindByPredicate(_ context.Context, p IdentityPredicate, limit int) ([]CatalogItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []CatalogItem
	for i := range f.items {
		if p.Matches(&f.items[i]) {
			out = append(out, f.items[i])
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func newTestItem(t *testing.T, c Candidate) CatalogItem {
	t.Helper()
	item, err := NewCatalogItem(&CreationApproval{
		ConfirmationID: uuid.New(),
		Candidate:      c,
		ApprovedBy:     "operator-1",
		ApprovedAt:     time.Now(),
	}, decimal.NewFromInt(10))
	require.NoError(t, err)
	return *item
}

func TestIdentityResolver_Resolve(t *testing.T) {
	vendor := uuid.New()
	warehouse := uuid.New()
	acme := newTestItem(t, Candidate{PartName: "Toner A", Brand: "Acme", VendorID: uuidPtr(vendor)})
	finder := &memoryFinder{items: []CatalogItem{acme}}
	resolver := NewIdentityResolver(finder)
	ctx := context.Background()

	t.Run("same identity with different case and whitespace matches", func(t *testing.T) {
		res, err := resolver.Resolve(ctx, Candidate{PartName: "  toner a ", Brand: "ACME", VendorID: uuidPtr(vendor)})
		require.NoError(t, err)
		assert.True(t, res.IsMatch())
		assert.Equal(t, acme.ID, res.Item.ID)
	})

	t.Run("different brand does not match", func(t *testing.T) {
		res, err := resolver.Resolve(ctx, Candidate{PartName: "Toner A", Brand: "Generic", VendorID: uuidPtr(vendor)})
		require.NoError(t, err)
		assert.Equal(t, ResolutionNoMatch, res.Kind)
		assert.Nil(t, res.Item)
	})

	t.Run("concrete warehouse does not match an item without one", func(t *testing.T) {
		res, err := resolver.Resolve(ctx, Candidate{PartName: "Toner A", Brand: "Acme", VendorID: uuidPtr(vendor), WarehouseID: uuidPtr(warehouse)})
		require.NoError(t, err)
		assert.False(t, res.IsMatch())
	})

	t.Run("absent vendor means none, not any", func(t *testing.T) {
		res, err := resolver.Resolve(ctx, Candidate{PartName: "Toner A", Brand: "Acme"})
		require.NoError(t, err)
		assert.False(t, res.IsMatch())
	})

	t.Run("invalid candidate is a validation error", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, Candidate{})
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})
}

func TestIdentityResolver_AmbiguousIdentity(t *testing.T) {
	c := Candidate{PartName: "Drum Unit", Brand: "Acme"}
	first := newTestItem(t, c)
	second := newTestItem(t, c)
	resolver := NewIdentityResolver(&memoryFinder{items: []CatalogItem{first, second}})

	_, err := resolver.Resolve(context.Background(), c)
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindConsistency))
	assert.Contains(t, err.Error(), first.ID.String())
	assert.Contains(t, err.Error(), second.ID.String())
}

func TestIdentityResolver_LookupFailureIsTransient(t *testing.T) {
	resolver := NewIdentityResolver(&memoryFinder{err: errors.New("connection reset")})

	_, err := resolver.Resolve(context.Background(), Candidate{PartName: "Toner A"})
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindTransient))
}

func TestIdentityPredicate_Matches(t *testing.T) {
	warehouse := uuid.New()
	withWarehouse := newTestItem(t, Candidate{PartName: "Belt", WarehouseID: uuidPtr(warehouse)})
	without := newTestItem(t, Candidate{PartName: "Belt"})

	key, err := NewIdentityKey(Candidate{PartName: "belt"})
	require.NoError(t, err)
	assert.False(t, key.Predicate().Matches(&withWarehouse))
	assert.True(t, key.Predicate().Matches(&without))
	assert.False(t, IdentityPredicate{}.Matches(&without))
	assert.False(t, key.Predicate().Matches(nil))
}
