package catalog

import (
	"testing"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims surrounding whitespace", "  Toner A \t", "toner a"},
		{"folds ascii case", "ACME", "acme"},
		{"folds non-ascii case", "ÄRGER Filter", "ärger filter"},
		{"composes decomposed input", "A\u0308rger", "\u00e4rger"},
		{"blank stays blank", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestNewIdentityKey(t *testing.T) {
	t.Run("requires a part name", func(t *testing.T) {
		_, err := NewIdentityKey(Candidate{PartName: "  "})
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})

	t.Run("blank brand is absent", func(t *testing.T) {
		key, err := NewIdentityKey(Candidate{PartName: "Toner A", Brand: "  "})
		require.NoError(t, err)
		assert.Nil(t, key.Brand)
	})

	t.Run("nil uuid is absent", func(t *testing.T) {
		key, err := NewIdentityKey(Candidate{PartName: "Toner A", VendorID: uuidPtr(uuid.Nil)})
		require.NoError(t, err)
		assert.Nil(t, key.VendorID)
	})
}

func TestIdentityKey_Hash(t *testing.T) {
	vendor := uuid.New()

	a, err := NewIdentityKey(Candidate{PartName: " Toner A", Brand: "ACME", VendorID: uuidPtr(vendor)})
	require.NoError(t, err)
	b, err := NewIdentityKey(Candidate{PartName: "toner a ", Brand: "acme", VendorID: uuidPtr(vendor)})
	require.NoError(t, err)
	assert.Equal(t, a.Hash(), b.Hash(), "case and whitespace must not change the identity")

	noVendor, err := NewIdentityKey(Candidate{PartName: "Toner A", Brand: "Acme"})
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), noVendor.Hash())

	// an absent brand must not collide with a literal brand that looks like the marker
	noBrand, err := NewIdentityKey(Candidate{PartName: "Toner A"})
	require.NoError(t, err)
	tilde, err := NewIdentityKey(Candidate{PartName: "Toner A", Brand: "~"})
	require.NoError(t, err)
	assert.NotEqual(t, noBrand.Hash(), tilde.Hash())

	assert.Len(t, a.Hash(), 64)
	assert.Equal(t, "catalog:identity:"+a.Hash(), a.LockKey())
}

func TestIdentityKey_Predicate(t *testing.T) {
	vendor := uuid.New()
	key, err := NewIdentityKey(Candidate{PartName: "Toner A", VendorID: uuidPtr(vendor)})
	require.NoError(t, err)

	conds := key.Predicate().Conditions()
	require.Len(t, conds, 5)
	assert.Equal(t, Condition{Column: ColumnPartName, Value: "toner a"}, conds[0])
	assert.Equal(t, Condition{Column: ColumnBrand, IsNull: true}, conds[1])
	assert.Equal(t, Condition{Column: ColumnVendor, Value: vendor.String()}, conds[2])
	assert.Equal(t, Condition{Column: ColumnWarehouse, IsNull: true}, conds[3])
	assert.Equal(t, Condition{Column: ColumnModel, IsNull: true}, conds[4])
}
