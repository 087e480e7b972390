package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalized identity columns on catalog_items
const (
	ColumnPartName  = "part_name_norm"
	ColumnBrand     = "brand_norm"
	ColumnVendor    = "vendor_id"
	ColumnWarehouse = "warehouse_id"
	ColumnModel     = "model_id"
)

// identityHashVersion is mixed into the hash so a future change of the
// normalization rules can coexist with rows hashed under the old rules.
const identityHashVersion = "v1"

// Candidate is an identity as it arrives from a lot line or an operator
type Candidate struct {
	PartName    string     `json:"part_name"`
	Brand       string     `json:"brand,omitempty"`
	VendorID    *uuid.UUID `json:"vendor_id,omitempty"`
	WarehouseID *uuid.UUID `json:"warehouse_id,omitempty"`
	ModelID     *uuid.UUID `json:"model_id,omitempty"`
}

// IdentityKey is the normalized form of a Candidate. A nil dimension means
// the item explicitly has no value for it.
type IdentityKey struct {
	PartName    string
	Brand       *string
	VendorID    *uuid.UUID
	WarehouseID *uuid.UUID
	ModelID     *uuid.UUID
}

// NormalizeText folds case, applies NFC and trims surrounding whitespace.
// A fresh Caser is used per call because casers are not safe for concurrent use.
func NormalizeText(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// NewIdentityKey normalizes a candidate. The part name is mandatory; a blank
// brand is treated as absent.
func NewIdentityKey(c Candidate) (IdentityKey, error) {
	partName := NormalizeText(c.PartName)
	if partName == "" {
		return IdentityKey{}, shared.NewValidationError("IDENTITY_PART_NAME_REQUIRED", "part name cannot be empty")
	}
	if len(partName) > 200 {
		return IdentityKey{}, shared.NewValidationError("IDENTITY_PART_NAME_TOO_LONG", "part name cannot exceed 200 characters")
	}

	key := IdentityKey{
		PartName:    partName,
		VendorID:    nonNilUUID(c.VendorID),
		WarehouseID: nonNilUUID(c.WarehouseID),
		ModelID:     nonNilUUID(c.ModelID),
	}
	if brand := NormalizeText(c.Brand); brand != "" {
		key.Brand = &brand
	}
	return key, nil
}

// Hash returns the value stored in the unique identity_hash column. Absent
// dimensions hash to a marker distinct from every real value, so two items
// that both lack a vendor collide while the database treats NULLs as distinct.
func (k IdentityKey) Hash() string {
	parts := []string{
		identityHashVersion,
		"p=" + k.PartName,
		"b" + optionalString(k.Brand),
		"v" + optionalUUID(k.VendorID),
		"w" + optionalUUID(k.WarehouseID),
		"m" + optionalUUID(k.ModelID),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// LockKey is the distributed lock name that serializes creation for this identity
func (k IdentityKey) LockKey() string {
	return "catalog:identity:" + k.Hash()
}

// Predicate builds the lookup predicate for this key
func (k IdentityKey) Predicate() IdentityPredicate {
	return IdentityPredicate{
		conditions: []Condition{
			{Column: ColumnPartName, Value: k.PartName},
			stringCondition(ColumnBrand, k.Brand),
			uuidCondition(ColumnVendor, k.VendorID),
			uuidCondition(ColumnWarehouse, k.WarehouseID),
			uuidCondition(ColumnModel, k.ModelID),
		},
	}
}

func nonNilUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	v := *id
	return &v
}

func optionalString(s *string) string {
	if s == nil {
		return "~"
	}
	return "=" + *s
}

func optionalUUID(id *uuid.UUID) string {
	if id == nil {
		return "~"
	}
	return "=" + id.String()
}
