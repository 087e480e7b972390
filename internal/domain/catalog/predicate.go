package catalog

import "github.com/google/uuid"

// Condition is one dimension of an identity lookup. IsNull conditions must be
// rendered as "column IS NULL"; an equality against NULL never matches in SQL.
type Condition struct {
	Column string
	Value  string
	IsNull bool
}

// IdentityPredicate is the full five-dimension lookup for an identity key.
// Every dimension is always present: a missing value narrows to "none" and
// never widens to "any".
type IdentityPredicate struct {
	conditions []Condition
}

// Conditions returns the conditions in column order
func (p IdentityPredicate) Conditions() []Condition {
	out := make([]Condition, len(p.conditions))
	copy(out, p.conditions)
	return out
}

// IsZero reports whether the predicate was built from an IdentityKey
func (p IdentityPredicate) IsZero() bool {
	return len(p.conditions) == 0
}

// Matches evaluates the predicate against an item in memory with the same
// semantics the SQL rendering has.
func (p IdentityPredicate) Matches(item *CatalogItem) bool {
	if item == nil || p.IsZero() {
		return false
	}
	for _, c := range p.conditions {
		value, present := item.identityColumn(c.Column)
		if c.IsNull {
			if present {
				return false
			}
			continue
		}
		if !present || value != c.Value {
			return false
		}
	}
	return true
}

func stringCondition(column string, v *string) Condition {
	if v == nil {
		return Condition{Column: column, IsNull: true}
	}
	return Condition{Column: column, Value: *v}
}

func uuidCondition(column string, id *uuid.UUID) Condition {
	if id == nil {
		return Condition{Column: column, IsNull: true}
	}
	return Condition{Column: column, Value: id.String()}
}
