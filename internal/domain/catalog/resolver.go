package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/erp/invsync/internal/domain/shared"
)

// ResolutionKind is the outcome of an identity lookup
type ResolutionKind string

const (
	ResolutionMatch   ResolutionKind = "MATCH"
	ResolutionNoMatch ResolutionKind = "NO_MATCH"
)

// Resolution is the result of Resolve. Item is set only for a match.
type Resolution struct {
	Kind ResolutionKind
	Item *CatalogItem
	Key  IdentityKey
}

// IsMatch reports whether an existing item was found
func (r Resolution) IsMatch() bool {
	return r.Kind == ResolutionMatch
}

// IdentityResolver maps candidates to existing catalog items.
// It never creates anything.
type IdentityResolver struct {
	finder ItemFinder
}

// NewIdentityResolver creates a new IdentityResolver
func NewIdentityResolver(finder ItemFinder) *IdentityResolver {
	return &IdentityResolver{finder: finder}
}

// Resolve looks the candidate up across all five identity dimensions.
// More than one match is a consistency violation, never "pick the first".
func (r *IdentityResolver) Resolve(ctx context.Context, c Candidate) (Resolution, error) {
	key, err := NewIdentityKey(c)
	if err != nil {
		return Resolution{}, err
	}

	items, err := r.finder.FindByPredicate(ctx, key.Predicate(), 2)
	if err != nil {
		if shared.KindOf(err) == shared.KindTransient {
			return Resolution{}, shared.NewTransientError("identity lookup failed", err)
		}
		return Resolution{}, err
	}

	switch len(items) {
	case 0:
		return Resolution{Kind: ResolutionNoMatch, Key: key}, nil
	case 1:
		item := items[0]
		return Resolution{Kind: ResolutionMatch, Item: &item, Key: key}, nil
	default:
		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID.String())
		}
		return Resolution{Key: key}, shared.NewConsistencyViolation(
			"AMBIGUOUS_IDENTITY",
			fmt.Sprintf("identity %s matches multiple catalog items: %s", key.Hash(), strings.Join(ids, ", ")),
		)
	}
}
