package replica

import (
	"context"
)

// Repository writes change sets to replica tables
type Repository interface {
	// Apply writes exactly the columns in cs for the entity, inserting the row
	// if it does not exist yet
	Apply(ctx context.Context, schema Schema, cs ChangeSet) error
}
