package intake

import "context"

// Unlock releases a lock obtained from an IdentityLocker
type Unlock func(ctx context.Context) error

// IdentityLocker serializes catalog item creation per identity key across
// every instance of the service. The unique index on identity_hash stays the
// last line of defence when a lock expires early.
type IdentityLocker interface {
	// Lock blocks until key is held or ctx is done
	Lock(ctx context.Context, key string) (Unlock, error)
}
