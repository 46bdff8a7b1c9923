// Package credentials provides the secure credential store consumed by the
// session service: durable, access-controlled persistence for the single
// session token (the identity-provider UID) across process restarts.
package credentials

import (
	"context"
	"errors"
)

// ErrStoreUnavailable is wrapped by every failure of the underlying store.
// Callers match it with errors.Is.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// Store holds at most one opaque credential token.
type Store interface {
	// Get returns the stored token. ok is false when no credential is stored;
	// that is not an error.
	Get(ctx context.Context) (token string, ok bool, err error)

	// Set durably replaces the stored token.
	Set(ctx context.Context, token string) error

	// Delete removes the stored token. Deleting an absent token is a no-op.
	Delete(ctx context.Context) error
}
