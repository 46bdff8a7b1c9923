// Package identity defines the identity-provider boundary: the interactive
// sign-in ceremony happens on the device, and this core receives its output
// (a provider-issued ID token) to verify and turn into an identity assertion.
package identity

import (
	"context"
	"errors"
)

// ErrProvider is wrapped by every sign-in ceremony failure (cancellation,
// network fault, malformed or expired token). Callers match it with errors.Is.
var ErrProvider = errors.New("identity provider error")

// Assertion is the verified identity claim produced by a successful ceremony.
// Email and DisplayName are empty when the provider withheld them.
type Assertion struct {
	ExternalID  string
	Email       string
	DisplayName string
}

// Provider completes the one-shot sign-in ceremony. PerformSignIn resolves
// exactly once per call: either a verified assertion or an error, never both.
type Provider interface {
	PerformSignIn(ctx context.Context, idToken string) (*Assertion, error)
}
