package identity

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
)

// FirebaseProvider verifies Firebase ID tokens minted by the client-side
// sign-in ceremony and extracts the identity assertion from the token claims.
type FirebaseProvider struct {
	authClient *auth.Client
	logger     *zap.Logger
}

// NewFirebaseProvider creates a provider backed by the given Firebase Auth client.
func NewFirebaseProvider(authClient *auth.Client, logger *zap.Logger) *FirebaseProvider {
	return &FirebaseProvider{authClient: authClient, logger: logger}
}

func (p *FirebaseProvider) PerformSignIn(ctx context.Context, idToken string) (*Assertion, error) {
	if idToken == "" {
		return nil, fmt.Errorf("%w: empty id token", ErrProvider)
	}

	token, err := p.authClient.VerifyIDToken(ctx, idToken)
	if err != nil {
		p.logger.Warn("id token verification failed", zap.Error(err))
		return nil, fmt.Errorf("%w: verify id token: %w", ErrProvider, err)
	}

	assertion := &Assertion{ExternalID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		assertion.Email = email
	}
	if name, ok := token.Claims["name"].(string); ok {
		assertion.DisplayName = name
	}
	return assertion, nil
}
