// Package core owns the authentication session state machine. It composes
// the secure credential store, the identity provider, and the remote profile
// store, and is the only writer of the session state and the cached profile.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"fitsync-backend-go/internal/credentials"
	"fitsync-backend-go/internal/identity"
	"fitsync-backend-go/internal/models"
	"fitsync-backend-go/internal/profilestore"
)

// Snapshot is a read-only view of the session at a point in time. User is nil
// unless State is StateAuthenticated.
type Snapshot struct {
	State AuthState
	User  *models.UserProfile
}

// SessionService is the authentication orchestrator. At most one
// state-changing operation (ResolveSession, SignIn) may be in flight per
// instance; a concurrent one fails fast with ErrBusy.
type SessionService interface {
	// ResolveSession restores a previous session from the stored credential.
	// Idempotent and safe to call at startup. Any failure to resolve a stored
	// credential purges it and settles on StateUnauthenticated (fail closed);
	// the underlying error is propagated to the caller.
	ResolveSession(ctx context.Context) error

	// SignIn completes the sign-in ceremony with the provider-issued ID
	// token, reconciles the profile with the remote store, and only then
	// persists the local credential. Errors propagate unchanged; on any
	// failure the state settles on StateUnauthenticated and no credential is
	// written.
	SignIn(ctx context.Context, idToken string) (*models.UserProfile, error)

	// SignOut purges the local credential and resets the session. It is
	// synchronous and cannot fail.
	SignOut()

	// Snapshot returns the current state and cached profile.
	Snapshot() Snapshot

	// Subscribe returns a channel receiving session snapshots, starting with
	// the current one. Delivery is latest-wins: a slow receiver observes the
	// newest snapshot, not every intermediate one.
	Subscribe() <-chan Snapshot
}

type sessionService struct {
	provider identity.Provider
	profiles profilestore.Store
	creds    credentials.Store
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	inFlight    bool
	state       AuthState
	currentUser *models.UserProfile
	subscribers []chan Snapshot
}

// NewSessionService creates a session service in StateUnknown.
func NewSessionService(
	provider identity.Provider,
	profiles profilestore.Store,
	creds credentials.Store,
	logger *zap.Logger,
) SessionService {
	return &sessionService{
		provider: provider,
		profiles: profiles,
		creds:    creds,
		logger:   logger,
		now:      time.Now,
		state:    StateUnknown,
	}
}

func (s *sessionService) ResolveSession(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}

	token, ok, err := s.creds.Get(ctx)
	if err != nil {
		s.finish(StateUnauthenticated, nil)
		return fmt.Errorf("read credential: %w", err)
	}
	if !ok {
		// No plausible session, so no remote call is made.
		s.finish(StateUnauthenticated, nil)
		return nil
	}

	profile, err := s.profiles.FetchByID(ctx, token)
	if err != nil {
		// A credential that cannot be resolved remotely is treated as stale
		// or revoked, whatever the cause: purge it and fail closed.
		if delErr := s.creds.Delete(ctx); delErr != nil {
			s.logger.Warn("failed to purge unresolvable credential", zap.Error(delErr))
		}
		s.finish(StateUnauthenticated, nil)
		return err
	}

	s.finish(StateAuthenticated, profile)
	return nil
}

func (s *sessionService) SignIn(ctx context.Context, idToken string) (*models.UserProfile, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}

	assertion, err := s.provider.PerformSignIn(ctx, idToken)
	if err != nil {
		s.finish(StateUnauthenticated, nil)
		return nil, err
	}

	profile := profileFromAssertion(assertion, s.now())

	// CreatedAt is set once, at first creation. For a returning user the
	// stored value is preserved, as is the subscription status the identity
	// assertion knows nothing about. A malformed existing record is replaced
	// wholesale; leaving it in place would lock the user out for good.
	existing, err := s.profiles.FetchByID(ctx, assertion.ExternalID)
	switch {
	case err == nil:
		profile.CreatedAt = existing.CreatedAt
		profile.SubscriptionStatus = existing.SubscriptionStatus
	case errors.Is(err, profilestore.ErrRecordNotFound):
		// First sign-in.
	case errors.Is(err, profilestore.ErrMalformedRecord):
		s.logger.Warn("replacing malformed profile record on sign-in",
			zap.String("userID", assertion.ExternalID), zap.Error(err))
	default:
		s.finish(StateUnauthenticated, nil)
		return nil, err
	}

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		// The local credential is never written for a profile that failed to
		// reach the remote store.
		s.finish(StateUnauthenticated, nil)
		return nil, err
	}

	if err := s.creds.Set(ctx, profile.ID); err != nil {
		if delErr := s.creds.Delete(ctx); delErr != nil {
			s.logger.Warn("failed to clean up credential after write failure", zap.Error(delErr))
		}
		s.finish(StateUnauthenticated, nil)
		return nil, fmt.Errorf("persist credential: %w", err)
	}

	s.finish(StateAuthenticated, profile)
	return profile, nil
}

func (s *sessionService) SignOut() {
	if err := s.creds.Delete(context.Background()); err != nil {
		s.logger.Warn("failed to purge credential on sign-out", zap.Error(err))
	}
	s.mu.Lock()
	s.state = StateUnauthenticated
	s.currentUser = nil
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *sessionService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *sessionService) Subscribe() <-chan Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Snapshot, 1)
	ch <- s.snapshotLocked()
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// begin marks a state-changing operation as in flight and enters
// StateLoading. It fails fast with ErrBusy instead of queueing.
func (s *sessionService) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrBusy
	}
	s.inFlight = true
	s.state = StateLoading
	s.notifyLocked()
	return nil
}

// finish settles the in-flight operation on a terminal-per-attempt state.
func (s *sessionService) finish(state AuthState, user *models.UserProfile) {
	s.mu.Lock()
	s.inFlight = false
	s.state = state
	s.currentUser = user
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *sessionService) snapshotLocked() Snapshot {
	snap := Snapshot{State: s.state}
	if s.currentUser != nil {
		user := *s.currentUser
		snap.User = &user
	}
	return snap
}

// notifyLocked pushes the current snapshot to every subscriber. Channels are
// buffered with capacity one; a stale undelivered snapshot is dropped so the
// send can never block the orchestrator.
func (s *sessionService) notifyLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// profileFromAssertion builds the profile a fresh sign-in would create:
// placeholder display name when the provider withheld one, CreatedAt stamped
// now, and no subscription.
func profileFromAssertion(a *identity.Assertion, now time.Time) *models.UserProfile {
	displayName := a.DisplayName
	if displayName == "" {
		displayName = models.PlaceholderDisplayName
	}
	return &models.UserProfile{
		ID:                 a.ExternalID,
		Email:              a.Email,
		DisplayName:        displayName,
		CreatedAt:          now.UTC(),
		SubscriptionStatus: models.SubscriptionNone,
	}
}
