package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fitsync-backend-go/internal/identity"
	"fitsync-backend-go/internal/models"
	"fitsync-backend-go/internal/profilestore"
)

// --- fakes ---

type fakeProvider struct {
	assertion *identity.Assertion
	err       error
	started   chan struct{} // closed when PerformSignIn is entered, if set
	release   chan struct{} // blocks PerformSignIn until closed, if set
}

func (f *fakeProvider) PerformSignIn(ctx context.Context, idToken string) (*identity.Assertion, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.assertion, nil
}

type fakeProfileStore struct {
	mu        sync.Mutex
	records   map[string]*models.UserProfile
	fetchErrs map[string]error
	upsertErr error
	fetchN    int
	upsertN   int
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{
		records:   make(map[string]*models.UserProfile),
		fetchErrs: make(map[string]error),
	}
}

func (f *fakeProfileStore) Upsert(ctx context.Context, p *models.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertN++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := *p
	f.records[p.ID] = &cp
	return nil
}

func (f *fakeProfileStore) FetchByID(ctx context.Context, id string) (*models.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchN++
	if err, ok := f.fetchErrs[id]; ok {
		return nil, err
	}
	p, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("profile %q: %w", id, profilestore.ErrRecordNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfileStore) Query(ctx context.Context, pred profilestore.Predicate, limit int) ([]*models.UserProfile, error) {
	return nil, nil
}

type fakeCredStore struct {
	mu      sync.Mutex
	token   string
	has     bool
	getErr  error
	setErr  error
	delErr  error
	deletes int
}

func (f *fakeCredStore) Get(ctx context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.token, f.has, nil
}

func (f *fakeCredStore) Set(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.token, f.has = token, true
	return nil
}

func (f *fakeCredStore) Delete(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.delErr != nil {
		return f.delErr
	}
	f.token, f.has = "", false
	return nil
}

func (f *fakeCredStore) stored() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.has
}

// --- helpers ---

func newTestService(t *testing.T, provider *fakeProvider, profiles *fakeProfileStore, creds *fakeCredStore) *sessionService {
	t.Helper()
	svc := NewSessionService(provider, profiles, creds, zap.NewNop()).(*sessionService)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func storedProfile(id string) *models.UserProfile {
	return &models.UserProfile{
		ID:                 id,
		Email:              "old@example.com",
		DisplayName:        "Old Name",
		CreatedAt:          time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		SubscriptionStatus: models.SubscriptionActive,
	}
}

// --- ResolveSession ---

func TestResolveSessionNoCredential(t *testing.T) {
	profiles := newFakeProfileStore()
	svc := newTestService(t, &fakeProvider{}, profiles, &fakeCredStore{})

	require.NoError(t, svc.ResolveSession(context.Background()))

	snap := svc.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.User)
	assert.Zero(t, profiles.fetchN, "no remote call without a stored credential")
}

func TestResolveSessionCredentialStoreError(t *testing.T) {
	cause := errors.New("keychain locked")
	creds := &fakeCredStore{getErr: cause}
	svc := newTestService(t, &fakeProvider{}, newFakeProfileStore(), creds)

	err := svc.ResolveSession(context.Background())
	require.ErrorIs(t, err, cause)
	assert.Equal(t, StateUnauthenticated, svc.Snapshot().State)
}

func TestResolveSessionSuccess(t *testing.T) {
	profiles := newFakeProfileStore()
	profiles.records["u1"] = storedProfile("u1")
	creds := &fakeCredStore{token: "u1", has: true}
	svc := newTestService(t, &fakeProvider{}, profiles, creds)

	require.NoError(t, svc.ResolveSession(context.Background()))

	snap := svc.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	require.NotNil(t, snap.User)
	assert.Equal(t, "u1", snap.User.ID)
}

func TestResolveSessionStaleCredentialPurged(t *testing.T) {
	// Credential X present, remote store has no record for X: fail closed
	// and clean up.
	creds := &fakeCredStore{token: "uX", has: true}
	svc := newTestService(t, &fakeProvider{}, newFakeProfileStore(), creds)

	err := svc.ResolveSession(context.Background())
	require.ErrorIs(t, err, profilestore.ErrRecordNotFound)

	assert.Equal(t, StateUnauthenticated, svc.Snapshot().State)
	_, has := creds.stored()
	assert.False(t, has, "stale credential must be purged")
}

func TestResolveSessionRemoteFaultPurgesCredential(t *testing.T) {
	profiles := newFakeProfileStore()
	profiles.fetchErrs["u1"] = &profilestore.FetchError{Err: errors.New("unavailable")}
	creds := &fakeCredStore{token: "u1", has: true}
	svc := newTestService(t, &fakeProvider{}, profiles, creds)

	err := svc.ResolveSession(context.Background())
	var fetchErr *profilestore.FetchError
	require.ErrorAs(t, err, &fetchErr)

	assert.Equal(t, StateUnauthenticated, svc.Snapshot().State)
	_, has := creds.stored()
	assert.False(t, has)
}

func TestResolveSignOutResolveEndsUnauthenticated(t *testing.T) {
	profiles := newFakeProfileStore()
	profiles.records["u1"] = storedProfile("u1")
	creds := &fakeCredStore{token: "u1", has: true}
	svc := newTestService(t, &fakeProvider{}, profiles, creds)
	ctx := context.Background()

	require.NoError(t, svc.ResolveSession(ctx))
	require.Equal(t, StateAuthenticated, svc.Snapshot().State)

	svc.SignOut()

	require.NoError(t, svc.ResolveSession(ctx))
	snap := svc.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.User)
}

// --- SignIn ---

func TestSignInProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("%w: user cancelled", identity.ErrProvider)}
	creds := &fakeCredStore{}
	svc := newTestService(t, provider, newFakeProfileStore(), creds)

	_, err := svc.SignIn(context.Background(), "tok")
	require.ErrorIs(t, err, identity.ErrProvider)

	assert.Equal(t, StateUnauthenticated, svc.Snapshot().State)
	_, has := creds.stored()
	assert.False(t, has)
}

func TestSignInFirstTimeDefaults(t *testing.T) {
	// Provider discloses neither email nor display name.
	provider := &fakeProvider{assertion: &identity.Assertion{ExternalID: "u1"}}
	profiles := newFakeProfileStore()
	creds := &fakeCredStore{}
	svc := newTestService(t, provider, profiles, creds)

	profile, err := svc.SignIn(context.Background(), "tok")
	require.NoError(t, err)

	assert.Equal(t, "u1", profile.ID)
	assert.Equal(t, models.PlaceholderDisplayName, profile.DisplayName)
	assert.Empty(t, profile.Email)
	assert.Equal(t, models.SubscriptionNone, profile.SubscriptionStatus)

	snap := svc.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	require.NotNil(t, snap.User)
	assert.Equal(t, models.PlaceholderDisplayName, snap.User.DisplayName)

	token, has := creds.stored()
	assert.True(t, has)
	assert.Equal(t, "u1", token)
}

func TestSignInReturningUserPreservesCreatedAt(t *testing.T) {
	provider := &fakeProvider{assertion: &identity.Assertion{
		ExternalID:  "u1",
		Email:       "new@example.com",
		DisplayName: "New Name",
	}}
	profiles := newFakeProfileStore()
	existing := storedProfile("u1")
	profiles.records["u1"] = existing
	svc := newTestService(t, provider, profiles, &fakeCredStore{})

	profile, err := svc.SignIn(context.Background(), "tok")
	require.NoError(t, err)

	assert.Equal(t, existing.CreatedAt, profile.CreatedAt, "CreatedAt is set once at first creation")
	assert.Equal(t, models.SubscriptionActive, profile.SubscriptionStatus, "subscription survives re-sign-in")
	assert.Equal(t, "new@example.com", profile.Email)
	assert.Equal(t, "New Name", profile.DisplayName)
}

func TestSignInReplacesMalformedRecord(t *testing.T) {
	provider := &fakeProvider{assertion: &identity.Assertion{ExternalID: "u1"}}
	profiles := newFakeProfileStore()
	profiles.fetchErrs["u1"] = fmt.Errorf("profile %q: displayName missing: %w", "u1", profilestore.ErrMalformedRecord)
	svc := newTestService(t, provider, profiles, &fakeCredStore{})

	profile, err := svc.SignIn(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, models.PlaceholderDisplayName, profile.DisplayName)
	assert.Equal(t, StateAuthenticated, svc.Snapshot().State)
}

func TestSignInPrefetchFaultAborts(t *testing.T) {
	provider := &fakeProvider{assertion: &identity.Assertion{ExternalID: "u1"}}
	profiles := newFakeProfileStore()
	profiles.fetchErrs["u1"] = &profilestore.FetchError{Err: errors.New("unavailable")}
	creds := &fakeCredStore{}
	svc := newTestService(t, provider, profiles, creds)

	_, err := svc.SignIn(context.Background(), "tok")
	var fetchErr *profilestore.FetchError
	require.ErrorAs(t, err, &fetchErr)

	assert.Equal(t, StateUnauthenticated, svc.Snapshot().State)
	assert.Zero(t, profiles.upsertN)
	_, has := creds.stored()
	assert.False(t, has)
}

func TestSignInUpsertFailureLeavesCredentialUntouched(t *testing.T) {
	provider := &fakeProvider{assertion: &identity.Assertion{ExternalID: "u1"}}
	profiles := newFakeProfileStore()
	profiles.upsertErr = &profilestore.SaveError{Err: errors.New("quota exceeded")}
	creds := &fakeCredStore{}
	svc := newTestService(t, provider, profiles, creds)

	_, err := svc.SignIn(context.Background(), "tok")
	var saveErr *profilestore.SaveError
	require.ErrorAs(t, err, &saveErr)

	assert.Equal(t, StateUnauthenticated, svc.Snapshot().State)
	_, has := creds.stored()
	assert.False(t, has, "no orphaned local credential")
}

func TestSignInCredentialWriteFailureFailsClosed(t *testing.T) {
	provider := &fakeProvider{assertion: &identity.Assertion{ExternalID: "u1"}}
	profiles := newFakeProfileStore()
	creds := &fakeCredStore{setErr: errors.New("disk full")}
	svc := newTestService(t, provider, profiles, creds)

	_, err := svc.SignIn(context.Background(), "tok")
	require.Error(t, err)

	assert.Equal(t, StateUnauthenticated, svc.Snapshot().State)
	_, has := creds.stored()
	assert.False(t, has)
}

// --- SignOut ---

func TestSignOutAlwaysResets(t *testing.T) {
	// Even a failing credential store cannot make SignOut fail.
	profiles := newFakeProfileStore()
	profiles.records["u1"] = storedProfile("u1")
	creds := &fakeCredStore{token: "u1", has: true, delErr: errors.New("keychain locked")}
	svc := newTestService(t, &fakeProvider{}, profiles, creds)

	require.NoError(t, svc.ResolveSession(context.Background()))
	svc.SignOut()

	snap := svc.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.User)
	assert.Equal(t, 1, creds.deletes)
}

func TestSignOutFromAnyState(t *testing.T) {
	svc := newTestService(t, &fakeProvider{}, newFakeProfileStore(), &fakeCredStore{})

	// From unknown, twice in a row.
	svc.SignOut()
	svc.SignOut()
	assert.Equal(t, StateUnauthenticated, svc.Snapshot().State)
}

// --- concurrency & observation ---

func TestSecondOperationWhileLoadingIsRejected(t *testing.T) {
	provider := &fakeProvider{
		assertion: &identity.Assertion{ExternalID: "u1"},
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	svc := newTestService(t, provider, newFakeProfileStore(), &fakeCredStore{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.SignIn(context.Background(), "tok")
		done <- err
	}()

	<-provider.started
	assert.Equal(t, StateLoading, svc.Snapshot().State)

	err := svc.ResolveSession(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = svc.SignIn(context.Background(), "tok2")
	assert.ErrorIs(t, err, ErrBusy)

	close(provider.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateAuthenticated, svc.Snapshot().State)
}

func TestInitialStateIsUnknown(t *testing.T) {
	svc := newTestService(t, &fakeProvider{}, newFakeProfileStore(), &fakeCredStore{})

	snap := svc.Snapshot()
	assert.Equal(t, StateUnknown, snap.State)
	assert.Nil(t, snap.User)
}

func TestSubscribeObservesTransitions(t *testing.T) {
	profiles := newFakeProfileStore()
	profiles.records["u1"] = storedProfile("u1")
	creds := &fakeCredStore{token: "u1", has: true}
	svc := newTestService(t, &fakeProvider{}, profiles, creds)

	ch := svc.Subscribe()
	snap := <-ch
	assert.Equal(t, StateUnknown, snap.State)

	require.NoError(t, svc.ResolveSession(context.Background()))

	// Latest-wins: the loading snapshot may have been replaced already.
	snap = <-ch
	assert.Equal(t, StateAuthenticated, snap.State)
	require.NotNil(t, snap.User)
	assert.Equal(t, "u1", snap.User.ID)
}

func TestSnapshotReturnsCopy(t *testing.T) {
	profiles := newFakeProfileStore()
	profiles.records["u1"] = storedProfile("u1")
	creds := &fakeCredStore{token: "u1", has: true}
	svc := newTestService(t, &fakeProvider{}, profiles, creds)

	require.NoError(t, svc.ResolveSession(context.Background()))

	snap := svc.Snapshot()
	snap.User.DisplayName = "mutated"
	assert.Equal(t, "Old Name", svc.Snapshot().User.DisplayName)
}

func TestAuthStateString(t *testing.T) {
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "invalid", AuthState(99).String())
}
