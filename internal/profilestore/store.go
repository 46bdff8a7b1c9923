// Package profilestore maps user profiles to and from remote Firestore
// documents. It is a stateless layer: point lookups and upserts are atomic
// per record, and bulk queries report per-record failures independently.
package profilestore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fitsync-backend-go/internal/models"
)

const profilesCollection = "profiles"

// DefaultQueryLimit applies when a caller passes a non-positive limit.
const DefaultQueryLimit = 100

// fetchConcurrency bounds the per-record fan-out of Query.
const fetchConcurrency = 8

// Predicate is a single field filter applied to a bulk query. A zero
// Predicate matches every profile.
type Predicate struct {
	Field string
	Op    string
	Value interface{}
}

// BySubscriptionStatus filters profiles on their subscription status.
func BySubscriptionStatus(s models.SubscriptionStatus) Predicate {
	return Predicate{Field: "subscriptionStatus", Op: "==", Value: string(s)}
}

// Store is the remote profile store boundary consumed by the session service.
type Store interface {
	// Upsert writes the profile document keyed by profile.ID, replacing any
	// existing document at that key. Idempotent on ID.
	Upsert(ctx context.Context, profile *models.UserProfile) error

	// FetchByID performs a point lookup. Returns ErrRecordNotFound when no
	// document exists at the key, ErrMalformedRecord when required fields are
	// absent or mis-shaped, and a FetchError on any other remote fault.
	FetchByID(ctx context.Context, id string) (*models.UserProfile, error)

	// Query returns up to limit profiles matching pred, newest-created first
	// with ID as tie-break. Per-record failures do not abort the operation:
	// if at least one record parses, the successes are returned and failures
	// are logged; if every record fails, a PartialFailureError is returned.
	Query(ctx context.Context, pred Predicate, limit int) ([]*models.UserProfile, error)
}

// FirestoreStore implements Store against a Firestore collection.
type FirestoreStore struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreStore creates a FirestoreStore over the given client.
func NewFirestoreStore(client *firestore.Client, logger *zap.Logger) *FirestoreStore {
	return &FirestoreStore{client: client, logger: logger}
}

func (s *FirestoreStore) Upsert(ctx context.Context, profile *models.UserProfile) error {
	if profile.ID == "" {
		return &SaveError{Err: fmt.Errorf("profile ID is empty")}
	}
	// Full-document replace, not a field-level merge.
	if _, err := s.client.Collection(profilesCollection).Doc(profile.ID).Set(ctx, profile); err != nil {
		return &SaveError{Err: err}
	}
	return nil
}

func (s *FirestoreStore) FetchByID(ctx context.Context, id string) (*models.UserProfile, error) {
	if id == "" {
		return nil, &FetchError{Err: fmt.Errorf("profile ID is empty")}
	}
	snap, err := s.client.Collection(profilesCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("profile %q: %w", id, ErrRecordNotFound)
		}
		return nil, &FetchError{Err: err}
	}
	return profileFromDoc(snap.Ref.ID, snap.Data())
}

func (s *FirestoreStore) Query(ctx context.Context, pred Predicate, limit int) ([]*models.UserProfile, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	q := s.client.Collection(profilesCollection).Query
	if pred.Field != "" {
		q = q.Where(pred.Field, pred.Op, pred.Value)
	}
	q = q.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(limit)

	// Candidate pass fetches keys only; each record is then fetched and
	// parsed independently so one bad record cannot sink the listing.
	iter := q.Select().Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &FetchError{Err: fmt.Errorf("iterate profile candidates: %w", err)}
		}
		ids = append(ids, doc.Ref.ID)
	}
	if len(ids) == 0 {
		return []*models.UserProfile{}, nil
	}

	profiles := make([]*models.UserProfile, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(fetchConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			profiles[i], errs[i] = s.FetchByID(ctx, id)
			return nil
		})
	}
	// Aggregation happens only after every per-record fetch has settled.
	_ = g.Wait()

	return s.settleQuery(profiles, errs)
}

// settleQuery applies the partial-failure policy to the settled per-record
// outcomes: if at least one record succeeded, the successes are returned
// sorted and the failures logged; if every record failed, the whole call
// fails with a PartialFailureError carrying them all.
func (s *FirestoreStore) settleQuery(profiles []*models.UserProfile, errs []error) ([]*models.UserProfile, error) {
	results, failures := partitionResults(profiles, errs)
	if len(failures) > 0 {
		if len(results) == 0 {
			return nil, &PartialFailureError{Errors: failures}
		}
		for _, err := range failures {
			s.logger.Warn("profile query dropped record", zap.Error(err))
		}
	}
	sortProfiles(results)
	return results, nil
}

// partitionResults splits the settled per-record outcomes into successes and
// failures.
func partitionResults(profiles []*models.UserProfile, errs []error) ([]*models.UserProfile, []error) {
	results := make([]*models.UserProfile, 0, len(profiles))
	var failures []error
	for i := range profiles {
		if errs[i] != nil {
			failures = append(failures, errs[i])
			continue
		}
		results = append(results, profiles[i])
	}
	return results, failures
}

// sortProfiles orders newest-created first, with ID ascending as tie-break so
// pagination is deterministic for equal timestamps.
func sortProfiles(profiles []*models.UserProfile) {
	sort.Slice(profiles, func(i, j int) bool {
		if !profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].CreatedAt.After(profiles[j].CreatedAt)
		}
		return profiles[i].ID < profiles[j].ID
	})
}

// profileFromDoc validates and maps a raw Firestore document into a
// UserProfile. displayName and createdAt are required; an absent or
// mis-shaped value yields ErrMalformedRecord rather than a partial profile.
// An unknown subscriptionStatus degrades to "none".
func profileFromDoc(id string, data map[string]interface{}) (*models.UserProfile, error) {
	displayName, ok := data["displayName"].(string)
	if !ok || displayName == "" {
		return nil, fmt.Errorf("profile %q: displayName missing or invalid: %w", id, ErrMalformedRecord)
	}
	createdAt, ok := data["createdAt"].(time.Time)
	if !ok {
		return nil, fmt.Errorf("profile %q: createdAt missing or invalid: %w", id, ErrMalformedRecord)
	}

	profile := &models.UserProfile{
		ID:          id,
		DisplayName: displayName,
		CreatedAt:   createdAt,
	}
	if email, ok := data["email"].(string); ok {
		profile.Email = email
	}
	raw, _ := data["subscriptionStatus"].(string)
	profile.SubscriptionStatus = models.ParseSubscriptionStatus(raw)

	return profile, nil
}
