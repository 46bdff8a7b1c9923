package profilestore

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound indicates a point lookup found no document at the key.
	ErrRecordNotFound = errors.New("profile record not found")

	// ErrMalformedRecord indicates a document exists but its required fields
	// are absent or have the wrong shape. A partially populated profile is
	// never returned.
	ErrMalformedRecord = errors.New("malformed profile record")
)

// SaveError wraps the underlying transport or store fault of a failed upsert.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string { return fmt.Sprintf("profile save failed: %v", e.Err) }
func (e *SaveError) Unwrap() error { return e.Err }

// FetchError wraps the underlying transport or store fault of a failed read.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("profile fetch failed: %v", e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// PartialFailureError aggregates per-record failures of a bulk query. It is
// raised only when every candidate record failed; partial successes are
// returned as results instead.
type PartialFailureError struct {
	Errors []error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("profile query failed for all %d records", len(e.Errors))
}

// Count reports how many records failed.
func (e *PartialFailureError) Count() int { return len(e.Errors) }

// Unwrap exposes the per-record errors to errors.Is / errors.As.
func (e *PartialFailureError) Unwrap() []error { return e.Errors }
