// Package provider abstracts creator discovery APIs behind a narrow
// adapter interface. Adapters are stateless between calls: the pagination
// cursor is the only continuation state and the caller owns it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"creatorscout/internal/model"
)

// Query describes one "fetch a batch for term X" call.
type Query struct {
	Term   string
	Kind   model.SearchType // keyword term or similar-search seed identity
	Cursor string           // opaque continuation cursor, empty on first call
	Limit  int
}

// Batch is the normalized result of one adapter fetch.
// "No more results" is never an error: HasMore=false with an empty
// Creators slice.
type Batch struct {
	Creators   []model.CreatorResult
	NextCursor string
	HasMore    bool
	APICalls   int // provider API calls consumed by this fetch
}

// Profile is the fuller creator profile returned by a secondary fetch,
// consumed by the enrichment stage.
type Profile struct {
	Bio    string
	Emails []string
}

// Adapter is the per-platform provider contract.
type Adapter interface {
	Platform() model.Platform

	// FetchBatch executes one search call and returns a normalized batch.
	FetchBatch(ctx context.Context, q Query) (*Batch, error)

	// FetchProfile retrieves the fuller profile for a single handle.
	FetchProfile(ctx context.Context, handle string) (*Profile, error)
}

// Error wraps a provider failure with its retry classification.
// Retryable failures (timeouts, 429, 5xx) may be retried by the caller
// with bounded backoff; terminal failures (bad term, auth) must not be.
type Error struct {
	Retryable bool
	Status    int // HTTP status when applicable, 0 otherwise
	Err       error
}

func (e *Error) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	if e.Status != 0 {
		return fmt.Sprintf("provider %s error (status %d): %v", kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s error: %v", kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a provider error worth retrying.
// Plain context timeouts count as retryable; anything else unknown is
// treated as terminal.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// NormalizeHandle lower-cases a raw handle and strips a leading "@" so
// that (platform, handle) keys compare consistently across providers.
func NormalizeHandle(raw string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
}
