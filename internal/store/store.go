// Package store persists job state and accepted creator results.
package store

import (
	"context"
	"errors"
	"time"

	"creatorscout/internal/model"
)

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("job not found")

// ErrVersionConflict is returned by Save when the job row changed since
// it was loaded. The caller re-runs the tick; reload-and-reconstruct
// makes that safe.
var ErrVersionConflict = errors.New("job version conflict")

// JobStore is the narrow persistence contract consumed by the
// orchestrator and dispatcher.
type JobStore interface {
	// Create inserts a new job record.
	Create(ctx context.Context, job *model.Job) error

	// Load returns the current job snapshot. ProcessedResults reflects
	// the count of persisted results, so a tick that crashed between
	// AppendResults and Save is reconciled on the next load.
	Load(ctx context.Context, id string) (*model.Job, error)

	// Save persists the job row atomically, guarded by job.Version:
	// ErrVersionConflict if the stored version differs. On success the
	// stored and in-memory versions are incremented.
	Save(ctx context.Context, job *model.Job) error

	// AppendResults appends accepted creators for a job. Idempotent per
	// (platform, handle): re-appending an existing creator is a no-op.
	AppendResults(ctx context.Context, jobID string, creators []model.CreatorResult) error

	// Results returns every persisted creator for a job, used to
	// reconstruct the dedup set at the start of each tick.
	Results(ctx context.Context, jobID string) ([]model.CreatorResult, error)

	// StaleProcessing returns ids of PENDING/PROCESSING jobs created
	// before the cutoff, for the timeout reaper.
	StaleProcessing(ctx context.Context, olderThan time.Time) ([]string, error)
}
