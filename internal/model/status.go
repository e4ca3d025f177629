// Job status state machine.
//
// Valid status graph:
//
//	PENDING ──► PROCESSING ──► COMPLETED
//	    │            ├───────► ERROR
//	    │            ├───────► TIMEOUT
//	    └────────────┴───────► CANCELLED
//
// COMPLETED, ERROR, TIMEOUT and CANCELLED are terminal states: a job that
// reaches one of them receives no further ticks and no further mutation.
package model

import "fmt"

// Status values mirror the job_status enum in PostgreSQL.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusError      Status = "ERROR"
	StatusTimeout    Status = "TIMEOUT"
	StatusCancelled  Status = "CANCELLED"
)

// validTransitions lists every allowed (from → to) pair. A PROCESSING job
// may stay PROCESSING across ticks; that is not a transition.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusError, StatusTimeout, StatusCancelled},
	// terminal states have no outgoing transitions
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError, StatusTimeout, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTerminal returns true when status admits no further ticks.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// IsTransitionAllowed returns true when moving from → to is permitted by
// the state machine.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state — no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
