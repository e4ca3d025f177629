// Package queue delivers tick triggers: at-least-once invocations of the
// orchestrator's tick entry point for a job id. The orchestrator is
// idempotent under duplicate delivery, so triggers never need dedup.
package queue

import "context"

// TickTrigger enqueues a tick request for a job.
type TickTrigger interface {
	Enqueue(ctx context.Context, jobID string) error
}

// TickHandler is the consumer-side callback, satisfied by the
// orchestrator's Tick entry point.
type TickHandler func(ctx context.Context, jobID string)
