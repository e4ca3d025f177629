package search

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"creatorscout/internal/keyword"
	"creatorscout/internal/model"
	"creatorscout/internal/queue"
	"creatorscout/internal/store"
)

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// DispatchRequest is the validated input to Dispatch.
type DispatchRequest struct {
	Platform      string
	SearchType    string
	Terms         []string
	SeedIdentity  string
	TargetResults int
}

// Dispatcher is the synchronous entry point: create the job, schedule the
// first tick, return the id. It never waits on a provider.
type Dispatcher struct {
	store   store.JobStore
	trigger queue.TickTrigger
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(st store.JobStore, trigger queue.TickTrigger) *Dispatcher {
	return &Dispatcher{store: st, trigger: trigger}
}

// Dispatch validates the request, persists a PENDING job, enqueues its
// first tick and returns the new job id. Completes in near-constant time
// regardless of TargetResults: exactly one store write, one enqueue.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	platform, ok := model.ParsePlatform(req.Platform)
	if !ok {
		return "", &ValidationError{Msg: fmt.Sprintf("unsupported platform %q", req.Platform)}
	}
	searchType, ok := model.ParseSearchType(req.SearchType)
	if !ok {
		return "", &ValidationError{Msg: fmt.Sprintf("unsupported search type %q", req.SearchType)}
	}
	if req.TargetResults <= 0 {
		return "", &ValidationError{Msg: "targetResults must be greater than zero"}
	}

	var seeds []string
	switch searchType {
	case model.SearchKeyword:
		for _, t := range req.Terms {
			if n := keyword.NormalizeTerm(t); n != "" {
				seeds = append(seeds, n)
			}
		}
		if len(seeds) == 0 {
			return "", &ValidationError{Msg: "at least one non-empty search term is required"}
		}
	case model.SearchSimilar:
		seed := keyword.NormalizeTerm(req.SeedIdentity)
		if seed == "" {
			return "", &ValidationError{Msg: "a seed identity is required for similar search"}
		}
		seeds = []string{seed}
	}

	job := &model.Job{
		ID:            uuid.New().String(),
		Platform:      platform,
		SearchType:    searchType,
		SeedTerms:     seeds,
		TargetResults: req.TargetResults,
		Status:        model.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := d.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	if err := d.trigger.Enqueue(ctx, job.ID); err != nil {
		return "", fmt.Errorf("enqueue first tick: %w", err)
	}

	log.Printf("[dispatcher] job %s dispatched: platform=%s type=%s target=%d seeds=%d",
		job.ID, platform, searchType, req.TargetResults, len(seeds))
	return job.ID, nil
}
