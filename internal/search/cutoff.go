// Package search implements the job pipeline core: the dedup/cutoff
// accumulator, the tick orchestrator and the dispatcher.
package search

import (
	"sync"

	"creatorscout/internal/model"
)

// Accumulator enforces the two hard invariants of a tick under
// concurrency: no duplicate (platform, handle) keys, and never more than
// targetResults accepted in total. All concurrent batches in a tick
// share one Accumulator; Offer is the single critical section.
//
// Tie-break when several batches race at the cutoff: first call into the
// mutex wins. Anything arriving after the cutoff is discarded for good —
// callers get no ordering promise beyond that.
type Accumulator struct {
	mu       sync.Mutex
	seen     map[string]bool
	target   int
	already  int // results persisted before this tick
	accepted []model.CreatorResult
	dupes    int
	overflow int
}

// NewAccumulator reconstructs the dedup state from previously persisted
// results, so a resumed or redelivered tick cannot re-admit creators.
func NewAccumulator(target int, persisted []model.CreatorResult) *Accumulator {
	a := &Accumulator{
		seen:    make(map[string]bool, len(persisted)),
		target:  target,
		already: len(persisted),
	}
	for _, c := range persisted {
		a.seen[c.Key()] = true
	}
	return a
}

// Offer applies the acceptance algorithm to one creator:
// duplicate → reject; cutoff reached → reject; otherwise accept.
// Returns true when the creator was accepted.
func (a *Accumulator) Offer(c model.CreatorResult) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seen[c.Key()] {
		a.dupes++
		return false
	}
	if a.already+len(a.accepted) >= a.target {
		a.overflow++
		return false
	}
	a.seen[c.Key()] = true
	a.accepted = append(a.accepted, c)
	return true
}

// Full reports whether the cutoff has been reached. Fan-out loops use it
// to stop paginating early; correctness does not depend on it.
func (a *Accumulator) Full() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.already+len(a.accepted) >= a.target
}

// Accepted returns the creators accepted this tick, in arrival order.
func (a *Accumulator) Accepted() []model.CreatorResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.CreatorResult, len(a.accepted))
	copy(out, a.accepted)
	return out
}

// SetAccepted replaces the accepted slice after the enrichment stage has
// filled in bios. Lengths must match; enrichment never adds or removes.
func (a *Accumulator) SetAccepted(creators []model.CreatorResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accepted = creators
}

// Total returns persisted-before-tick plus accepted-this-tick.
func (a *Accumulator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.already + len(a.accepted)
}

// Rejections returns duplicate and overflow counts for metrics.
func (a *Accumulator) Rejections() (dupes, overflow int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dupes, a.overflow
}
