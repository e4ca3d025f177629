// Package scheduler wires up the cron job that periodically sweeps jobs
// stuck over their wall-clock budget, so lost trigger messages cannot
// strand a job in PROCESSING forever.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"creatorscout/internal/search"
	"creatorscout/internal/store"
)

// Reaper wraps robfig/cron and manages the stale-job sweep.
type Reaper struct {
	cron     *cron.Cron
	store    store.JobStore
	orch     *search.Orchestrator
	budget   time.Duration
	interval time.Duration
}

// New creates a Reaper that fires every interval and sweeps jobs older
// than budget.
func New(st store.JobStore, orch *search.Orchestrator, interval, budget time.Duration) *Reaper {
	return &Reaper{
		cron:     cron.New(cron.WithLogger(cron.DefaultLogger)),
		store:    st,
		orch:     orch,
		budget:   budget,
		interval: interval,
	}
}

// Start registers the sweep and starts the scheduler.
func (r *Reaper) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", r.interval)
	_, err := r.cron.AddFunc(spec, func() {
		r.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	r.cron.Start()
	log.Printf("[reaper] Cron started — spec: %s, budget: %s", spec, r.budget)
	return nil
}

// Stop gracefully shuts down the scheduler.
func (r *Reaper) Stop() {
	r.cron.Stop()
	log.Println("[reaper] Cron stopped")
}

// Sweep finds non-terminal jobs older than the budget and runs one tick
// for each. The tick's own wall-clock check moves them to TIMEOUT, so the
// reaper needs no status-writing logic of its own.
func (r *Reaper) Sweep(ctx context.Context) {
	ids, err := r.store.StaleProcessing(ctx, time.Now().UTC().Add(-r.budget))
	if err != nil {
		log.Printf("[reaper] StaleProcessing error: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	log.Printf("[reaper] Sweeping %d stale job(s)", len(ids))
	for _, id := range ids {
		if _, err := r.orch.Tick(ctx, id); err != nil {
			log.Printf("[reaper] Tick error for job %s: %v", id, err)
		}
	}
}
