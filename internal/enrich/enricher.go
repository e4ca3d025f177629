// Package enrich implements the best-effort bio enrichment stage: a
// secondary profile fetch per accepted creator, bounded in parallelism
// and per-call timeout. Enrichment never fails a creator or a job.
package enrich

import (
	"context"
	"log"
	"sync"
	"time"

	"creatorscout/internal/model"
	"creatorscout/internal/provider"
)

// Fetcher is the narrow secondary-fetch contract the enricher needs.
// Every provider adapter satisfies it.
type Fetcher interface {
	FetchProfile(ctx context.Context, handle string) (*provider.Profile, error)
}

// Stats summarizes one enrichment pass.
type Stats struct {
	Attempts  int
	Successes int
}

// Enricher runs concurrent profile fetches with a parallelism bound
// independent from the provider fan-out, so a slow enrichment backend
// cannot starve the main search.
type Enricher struct {
	fetcher     Fetcher
	timeout     time.Duration
	concurrency int
}

// New constructs an Enricher. concurrency < 1 is clamped to 1.
func New(fetcher Fetcher, timeout time.Duration, concurrency int) *Enricher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Enricher{fetcher: fetcher, timeout: timeout, concurrency: concurrency}
}

// Run enriches creators in place. Each element either gains Bio/Emails
// with BioEnriched=true, or is left untouched with BioEnriched=false.
// Run returns when every fetch has finished or timed out; no goroutine
// outlives the call.
func (e *Enricher) Run(ctx context.Context, creators []model.CreatorResult) Stats {
	if e.fetcher == nil || len(creators) == 0 {
		return Stats{}
	}

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	stats := Stats{Attempts: len(creators)}

	for i := range creators {
		wg.Add(1)
		go func(c *model.CreatorResult) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			profile, err := e.fetcher.FetchProfile(callCtx, c.Handle)
			if err != nil {
				log.Printf("[enrich] profile fetch for %s failed: %v — keeping bare record", c.Handle, err)
				return
			}
			c.Bio = profile.Bio
			c.Emails = profile.Emails
			c.BioEnriched = true

			mu.Lock()
			stats.Successes++
			mu.Unlock()
		}(&creators[i])
	}
	wg.Wait()
	return stats
}
