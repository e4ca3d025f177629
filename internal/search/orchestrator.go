package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"creatorscout/internal/config"
	"creatorscout/internal/enrich"
	"creatorscout/internal/keyword"
	"creatorscout/internal/metrics"
	"creatorscout/internal/model"
	"creatorscout/internal/provider"
	"creatorscout/internal/queue"
	"creatorscout/internal/store"
)

// EventPublisher emits job lifecycle events for dashboard consumers.
// Publishing is always non-fatal.
type EventPublisher interface {
	PublishEvent(ctx context.Context, channel string, payload []byte) error
}

// TickResult is the snapshot returned to whichever caller invoked the
// tick: the queue consumer, the /tick endpoint, or a polling read.
type TickResult struct {
	JobID            string           `json:"jobId"`
	Status           model.Status     `json:"status"`
	ProcessedResults int              `json:"processedResults"`
	TargetResults    int              `json:"targetResults"`
	HasMore          bool             `json:"hasMore"`
	Metrics          model.JobMetrics `json:"metrics"`
}

// Orchestrator executes one bounded unit of work per tick: concurrent
// provider fetches, dedup + cutoff, enrichment, persistence, and the
// next-status decision.
type Orchestrator struct {
	store    store.JobStore
	trigger  queue.TickTrigger
	adapters map[model.Platform]provider.Adapter
	gen      keyword.Generator
	events   EventPublisher
	cfg      *config.Config

	// backoffBase is overridable in tests to keep retry paths fast.
	backoffBase time.Duration
}

// NewOrchestrator wires the pipeline. events may be nil.
func NewOrchestrator(
	st store.JobStore,
	trigger queue.TickTrigger,
	adapters map[model.Platform]provider.Adapter,
	gen keyword.Generator,
	events EventPublisher,
	cfg *config.Config,
) *Orchestrator {
	return &Orchestrator{
		store:       st,
		trigger:     trigger,
		adapters:    adapters,
		gen:         gen,
		events:      events,
		cfg:         cfg,
		backoffBase: 200 * time.Millisecond,
	}
}

// HandleTick adapts Tick to the queue consumer callback.
func (o *Orchestrator) HandleTick(ctx context.Context, jobID string) {
	if _, err := o.Tick(ctx, jobID); err != nil {
		log.Printf("[orchestrator] tick for job %s failed: %v — leaving to trigger retry", jobID, err)
	}
}

// Tick runs one tick for the job. Safe under at-least-once delivery: a
// duplicate invocation reloads fresh state and no-ops into the already
// reached outcome instead of re-fetching or re-counting.
func (o *Orchestrator) Tick(ctx context.Context, jobID string) (*TickResult, error) {
	started := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(started).Seconds()) }()

	job, err := o.store.Load(ctx, jobID)
	if err != nil {
		return nil, err
	}

	// Terminal (including cancelled) is sticky: no work, no network.
	if job.Status.IsTerminal() {
		return snapshot(job, false), nil
	}

	if job.Status == model.StatusPending {
		job.Status = model.StatusProcessing
	}

	// Budget checks happen before any network call.
	if job.TickCount >= o.cfg.MaxTicksPerJob || time.Since(job.CreatedAt) > o.cfg.JobWallClockBudget {
		return o.finish(ctx, job, model.StatusTimeout)
	}
	job.TickCount++

	adapter, ok := o.adapters[job.Platform]
	if !ok {
		log.Printf("[orchestrator] job %s: no adapter for platform %s", job.ID, job.Platform)
		return o.finish(ctx, job, model.StatusError)
	}

	planner := keyword.NewPlanner(job.SeedTerms, job.AllTermsUsed, job.ExpansionRuns, o.gen, keyword.Limits{
		KeywordsPerExpansion: o.cfg.KeywordsPerExpansion,
		MaxExpansionRuns:     o.cfg.MaxExpansionRuns,
		MaxKeywordsTotal:     o.cfg.MaxKeywordsTotal,
	})

	terms := planner.NextBatch(o.cfg.FanoutWidth)
	if len(terms) == 0 && job.ProcessedResults < job.TargetResults && planner.CanExpand() {
		if accepted := planner.RequestExpansion(ctx, keyword.Topic(job.SeedTerms)); accepted > 0 {
			metrics.ExpansionRuns.Inc()
			log.Printf("[orchestrator] job %s: expansion round %d accepted %d terms",
				job.ID, planner.ExpansionRuns(), accepted)
		}
		job.ExpansionRuns = planner.ExpansionRuns()
		terms = planner.NextBatch(o.cfg.FanoutWidth)
	}

	if len(terms) == 0 {
		// Every term and every expansion budget is spent.
		if job.ProcessedResults == 0 {
			return o.finish(ctx, job, model.StatusError)
		}
		return o.finish(ctx, job, model.StatusCompleted)
	}

	persisted, err := o.store.Results(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("reconstruct dedup state: %w", err)
	}
	acc := NewAccumulator(job.TargetResults, persisted)

	// Fan out one concurrent fetch loop per term. The tick owns every
	// goroutine it spawns: nothing outlives the WaitGroup.
	var (
		wg         sync.WaitGroup
		tickMx     sync.Mutex
		tick       model.JobMetrics
		progressed bool
		terminal   int
	)
	for _, term := range terms {
		wg.Add(1)
		go func(term string) {
			defer wg.Done()
			res := o.fetchTerm(ctx, adapter, job, term, acc)
			tickMx.Lock()
			defer tickMx.Unlock()
			tick.Merge(res.metrics)
			if res.creators > 0 {
				progressed = true
			}
			if res.terminalErr {
				terminal++
			}
		}(term)
	}
	wg.Wait()

	// Enrichment is best-effort and bounded independently of the fan-out.
	accepted := acc.Accepted()
	enricher := enrich.New(adapter, o.cfg.EnrichTimeout, o.cfg.EnrichConcurrency)
	es := enricher.Run(ctx, accepted)
	acc.SetAccepted(accepted)
	tick.EnrichAttempts += es.Attempts
	tick.EnrichSuccesses += es.Successes
	metrics.EnrichmentOutcomes.WithLabelValues("ok").Add(float64(es.Successes))
	metrics.EnrichmentOutcomes.WithLabelValues("failed").Add(float64(es.Attempts - es.Successes))

	dupes, overflow := acc.Rejections()
	tick.DuplicatesRejected += dupes
	tick.OverflowRejected += overflow
	metrics.CreatorsAccepted.WithLabelValues(string(job.Platform)).Add(float64(len(accepted)))
	metrics.CreatorsRejected.WithLabelValues(string(job.Platform), "duplicate").Add(float64(dupes))
	metrics.CreatorsRejected.WithLabelValues(string(job.Platform), "overflow").Add(float64(overflow))

	// Persistence failure fails the tick: accepted creators must never be
	// silently dropped. The trigger's redelivery plus idempotent appends
	// recover without double counting.
	if err := o.store.AppendResults(ctx, job.ID, accepted); err != nil {
		return nil, fmt.Errorf("persist results: %w", err)
	}

	job.AllTermsUsed = planner.TermsUsed()
	job.ExpansionRuns = planner.ExpansionRuns()
	job.ProcessedResults = acc.Total()
	job.Metrics.Merge(tick)

	if !progressed && terminal == len(terms) {
		job.FailedTicks++
	} else {
		job.FailedTicks = 0
	}

	switch {
	case job.ProcessedResults >= job.TargetResults:
		return o.finish(ctx, job, model.StatusCompleted)
	case job.FailedTicks >= 2:
		// Repeated all-terminal ticks: no path to progress.
		return o.finish(ctx, job, model.StatusError)
	case !planner.HasUnused() && !planner.CanExpand():
		// Partial fill is a normal completion, not an error.
		return o.finish(ctx, job, model.StatusCompleted)
	}

	if err := o.saveJob(ctx, job); err != nil {
		return o.recoverConflict(ctx, job.ID, err)
	}
	metrics.Ticks.WithLabelValues(string(job.Status)).Inc()

	if err := o.trigger.Enqueue(ctx, job.ID); err != nil {
		// The reaper re-enqueues stalled jobs, so a lost trigger is
		// degraded latency, not data loss.
		slog.Warn("re-enqueue tick failed", "jobId", job.ID, "err", err)
	}
	return snapshot(job, true), nil
}

// Cancel observes an external cancellation signal: the next tick (and
// every one after it) no-ops. An in-flight tick finishes its round.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (*TickResult, error) {
	job, err := o.store.Load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return snapshot(job, false), nil
	}
	res, err := o.finish(ctx, job, model.StatusCancelled)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Snapshot returns the current persisted view of a job for polling reads.
func (o *Orchestrator) Snapshot(ctx context.Context, jobID string) (*model.Job, error) {
	return o.store.Load(ctx, jobID)
}

// termResult is the per-term outcome fed back into the tick summary.
type termResult struct {
	creators    int
	terminalErr bool
	metrics     model.JobMetrics
}

// fetchTerm pages through one term until the accumulator is full, the
// provider is exhausted, the per-term limit is reached, or an error
// survives its retries. Retryable failures get bounded backoff; terminal
// failures drop the batch immediately.
func (o *Orchestrator) fetchTerm(
	ctx context.Context,
	adapter provider.Adapter,
	job *model.Job,
	term string,
	acc *Accumulator,
) termResult {
	var res termResult
	started := time.Now()
	defer func() { metrics.BatchDuration.Observe(time.Since(started).Seconds()) }()

	cursor := ""
	fetched := 0
	apiCalls := 0
	for fetched < o.cfg.PerTermLimit && !acc.Full() {
		batch, err := o.fetchWithRetry(ctx, adapter, provider.Query{
			Term:   term,
			Kind:   job.SearchType,
			Cursor: cursor,
			Limit:  min(o.cfg.PerTermLimit-fetched, 50),
		}, &res.metrics)
		if err != nil {
			if !provider.IsRetryable(err) {
				res.terminalErr = true
				metrics.ProviderCalls.WithLabelValues(string(job.Platform), "terminal").Inc()
				log.Printf("[orchestrator] job %s term %q: terminal provider error: %v — dropping batch",
					job.ID, term, err)
			} else {
				metrics.ProviderCalls.WithLabelValues(string(job.Platform), "retryable").Inc()
				log.Printf("[orchestrator] job %s term %q: retries exhausted: %v — dropping batch for this tick",
					job.ID, term, err)
			}
			break
		}
		metrics.ProviderCalls.WithLabelValues(string(job.Platform), "ok").Inc()
		apiCalls += batch.APICalls
		fetched += len(batch.Creators)

		for _, c := range batch.Creators {
			if acc.Offer(c) {
				res.creators++
			}
		}

		if !batch.HasMore {
			break
		}
		cursor = batch.NextCursor
	}

	res.metrics.ProviderCalls += apiCalls
	res.metrics.EstimatedCostUnits += apiCalls
	res.metrics.Batches = append(res.metrics.Batches, model.KeywordBatch{
		Term:             term,
		CreatorsReturned: fetched,
		DurationMs:       time.Since(started).Milliseconds(),
		APICalls:         apiCalls,
	})
	return res
}

// fetchWithRetry runs one provider call with a per-call timeout and up to
// cfg.FetchRetries retries on retryable failures.
func (o *Orchestrator) fetchWithRetry(
	ctx context.Context,
	adapter provider.Adapter,
	q provider.Query,
	m *model.JobMetrics,
) (*provider.Batch, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.FetchRetries; attempt++ {
		if attempt > 0 {
			m.RetriedCalls++
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.backoffBase << (attempt - 1)):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
		batch, err := adapter.FetchBatch(callCtx, q)
		cancel()
		if err == nil {
			return batch, nil
		}
		lastErr = err
		if !provider.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// finish moves the job into a terminal status (or keeps an already
// decided one), persists it, and emits the lifecycle event.
func (o *Orchestrator) finish(ctx context.Context, job *model.Job, status model.Status) (*TickResult, error) {
	if job.Status != status {
		if !model.IsTransitionAllowed(job.Status, status) {
			return nil, fmt.Errorf("illegal status transition %s → %s for job %s", job.Status, status, job.ID)
		}
		job.Status = status
	}
	now := time.Now().UTC()
	job.CompletedAt = &now

	if err := o.saveJob(ctx, job); err != nil {
		return o.recoverConflict(ctx, job.ID, err)
	}
	metrics.Ticks.WithLabelValues(string(job.Status)).Inc()
	log.Printf("[orchestrator] job %s finished %s — %d/%d creators, %d ticks, %d expansions",
		job.ID, job.Status, job.ProcessedResults, job.TargetResults, job.TickCount, job.ExpansionRuns)

	o.publishTerminal(ctx, job)
	return snapshot(job, false), nil
}

func (o *Orchestrator) saveJob(ctx context.Context, job *model.Job) error {
	return o.store.Save(ctx, job)
}

// recoverConflict handles a lost optimistic-version race: some other
// invocation advanced the job first, so its persisted outcome wins.
func (o *Orchestrator) recoverConflict(ctx context.Context, jobID string, saveErr error) (*TickResult, error) {
	if saveErr != store.ErrVersionConflict {
		return nil, saveErr
	}
	slog.Warn("job save lost version race — yielding to concurrent tick", "jobId", jobID)
	fresh, err := o.store.Load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return snapshot(fresh, !fresh.Status.IsTerminal()), nil
}

func (o *Orchestrator) publishTerminal(ctx context.Context, job *model.Job) {
	if o.events == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"type":             "EVENT_SEARCH_FINISHED",
		"jobId":            job.ID,
		"status":           job.Status,
		"processedResults": job.ProcessedResults,
		"targetResults":    job.TargetResults,
	})
	if err := o.events.PublishEvent(ctx, "EVENT_SEARCH_FINISHED", payload); err != nil {
		slog.Warn("publish EVENT_SEARCH_FINISHED failed", "jobId", job.ID, "err", err)
	}
}

func snapshot(job *model.Job, hasMore bool) *TickResult {
	return &TickResult{
		JobID:            job.ID,
		Status:           job.Status,
		ProcessedResults: job.ProcessedResults,
		TargetResults:    job.TargetResults,
		HasMore:          hasMore,
		Metrics:          job.Metrics,
	}
}
