package search_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"creatorscout/internal/config"
	"creatorscout/internal/keyword"
	"creatorscout/internal/model"
	"creatorscout/internal/provider"
	"creatorscout/internal/search"
	"creatorscout/internal/store"
)

// ── Test fixtures ──────────────────────────────────────────────────────────

func testConfig() *config.Config {
	return &config.Config{
		FanoutWidth:          5,
		PerTermLimit:         50,
		FetchTimeout:         time.Second,
		FetchRetries:         0,
		EnrichTimeout:        30 * time.Millisecond,
		EnrichConcurrency:    4,
		KeywordsPerExpansion: 5,
		MaxExpansionRuns:     3,
		MaxKeywordsTotal:     30,
		MaxTicksPerJob:       25,
		JobWallClockBudget:   time.Hour,
	}
}

// recordingTrigger collects enqueued job ids; ticks are driven manually.
type recordingTrigger struct {
	mu  sync.Mutex
	ids []string
}

func (t *recordingTrigger) Enqueue(ctx context.Context, jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids = append(t.ids, jobID)
	return nil
}

func (t *recordingTrigger) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

// fakeAdapter serves canned creators per term with pagination, optional
// per-term errors and configurable enrichment behavior.
type fakeAdapter struct {
	platform    model.Platform
	creators    func(term string) []model.CreatorResult
	pageSize    int
	batchErr    func(term string, call int) error
	profileErr  error
	profileHang bool

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeAdapter) Platform() model.Platform { return f.platform }

func (f *fakeAdapter) FetchBatch(ctx context.Context, q provider.Query) (*provider.Batch, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[q.Term]++
	call := f.calls[q.Term]
	f.mu.Unlock()

	if f.batchErr != nil {
		if err := f.batchErr(q.Term, call); err != nil {
			return nil, err
		}
	}

	all := f.creators(q.Term)
	offset := 0
	if q.Cursor != "" {
		offset, _ = strconv.Atoi(q.Cursor)
	}
	size := f.pageSize
	if size <= 0 {
		size = 20
	}
	if q.Limit > 0 && q.Limit < size {
		size = q.Limit
	}
	end := offset + size
	if end > len(all) {
		end = len(all)
	}

	batch := &provider.Batch{APICalls: 1, HasMore: end < len(all)}
	if offset < end {
		batch.Creators = append(batch.Creators, all[offset:end]...)
	}
	if batch.HasMore {
		batch.NextCursor = strconv.Itoa(end)
	}
	return batch, nil
}

func (f *fakeAdapter) FetchProfile(ctx context.Context, handle string) (*provider.Profile, error) {
	if f.profileHang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &provider.Profile{Bio: "bio of " + handle, Emails: []string{handle + "@x.example"}}, nil
}

// creatorsWithOverlap yields n creators per term; every fifth handle
// comes from a shared pool, giving ~20% cross-term overlap.
func creatorsWithOverlap(n int) func(term string) []model.CreatorResult {
	return func(term string) []model.CreatorResult {
		out := make([]model.CreatorResult, 0, n)
		for i := 0; i < n; i++ {
			handle := fmt.Sprintf("%s_c%02d", term, i)
			if i%5 == 4 {
				handle = fmt.Sprintf("shared_%02d", i)
			}
			out = append(out, model.CreatorResult{Platform: model.PlatformTikTok, Handle: handle})
		}
		return out
	}
}

func noCreators(term string) []model.CreatorResult { return nil }

type fixture struct {
	store   *store.Memory
	trigger *recordingTrigger
	orch    *search.Orchestrator
	disp    *search.Dispatcher
}

func newFixture(adapter *fakeAdapter, gen keyword.Generator, cfg *config.Config) *fixture {
	st := store.NewMemory()
	tr := &recordingTrigger{}
	orch := search.NewOrchestrator(st, tr,
		map[model.Platform]provider.Adapter{model.PlatformTikTok: adapter},
		gen, nil, cfg)
	return &fixture{store: st, trigger: tr, orch: orch, disp: search.NewDispatcher(st, tr)}
}

// runToTerminal drives ticks until the job reaches a terminal status.
func (f *fixture) runToTerminal(t *testing.T, jobID string) *search.TickResult {
	t.Helper()
	for i := 0; i < 50; i++ {
		res, err := f.orch.Tick(context.Background(), jobID)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if res.Status.IsTerminal() {
			return res
		}
	}
	t.Fatal("job did not reach a terminal status within 50 ticks")
	return nil
}

func dispatchKeywordJob(t *testing.T, f *fixture, terms []string, target int) string {
	t.Helper()
	id, err := f.disp.Dispatch(context.Background(), search.DispatchRequest{
		Platform:      "tiktok",
		SearchType:    "keyword",
		Terms:         terms,
		TargetResults: target,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	return id
}

// ── Scenario A: target hit from seeds alone ────────────────────────────────

func TestTick_ScenarioA_TargetFromSeeds(t *testing.T) {
	adapter := &fakeAdapter{platform: model.PlatformTikTok, creators: creatorsWithOverlap(30)}
	f := newFixture(adapter, nil, testConfig())

	seeds := []string{"vegan recipes", "street food", "meal prep", "air fryer", "baking"}
	id := dispatchKeywordJob(t, f, seeds, 100)

	res := f.runToTerminal(t, id)
	if res.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", res.Status)
	}
	if res.ProcessedResults != 100 {
		t.Errorf("processedResults = %d, want exactly 100", res.ProcessedResults)
	}

	job, _ := f.store.Load(context.Background(), id)
	if job.ExpansionRuns != 0 {
		t.Errorf("expansionRuns = %d, want 0 (seeds sufficed)", job.ExpansionRuns)
	}
	if len(job.AllTermsUsed) != len(seeds) {
		t.Errorf("allTermsUsed = %v, want the 5 seeds", job.AllTermsUsed)
	}

	results, _ := f.store.Results(context.Background(), id)
	if len(results) != 100 {
		t.Fatalf("stored %d results, want 100", len(results))
	}
	seen := make(map[string]bool)
	for _, c := range results {
		if seen[c.Handle] {
			t.Errorf("duplicate handle %s in results", c.Handle)
		}
		seen[c.Handle] = true
		if !c.BioEnriched {
			t.Errorf("creator %s not enriched despite healthy profile fetches", c.Handle)
		}
	}
}

// ── Scenario B: seeds exhausted, expansion, partial fill ───────────────────

func TestTick_ScenarioB_ExpansionThenPartialFill(t *testing.T) {
	// Seeds yield 60 unique creators total; expansion terms yield nothing.
	adapter := &fakeAdapter{
		platform: model.PlatformTikTok,
		creators: func(term string) []model.CreatorResult {
			switch term {
			case "niche one", "niche two":
				out := make([]model.CreatorResult, 30)
				for i := range out {
					out[i] = model.CreatorResult{
						Platform: model.PlatformTikTok,
						Handle:   fmt.Sprintf("%s_c%02d", term, i),
					}
				}
				return out
			}
			return nil
		},
	}
	gen := keyword.GeneratorFunc(func(ctx context.Context, topic string, existing []string, count int) ([]string, error) {
		out := make([]string, count)
		for i := range out {
			out[i] = fmt.Sprintf("expanded %d", len(existing)+i)
		}
		return out, nil
	})
	f := newFixture(adapter, gen, testConfig())

	id := dispatchKeywordJob(t, f, []string{"niche one", "niche two"}, 200)
	res := f.runToTerminal(t, id)

	if res.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED (partial fill is normal completion)", res.Status)
	}
	if res.ProcessedResults < 60 || res.ProcessedResults >= 200 {
		t.Errorf("processedResults = %d, want in [60, 200)", res.ProcessedResults)
	}
	if res.HasMore {
		t.Error("hasMore must be false on a terminal snapshot")
	}

	job, _ := f.store.Load(context.Background(), id)
	if job.ExpansionRuns == 0 {
		t.Error("expected at least one expansion run")
	}
	if job.ExpansionRuns > testConfig().MaxExpansionRuns {
		t.Errorf("expansionRuns = %d exceeds bound %d", job.ExpansionRuns, testConfig().MaxExpansionRuns)
	}
	if len(job.AllTermsUsed) > testConfig().MaxKeywordsTotal {
		t.Errorf("allTermsUsed grew to %d, cap is %d", len(job.AllTermsUsed), testConfig().MaxKeywordsTotal)
	}
}

// ── Scenario D: enrichment always times out ────────────────────────────────

func TestTick_ScenarioD_EnrichmentTimeoutNonFatal(t *testing.T) {
	adapter := &fakeAdapter{
		platform:    model.PlatformTikTok,
		creators:    creatorsWithOverlap(30),
		profileHang: true,
	}
	f := newFixture(adapter, nil, testConfig())

	id := dispatchKeywordJob(t, f, []string{"alpha"}, 10)
	res := f.runToTerminal(t, id)

	if res.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED despite enrichment timeouts", res.Status)
	}
	if res.ProcessedResults != 10 {
		t.Errorf("processedResults = %d, want 10", res.ProcessedResults)
	}
	results, _ := f.store.Results(context.Background(), id)
	for _, c := range results {
		if c.BioEnriched {
			t.Errorf("creator %s claims enrichment although every fetch timed out", c.Handle)
		}
	}
}

// ── Idempotence under at-least-once delivery ───────────────────────────────

func TestTick_DuplicateDeliveryIsIdempotent(t *testing.T) {
	adapter := &fakeAdapter{platform: model.PlatformTikTok, creators: creatorsWithOverlap(30)}
	f := newFixture(adapter, nil, testConfig())

	id := dispatchKeywordJob(t, f, []string{"alpha", "beta"}, 40)
	first := f.runToTerminal(t, id)
	if first.Status != model.StatusCompleted || first.ProcessedResults != 40 {
		t.Fatalf("setup: %s %d/40", first.Status, first.ProcessedResults)
	}

	// Simulate redelivered triggers for the finished job.
	for i := 0; i < 3; i++ {
		res, err := f.orch.Tick(context.Background(), id)
		if err != nil {
			t.Fatalf("redelivered tick: %v", err)
		}
		if res.Status != model.StatusCompleted || res.ProcessedResults != 40 {
			t.Errorf("redelivery changed outcome: %s %d/40", res.Status, res.ProcessedResults)
		}
		if res.HasMore {
			t.Error("redelivered tick reported hasMore=true on a completed job")
		}
	}

	results, _ := f.store.Results(context.Background(), id)
	if len(results) != 40 {
		t.Errorf("results grew to %d after redelivery, want 40", len(results))
	}
}

// ── Cancellation ───────────────────────────────────────────────────────────

func TestCancel_BeforeFirstTick(t *testing.T) {
	adapter := &fakeAdapter{platform: model.PlatformTikTok, creators: creatorsWithOverlap(30)}
	f := newFixture(adapter, nil, testConfig())

	id := dispatchKeywordJob(t, f, []string{"alpha"}, 100)
	if _, err := f.orch.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	res, err := f.orch.Tick(context.Background(), id)
	if err != nil {
		t.Fatalf("tick after cancel: %v", err)
	}
	if res.Status != model.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", res.Status)
	}
	if res.ProcessedResults != 0 {
		t.Errorf("cancelled job fetched %d creators, want 0 (no network before the check)", res.ProcessedResults)
	}
	if calls := len(adapter.calls); calls != 0 {
		t.Errorf("provider was called %d times after cancellation", calls)
	}
}

func TestCancel_IsSticky(t *testing.T) {
	adapter := &fakeAdapter{platform: model.PlatformTikTok, creators: creatorsWithOverlap(30)}
	f := newFixture(adapter, nil, testConfig())

	id := dispatchKeywordJob(t, f, []string{"alpha"}, 100)
	f.orch.Cancel(context.Background(), id)

	res, err := f.orch.Cancel(context.Background(), id)
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if res.Status != model.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", res.Status)
	}
}

// ── Timeout budgets ────────────────────────────────────────────────────────

func TestTick_MaxTickBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTicksPerJob = 2
	cfg.FanoutWidth = 1
	cfg.PerTermLimit = 5

	// Plenty of terms, tiny yield per tick: the job cannot finish in 2 ticks.
	adapter := &fakeAdapter{platform: model.PlatformTikTok, creators: creatorsWithOverlap(5), pageSize: 5}
	f := newFixture(adapter, nil, cfg)

	id := dispatchKeywordJob(t, f, []string{"a", "b", "c", "d", "e", "f"}, 1000)
	res := f.runToTerminal(t, id)

	if res.Status != model.StatusTimeout {
		t.Fatalf("status = %s, want TIMEOUT", res.Status)
	}
	job, _ := f.store.Load(context.Background(), id)
	if job.TickCount != cfg.MaxTicksPerJob {
		t.Errorf("tickCount = %d, want %d", job.TickCount, cfg.MaxTicksPerJob)
	}
}

func TestTick_WallClockBudget(t *testing.T) {
	cfg := testConfig()
	cfg.JobWallClockBudget = time.Nanosecond

	adapter := &fakeAdapter{platform: model.PlatformTikTok, creators: creatorsWithOverlap(30)}
	f := newFixture(adapter, nil, cfg)

	id := dispatchKeywordJob(t, f, []string{"alpha"}, 10)
	time.Sleep(time.Millisecond)
	res := f.runToTerminal(t, id)

	if res.Status != model.StatusTimeout {
		t.Errorf("status = %s, want TIMEOUT", res.Status)
	}
}

// ── Error paths ────────────────────────────────────────────────────────────

func TestTick_ExhaustionWithZeroResultsIsError(t *testing.T) {
	adapter := &fakeAdapter{platform: model.PlatformTikTok, creators: noCreators}
	f := newFixture(adapter, nil, testConfig()) // nil generator → local fallback only

	id := dispatchKeywordJob(t, f, []string{"ghost town"}, 50)
	res := f.runToTerminal(t, id)

	if res.Status != model.StatusError {
		t.Fatalf("status = %s, want ERROR (all terms spent, zero results ever)", res.Status)
	}
	if res.ProcessedResults != 0 {
		t.Errorf("processedResults = %d, want 0", res.ProcessedResults)
	}
}

func TestTick_RepeatedAllTerminalTicksFailJob(t *testing.T) {
	adapter := &fakeAdapter{
		platform: model.PlatformTikTok,
		creators: noCreators,
		batchErr: func(term string, call int) error {
			return &provider.Error{Retryable: false, Status: 401, Err: fmt.Errorf("bad credentials")}
		},
	}
	f := newFixture(adapter, nil, testConfig())

	id := dispatchKeywordJob(t, f, []string{"alpha", "beta"}, 50)
	res := f.runToTerminal(t, id)

	if res.Status != model.StatusError {
		t.Fatalf("status = %s, want ERROR after repeated all-terminal ticks", res.Status)
	}
}

func TestTick_TerminalErrorOnOneTermDoesNotFailJob(t *testing.T) {
	adapter := &fakeAdapter{
		platform: model.PlatformTikTok,
		creators: creatorsWithOverlap(30),
		batchErr: func(term string, call int) error {
			if term == "poison" {
				return &provider.Error{Retryable: false, Status: 400, Err: fmt.Errorf("malformed term")}
			}
			return nil
		},
	}
	f := newFixture(adapter, nil, testConfig())

	id := dispatchKeywordJob(t, f, []string{"poison", "healthy"}, 20)
	res := f.runToTerminal(t, id)

	if res.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED (one bad term is not fatal)", res.Status)
	}
	if res.ProcessedResults != 20 {
		t.Errorf("processedResults = %d, want 20 from the healthy term", res.ProcessedResults)
	}
}

func TestTick_RetryableFailureIsRetriedWithinTick(t *testing.T) {
	cfg := testConfig()
	cfg.FetchRetries = 2

	adapter := &fakeAdapter{
		platform: model.PlatformTikTok,
		creators: creatorsWithOverlap(30),
		batchErr: func(term string, call int) error {
			if call == 1 {
				return &provider.Error{Retryable: true, Status: 429, Err: fmt.Errorf("rate limited")}
			}
			return nil
		},
	}
	f := newFixture(adapter, nil, cfg)

	id := dispatchKeywordJob(t, f, []string{"alpha"}, 10)
	res := f.runToTerminal(t, id)

	if res.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED after in-tick retry", res.Status)
	}
	if res.Metrics.RetriedCalls == 0 {
		t.Error("metrics did not record the retried call")
	}
}

// ── Concurrent cutoff through the whole pipeline ───────────────────────────

func TestTick_ConcurrentBatchesStopExactlyAtTarget(t *testing.T) {
	// Five terms, 40 unique creators each, no overlap: 200 candidates.
	adapter := &fakeAdapter{
		platform: model.PlatformTikTok,
		creators: func(term string) []model.CreatorResult {
			out := make([]model.CreatorResult, 40)
			for i := range out {
				out[i] = model.CreatorResult{
					Platform: model.PlatformTikTok,
					Handle:   fmt.Sprintf("%s_c%02d", term, i),
				}
			}
			return out
		},
	}
	f := newFixture(adapter, nil, testConfig())

	id := dispatchKeywordJob(t, f, []string{"t1", "t2", "t3", "t4", "t5"}, 100)
	res := f.runToTerminal(t, id)

	if res.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", res.Status)
	}
	if res.ProcessedResults != 100 {
		t.Fatalf("processedResults = %d, want exactly 100", res.ProcessedResults)
	}
	results, _ := f.store.Results(context.Background(), id)
	if len(results) != 100 {
		t.Fatalf("stored %d results, want exactly 100", len(results))
	}
}
