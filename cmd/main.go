// creatorscout — async creator search orchestration service.
//
// Accepts search requests over HTTP, persists them as jobs, and works
// them off in ticks driven by a Redis-backed trigger queue:
//   - POST /dispatch            — create a job, schedule its first tick
//   - POST /tick                — run one tick synchronously (operators)
//   - GET  /jobs/{id}           — job snapshot with progress
//   - POST /jobs/{id}/cancel    — cooperative cancellation
//
// Each tick fans out provider fetches across keywords, deduplicates and
// cuts off at the job's target, enriches accepted creators with bios,
// and re-enqueues itself while work remains. Publishes
// EVENT_SEARCH_FINISHED to Redis on terminal transitions.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"creatorscout/internal/config"
	"creatorscout/internal/httpserver"
	"creatorscout/internal/keyword"
	"creatorscout/internal/metrics"
	"creatorscout/internal/model"
	"creatorscout/internal/provider"
	"creatorscout/internal/queue"
	"creatorscout/internal/scheduler"
	"creatorscout/internal/search"
	"creatorscout/internal/store"
)

const version = "1.0.0"

var platforms = []model.Platform{
	model.PlatformTikTok,
	model.PlatformInstagram,
	model.PlatformYouTube,
}

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[creatorscout] Config error: %v", err)
	}
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Job store ────────────────────────────────────────────────────────────
	var jobStore store.JobStore
	if cfg.DatabaseURL != "" {
		log.Println("[creatorscout] Connecting to PostgreSQL…")
		pg, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[creatorscout] PostgreSQL: %v", err)
		}
		defer pg.Close()
		jobStore = pg
		log.Println("[creatorscout] PostgreSQL connected ✓")
	} else {
		jobStore = store.NewMemory()
		log.Println("[creatorscout] DATABASE_URL not set — using in-memory job store")
	}

	// ── Tick trigger ─────────────────────────────────────────────────────────
	var (
		trigger queue.TickTrigger
		consume func(ctx context.Context, handler queue.TickHandler)
		events  search.EventPublisher
	)
	if cfg.RedisURL != "" {
		log.Println("[creatorscout] Connecting to Redis…")
		rdb, err := queue.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("[creatorscout] Redis: %v", err)
		}
		defer rdb.Close()
		rt := queue.NewRedisTrigger(rdb)
		trigger, consume, events = rt, rt.Consume, rt
		log.Println("[creatorscout] Redis connected ✓")
	} else {
		mt := queue.NewMemoryTrigger()
		trigger, consume = mt, mt.Consume
		log.Println("[creatorscout] REDIS_URL not set — using in-process tick trigger")
	}

	// ── Provider adapters ────────────────────────────────────────────────────
	adapters := make(map[model.Platform]provider.Adapter, len(platforms))
	for _, p := range platforms {
		if cfg.ProviderAPIKey != "" {
			adapters[p] = provider.NewHTTPAdapter(p, cfg.ProviderBaseURL, cfg.ProviderAPIKey)
		} else {
			adapters[p] = provider.NewMockAdapter(p, 0)
		}
	}
	if cfg.ProviderAPIKey == "" {
		log.Println("[creatorscout] PROVIDER_API_KEY not set — serving deterministic mock creators")
	}

	// ── Keyword expansion ────────────────────────────────────────────────────
	var gen keyword.Generator
	if cfg.ExpansionAPIKey != "" {
		gen = keyword.NewCompletionGenerator(cfg.ExpansionBaseURL, cfg.ExpansionAPIKey, cfg.ExpansionModel)
		log.Printf("[creatorscout] Keyword expansion via %s (%s)", cfg.ExpansionBaseURL, cfg.ExpansionModel)
	} else {
		log.Println("[creatorscout] EXPANSION_API_KEY not set — local fallback expansion only")
	}

	// ── Pipeline ─────────────────────────────────────────────────────────────
	orch := search.NewOrchestrator(jobStore, trigger, adapters, gen, events, cfg)
	disp := search.NewDispatcher(jobStore, trigger)

	go consume(ctx, orch.HandleTick)

	reaper := scheduler.New(jobStore, orch, cfg.ReaperInterval, cfg.JobWallClockBudget)
	if err := reaper.Start(ctx); err != nil {
		log.Fatalf("[creatorscout] Reaper: %v", err)
	}
	defer reaper.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      httpserver.NewRouter(httpserver.NewHandler(disp, orch)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[creatorscout] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[creatorscout] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[creatorscout] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[creatorscout] Shutdown error: %v", err)
	}
	cancel()
	log.Println("[creatorscout] Stopped.")
}
