// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the creator search service.
// It is constructed once in main and threaded into every component; no
// component reads the environment directly.
type Config struct {
	Port        string
	DatabaseURL string // empty = in-memory store (dev/offline mode)
	RedisURL    string // empty = in-process tick trigger

	// Provider (creator discovery API)
	ProviderBaseURL string
	ProviderAPIKey  string // empty = offline mock adapter

	// Keyword expansion generator (OpenAI-compatible completion API)
	ExpansionBaseURL string
	ExpansionAPIKey  string // empty = local fallback generator only
	ExpansionModel   string

	// Search tuning. Overridable via config.yaml (see yaml_config.go).
	FanoutWidth          int           // terms fetched concurrently per tick
	PerTermLimit         int           // max creators requested per term per tick
	FetchTimeout         time.Duration // per provider fetch
	FetchRetries         int           // retryable-failure retries per batch
	EnrichTimeout        time.Duration // per enrichment fetch
	EnrichConcurrency    int
	KeywordsPerExpansion int
	MaxExpansionRuns     int
	MaxKeywordsTotal     int
	MaxTicksPerJob       int
	JobWallClockBudget   time.Duration
	ReaperInterval       time.Duration
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	port := os.Getenv("SCOUT_PORT")
	if port == "" {
		port = "8082"
	}

	cfg := &Config{
		Port:             port,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		ProviderBaseURL:  envDefault("PROVIDER_BASE_URL", "https://api.creator-discovery.example.com"),
		ProviderAPIKey:   os.Getenv("PROVIDER_API_KEY"),
		ExpansionBaseURL: envDefault("EXPANSION_BASE_URL", "https://api.openai.com/v1"),
		ExpansionAPIKey:  os.Getenv("EXPANSION_API_KEY"),
		ExpansionModel:   envDefault("EXPANSION_MODEL", "gpt-4o-mini"),

		FanoutWidth:          5,
		PerTermLimit:         50,
		FetchTimeout:         15 * time.Second,
		FetchRetries:         2,
		EnrichTimeout:        8 * time.Second,
		EnrichConcurrency:    4,
		KeywordsPerExpansion: 5,
		MaxExpansionRuns:     3,
		MaxKeywordsTotal:     30,
		MaxTicksPerJob:       25,
		JobWallClockBudget:   30 * time.Minute,
		ReaperInterval:       5 * time.Minute,
	}

	for _, v := range []struct {
		env string
		dst *int
		min int
	}{
		{"SCOUT_FANOUT_WIDTH", &cfg.FanoutWidth, 1},
		{"SCOUT_PER_TERM_LIMIT", &cfg.PerTermLimit, 1},
		{"SCOUT_FETCH_RETRIES", &cfg.FetchRetries, 0},
		{"SCOUT_ENRICH_CONCURRENCY", &cfg.EnrichConcurrency, 1},
		{"SCOUT_KEYWORDS_PER_EXPANSION", &cfg.KeywordsPerExpansion, 1},
		{"SCOUT_MAX_EXPANSION_RUNS", &cfg.MaxExpansionRuns, 0},
		{"SCOUT_MAX_KEYWORDS_TOTAL", &cfg.MaxKeywordsTotal, 1},
		{"SCOUT_MAX_TICKS_PER_JOB", &cfg.MaxTicksPerJob, 1},
	} {
		if s := os.Getenv(v.env); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < v.min {
				return nil, fmt.Errorf("%s must be an integer >= %d, got %q", v.env, v.min, s)
			}
			*v.dst = n
		}
	}

	if s := os.Getenv("SCOUT_JOB_BUDGET_MINUTES"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("SCOUT_JOB_BUDGET_MINUTES must be a positive integer, got %q", s)
		}
		cfg.JobWallClockBudget = time.Duration(n) * time.Minute
	}

	if err := cfg.applyYAML(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
