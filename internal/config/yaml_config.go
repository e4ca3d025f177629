package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlTuning mirrors the optional config.yaml tuning file. Only the search
// knobs live here; connection strings and secrets stay in the environment.
type yamlTuning struct {
	Search struct {
		FanoutWidth          int `yaml:"fanout_width"`
		PerTermLimit         int `yaml:"per_term_limit"`
		FetchTimeoutMs       int `yaml:"fetch_timeout_ms"`
		FetchRetries         int `yaml:"fetch_retries"`
		EnrichTimeoutMs      int `yaml:"enrich_timeout_ms"`
		EnrichConcurrency    int `yaml:"enrich_concurrency"`
		KeywordsPerExpansion int `yaml:"keywords_per_expansion"`
		MaxExpansionRuns     int `yaml:"max_expansion_runs"`
		MaxKeywordsTotal     int `yaml:"max_keywords_total"`
		MaxTicksPerJob       int `yaml:"max_ticks_per_job"`
		JobBudgetMinutes     int `yaml:"job_budget_minutes"`
	} `yaml:"search"`
}

// applyYAML overlays values from the tuning file onto cfg. Path comes from
// CONFIG_FILE, defaulting to "config.yaml". A missing file is not an error.
func (c *Config) applyYAML() error {
	path := envDefault("CONFIG_FILE", "config.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var t yamlTuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	s := t.Search
	if s.FanoutWidth > 0 {
		c.FanoutWidth = s.FanoutWidth
	}
	if s.PerTermLimit > 0 {
		c.PerTermLimit = s.PerTermLimit
	}
	if s.FetchTimeoutMs > 0 {
		c.FetchTimeout = time.Duration(s.FetchTimeoutMs) * time.Millisecond
	}
	if s.FetchRetries > 0 {
		c.FetchRetries = s.FetchRetries
	}
	if s.EnrichTimeoutMs > 0 {
		c.EnrichTimeout = time.Duration(s.EnrichTimeoutMs) * time.Millisecond
	}
	if s.EnrichConcurrency > 0 {
		c.EnrichConcurrency = s.EnrichConcurrency
	}
	if s.KeywordsPerExpansion > 0 {
		c.KeywordsPerExpansion = s.KeywordsPerExpansion
	}
	if s.MaxExpansionRuns > 0 {
		c.MaxExpansionRuns = s.MaxExpansionRuns
	}
	if s.MaxKeywordsTotal > 0 {
		c.MaxKeywordsTotal = s.MaxKeywordsTotal
	}
	if s.MaxTicksPerJob > 0 {
		c.MaxTicksPerJob = s.MaxTicksPerJob
	}
	if s.JobBudgetMinutes > 0 {
		c.JobWallClockBudget = time.Duration(s.JobBudgetMinutes) * time.Minute
	}
	return nil
}
