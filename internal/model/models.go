// Package model defines shared data structures for the creator search service.
package model

import "time"

// Platform identifies a supported social platform provider.
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
)

// ParsePlatform converts a raw string to a Platform, returning false for
// unknown values.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(s)
	switch p {
	case PlatformTikTok, PlatformInstagram, PlatformYouTube:
		return p, true
	}
	return "", false
}

// SearchType selects how a job seeds its search.
type SearchType string

const (
	// SearchKeyword seeds from caller-supplied keyword terms.
	SearchKeyword SearchType = "keyword"
	// SearchSimilar seeds from a single reference creator identity.
	SearchSimilar SearchType = "similar"
)

// ParseSearchType converts a raw string to a SearchType, returning false
// for unknown values.
func ParseSearchType(s string) (SearchType, bool) {
	st := SearchType(s)
	switch st {
	case SearchKeyword, SearchSimilar:
		return st, true
	}
	return "", false
}

// Job is one search request's persisted lifecycle record.
type Job struct {
	ID         string     `json:"id"`
	Platform   Platform   `json:"platform"`
	SearchType SearchType `json:"searchType"`

	// SeedTerms are the caller-supplied keywords (or the single seed
	// identity for similar search). Immutable after creation.
	SeedTerms []string `json:"seedTerms"`

	// AllTermsUsed is every term actually dispatched so far, seed terms
	// plus accepted expansions, append-only and duplicate-free.
	AllTermsUsed []string `json:"allTermsUsed"`

	TargetResults    int    `json:"targetResults"`
	ProcessedResults int    `json:"processedResults"`
	Status           Status `json:"status"`

	// ExpansionRuns counts keyword-expansion rounds performed.
	ExpansionRuns int `json:"expansionRuns"`

	// TickCount counts orchestrator ticks executed for this job.
	TickCount int `json:"tickCount"`

	// FailedTicks counts consecutive ticks in which every dispatched
	// term failed terminally. Reset on any progress.
	FailedTicks int `json:"failedTicks"`

	Metrics JobMetrics `json:"metrics"`

	// Version guards concurrent saves (optimistic check in the store).
	Version int `json:"version"`

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TermUsed reports whether term is already in AllTermsUsed.
func (j *Job) TermUsed(term string) bool {
	for _, t := range j.AllTermsUsed {
		if t == term {
			return true
		}
	}
	return false
}

// ProgressPercent returns completion progress in [0,100].
func (j *Job) ProgressPercent() int {
	if j.TargetResults <= 0 {
		return 0
	}
	p := j.ProcessedResults * 100 / j.TargetResults
	if p > 100 {
		p = 100
	}
	return p
}

// JobMetrics accumulates observability counters for a job. Purely
// informational; never consulted for correctness decisions.
type JobMetrics struct {
	ProviderCalls      int            `json:"providerCalls"`
	RetriedCalls       int            `json:"retriedCalls"`
	EnrichAttempts     int            `json:"enrichAttempts"`
	EnrichSuccesses    int            `json:"enrichSuccesses"`
	DuplicatesRejected int            `json:"duplicatesRejected"`
	OverflowRejected   int            `json:"overflowRejected"`
	EstimatedCostUnits int            `json:"estimatedCostUnits"`
	Batches            []KeywordBatch `json:"batches,omitempty"`
}

// Merge folds the counters of other into m. Batches are appended.
func (m *JobMetrics) Merge(other JobMetrics) {
	m.ProviderCalls += other.ProviderCalls
	m.RetriedCalls += other.RetriedCalls
	m.EnrichAttempts += other.EnrichAttempts
	m.EnrichSuccesses += other.EnrichSuccesses
	m.DuplicatesRejected += other.DuplicatesRejected
	m.OverflowRejected += other.OverflowRejected
	m.EstimatedCostUnits += other.EstimatedCostUnits
	m.Batches = append(m.Batches, other.Batches...)
}

// KeywordBatch records one provider fetch for observability.
type KeywordBatch struct {
	Term             string `json:"term"`
	CreatorsReturned int    `json:"creatorsReturned"`
	DurationMs       int64  `json:"durationMs"`
	APICalls         int    `json:"apiCalls"`
}

// ContentSample is the piece of content that surfaced a creator, with its
// engagement statistics.
type ContentSample struct {
	ID          string `json:"id,omitempty"`
	URL         string `json:"url,omitempty"`
	Caption     string `json:"caption,omitempty"`
	Views       int64  `json:"views,omitempty"`
	Likes       int64  `json:"likes,omitempty"`
	Comments    int64  `json:"comments,omitempty"`
	Shares      int64  `json:"shares,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
}

// CreatorResult is one accepted, deduplicated creator for a job.
// Immutable once written except for the enrichment fields, which the
// enrichment stage fills in exactly once.
type CreatorResult struct {
	Platform      Platform      `json:"platform"`
	Handle        string        `json:"handle"` // normalized lower-case identity key
	DisplayName   string        `json:"displayName,omitempty"`
	FollowerCount int64         `json:"followerCount"`
	Verified      bool          `json:"verified"`
	Bio           string        `json:"bio,omitempty"`
	Emails        []string      `json:"emails,omitempty"`
	BioEnriched   bool          `json:"bioEnriched"`
	ContentSample ContentSample `json:"contentSample"`
}

// Key returns the (platform, handle) dedup identity for this creator.
func (c *CreatorResult) Key() string {
	return string(c.Platform) + "|" + c.Handle
}
