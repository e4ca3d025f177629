package store

import (
	"context"
	"sync"
	"time"

	"creatorscout/internal/model"
)

// Memory is an in-process JobStore used in offline mode and tests. It
// mirrors the Postgres store's semantics: version-guarded saves,
// idempotent result appends, processedResults derived from stored rows.
type Memory struct {
	mu      sync.RWMutex
	jobs    map[string]*model.Job
	results map[string][]model.CreatorResult
	seen    map[string]map[string]bool // jobID -> creator key
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:    make(map[string]*model.Job),
		results: make(map[string][]model.CreatorResult),
		seen:    make(map[string]map[string]bool),
	}
}

func (m *Memory) Create(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneJob(job)
	m.jobs[job.ID] = cp
	m.seen[job.ID] = make(map[string]bool)
	return nil
}

func (m *Memory) Load(ctx context.Context, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneJob(j)
	cp.ProcessedResults = len(m.results[id])
	return cp, nil
}

func (m *Memory) Save(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != job.Version {
		return ErrVersionConflict
	}
	cp := cloneJob(job)
	cp.Version++
	m.jobs[job.ID] = cp
	job.Version = cp.Version
	return nil
}

func (m *Memory) AppendResults(ctx context.Context, jobID string, creators []model.CreatorResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return ErrNotFound
	}
	seen := m.seen[jobID]
	for _, c := range creators {
		if seen[c.Key()] {
			continue
		}
		seen[c.Key()] = true
		m.results[jobID] = append(m.results[jobID], c)
	}
	return nil
}

func (m *Memory) Results(ctx context.Context, jobID string) ([]model.CreatorResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.jobs[jobID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]model.CreatorResult, len(m.results[jobID]))
	copy(out, m.results[jobID])
	return out, nil
}

func (m *Memory) StaleProcessing(ctx context.Context, olderThan time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, j := range m.jobs {
		if !j.Status.IsTerminal() && j.CreatedAt.Before(olderThan) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	cp.SeedTerms = append([]string(nil), j.SeedTerms...)
	cp.AllTermsUsed = append([]string(nil), j.AllTermsUsed...)
	cp.Metrics.Batches = append([]model.KeywordBatch(nil), j.Metrics.Batches...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
