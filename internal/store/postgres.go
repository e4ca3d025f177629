package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"creatorscout/internal/model"
)

// Postgres implements JobStore on a pgx pool.
//
// Expected schema (managed outside this service):
//
//	search_jobs(id uuid pk, platform text, search_type text,
//	    seed_terms text[], all_terms_used text[],
//	    target_results int, status text, expansion_runs int,
//	    tick_count int, failed_ticks int, metrics jsonb,
//	    version int, created_at timestamptz, completed_at timestamptz)
//	search_results(job_id uuid, platform text, handle text,
//	    payload jsonb, created_at timestamptz default now(),
//	    primary key (job_id, platform, handle))
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect opens and pings a pool.
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Create(ctx context.Context, job *model.Job) error {
	metrics, err := json.Marshal(job.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO search_jobs
		   (id, platform, search_type, seed_terms, all_terms_used,
		    target_results, status, expansion_runs, tick_count, failed_ticks,
		    metrics, version, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,$12,$13)`,
		job.ID, string(job.Platform), string(job.SearchType),
		job.SeedTerms, job.AllTermsUsed,
		job.TargetResults, string(job.Status), job.ExpansionRuns,
		job.TickCount, job.FailedTicks, string(metrics), job.Version, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Load reads the job row and recomputes ProcessedResults from the
// results table, so a crash between AppendResults and Save can never
// double count on the retried tick.
func (p *Postgres) Load(ctx context.Context, id string) (*model.Job, error) {
	var (
		j        model.Job
		platform string
		sType    string
		status   string
		metrics  []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT j.id, j.platform, j.search_type, j.seed_terms, j.all_terms_used,
		        j.target_results, j.status, j.expansion_runs, j.tick_count,
		        j.failed_ticks, j.metrics, j.version, j.created_at, j.completed_at,
		        (SELECT COUNT(*) FROM search_results r WHERE r.job_id = j.id)
		 FROM search_jobs j
		 WHERE j.id = $1`,
		id,
	).Scan(
		&j.ID, &platform, &sType, &j.SeedTerms, &j.AllTermsUsed,
		&j.TargetResults, &status, &j.ExpansionRuns, &j.TickCount,
		&j.FailedTicks, &metrics, &j.Version, &j.CreatedAt, &j.CompletedAt,
		&j.ProcessedResults,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load job: %w", err)
	}

	j.Platform = model.Platform(platform)
	j.SearchType = model.SearchType(sType)
	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	j.Status = st
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &j.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}
	return &j, nil
}

func (p *Postgres) Save(ctx context.Context, job *model.Job) error {
	metrics, err := json.Marshal(job.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE search_jobs
		 SET all_terms_used = $1, status = $2, expansion_runs = $3,
		     tick_count = $4, failed_ticks = $5, metrics = $6::jsonb,
		     completed_at = $7, version = version + 1
		 WHERE id = $8 AND version = $9`,
		job.AllTermsUsed, string(job.Status), job.ExpansionRuns,
		job.TickCount, job.FailedTicks, string(metrics),
		job.CompletedAt, job.ID, job.Version,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or another tick advanced it first.
		if _, loadErr := p.Load(ctx, job.ID); loadErr != nil {
			return loadErr
		}
		return ErrVersionConflict
	}
	job.Version++
	return nil
}

// AppendResults inserts accepted creators, skipping duplicates by the
// (job_id, platform, handle) primary key so redelivered ticks are safe.
func (p *Postgres) AppendResults(ctx context.Context, jobID string, creators []model.CreatorResult) error {
	if len(creators) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range creators {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal creator %s: %w", c.Handle, err)
		}
		batch.Queue(
			`INSERT INTO search_results (job_id, platform, handle, payload)
			 VALUES ($1, $2, $3, $4::jsonb)
			 ON CONFLICT (job_id, platform, handle) DO NOTHING`,
			jobID, string(c.Platform), c.Handle, string(payload),
		)
	}
	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range creators {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("append results: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Results(ctx context.Context, jobID string) ([]model.CreatorResult, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT payload FROM search_results WHERE job_id = $1 ORDER BY created_at, handle`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []model.CreatorResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var c model.CreatorResult
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) StaleProcessing(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id FROM search_jobs
		 WHERE status IN ('PENDING', 'PROCESSING') AND created_at < $1`,
		olderThan,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale job: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
