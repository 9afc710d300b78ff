package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"funnelforge/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, user_id, content_group_id, job_type, status, progress, current_section,
sections_done, sections_failed, sections, context_json, error_message,
created_at, started_at, completed_at, last_progress_at`

// Create inserts a new queued job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	query := `
INSERT INTO generation_jobs (id, user_id, content_group_id, job_type, status, progress, sections, context_json)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.ContentGroupID,
		job.Type,
		job.Status,
		job.Progress,
		textArray(job.Sections),
		nullableBytes(job.ContextJSON),
	)
	return err
}

// GetByIDForUser fetches a job scoped to its owner. Mismatched ownership is
// indistinguishable from a missing job.
func (r *JobRepositoryPG) GetByIDForUser(ctx context.Context, jobID, userID string) (*domain.GenerationJob, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM generation_jobs
WHERE id = $1 AND user_id = $2;
`, jobColumns)
	return r.scanJob(r.pool.QueryRow(ctx, query, jobID, userID))
}

// ClaimNext claims the oldest queued job, moving it to processing in the
// same statement so competing workers never double-claim.
func (r *JobRepositoryPG) ClaimNext(ctx context.Context) (*domain.GenerationJob, error) {
	query := fmt.Sprintf(`
WITH next_job AS (
    SELECT id
    FROM generation_jobs
    WHERE status = 'queued'
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
),
claimed AS (
    UPDATE generation_jobs
    SET status = 'processing', started_at = now(), last_progress_at = now()
    WHERE id IN (SELECT id FROM next_job)
    RETURNING %s
)
SELECT * FROM claimed;
`, jobColumns)
	return r.scanJob(r.pool.QueryRow(ctx, query))
}

// UpdateProgress persists one settled chunk's bookkeeping. The status guard
// keeps terminal jobs immutable even under a racing supervisor.
func (r *JobRepositoryPG) UpdateProgress(ctx context.Context, jobID string, progress int, currentSection string, done, failed []string, at time.Time) error {
	query := `
UPDATE generation_jobs
SET progress = GREATEST(progress, $2),
    current_section = $3,
    sections_done = $4,
    sections_failed = $5,
    last_progress_at = $6
WHERE id = $1 AND status = 'processing';
`
	_, err := r.pool.Exec(ctx, query, jobID, progress, currentSection, textArray(done), textArray(failed), at)
	return err
}

// Complete moves a processing job to completed.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID string, done, failed []string, at time.Time) error {
	query := `
UPDATE generation_jobs
SET status = 'completed',
    progress = 100,
    sections_done = $2,
    sections_failed = $3,
    error_message = '',
    completed_at = $4,
    last_progress_at = $4
WHERE id = $1 AND status = 'processing';
`
	_, err := r.pool.Exec(ctx, query, jobID, textArray(done), textArray(failed), at)
	return err
}

// Fail moves a processing job to failed, keeping its last known progress.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID string, errMsg string, at time.Time) error {
	query := `
UPDATE generation_jobs
SET status = 'failed',
    error_message = $2,
    completed_at = $3,
    last_progress_at = $3
WHERE id = $1 AND status = 'processing';
`
	_, err := r.pool.Exec(ctx, query, jobID, errMsg, at)
	return err
}

// ListRecentByGroup returns the owner's jobs for one content group created
// at or after since, newest first.
func (r *JobRepositoryPG) ListRecentByGroup(ctx context.Context, userID, groupID string, since time.Time) ([]*domain.GenerationJob, error) {
	query, args, err := sq.Select(jobColumns).
		From("generation_jobs").
		Where(sq.Eq{"user_id": userID, "content_group_id": groupID}).
		Where(sq.GtOrEq{"created_at": since}).
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent jobs query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.GenerationJob
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// LatestByGroupType returns the owner's most recent job for one content
// group and job type.
func (r *JobRepositoryPG) LatestByGroupType(ctx context.Context, userID, groupID string, jobType domain.JobType) (*domain.GenerationJob, error) {
	query, args, err := sq.Select(jobColumns).
		From("generation_jobs").
		Where(sq.Eq{"user_id": userID, "content_group_id": groupID, "job_type": jobType}).
		OrderBy("created_at DESC").
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest job query: %w", err)
	}
	return r.scanJob(r.pool.QueryRow(ctx, query, args...))
}

func (r *JobRepositoryPG) scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.ContentGroupID,
		&job.Type,
		&job.Status,
		&job.Progress,
		&job.CurrentSection,
		&job.SectionsDone,
		&job.SectionsFailed,
		&job.Sections,
		&job.ContextJSON,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.LastProgressAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
