// Package jobs tracks generation jobs through their lifecycle state machine:
// queued -> processing -> {completed | failed}. Terminal states are final.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"funnelforge/internal/domain"
)

// RecentWindow bounds "active/recent jobs" listings so poll results do not
// grow without limit. Older records stay persisted, they just drop out of
// the listing.
const RecentWindow = 10 * time.Minute

// Tracker owns all mutations of a job's state fields. Reads are owner-scoped
// and report foreign jobs as not-found.
type Tracker struct {
	repo   domain.JobRepository
	logger zerolog.Logger
	now    func() time.Time
}

func NewTracker(repo domain.JobRepository, logger zerolog.Logger) *Tracker {
	return &Tracker{repo: repo, logger: logger, now: time.Now}
}

// NewTrackerWithClock is for tests that need deterministic timestamps.
func NewTrackerWithClock(repo domain.JobRepository, logger zerolog.Logger, now func() time.Time) *Tracker {
	return &Tracker{repo: repo, logger: logger, now: now}
}

// Progress records one settled chunk. The percentage is derived from settled
// vs total chunks and clamped so it never decreases while the job is
// processing; the current-section label reflects the most recently settled
// chunk, which under concurrency is not necessarily plan order.
func (t *Tracker) Progress(ctx context.Context, job *domain.GenerationJob, settled, total int, section string, done, failed []string) error {
	if job.Terminal() {
		return domain.ErrJobTerminal
	}
	if total <= 0 {
		return fmt.Errorf("progress: total chunks must be positive")
	}
	pct := settled * 100 / total
	if pct < job.Progress {
		pct = job.Progress
	}
	now := t.now()
	job.Status = domain.JobStatusProcessing
	job.Progress = pct
	job.CurrentSection = section
	job.SectionsDone = done
	job.SectionsFailed = failed
	job.LastProgressAt = &now
	return t.repo.UpdateProgress(ctx, job.ID, pct, section, done, failed, now)
}

// Complete moves the job to its completed terminal state. Sections that
// failed stay recorded so the caller can target a retry.
func (t *Tracker) Complete(ctx context.Context, job *domain.GenerationJob, done, failed []string) error {
	if job.Terminal() {
		return domain.ErrJobTerminal
	}
	now := t.now()
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.SectionsDone = done
	job.SectionsFailed = failed
	job.ErrorMessage = ""
	job.CompletedAt = &now
	if err := t.repo.Complete(ctx, job.ID, done, failed, now); err != nil {
		return err
	}
	t.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Int("sections_failed", len(failed)).
		Msg("job completed")
	return nil
}

// Fail moves the job to its failed terminal state. Progress keeps its last
// known value rather than being forced to 0 or 100.
func (t *Tracker) Fail(ctx context.Context, job *domain.GenerationJob, errMsg string) error {
	if job.Terminal() {
		return domain.ErrJobTerminal
	}
	now := t.now()
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errMsg
	job.CompletedAt = &now
	if err := t.repo.Fail(ctx, job.ID, errMsg, now); err != nil {
		return err
	}
	t.logger.Warn().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Str("error", errMsg).
		Msg("job failed")
	return nil
}

// GetForUser returns the owner's job by id; a foreign or unknown id is
// domain.ErrNotFound.
func (t *Tracker) GetForUser(ctx context.Context, jobID, userID string) (*domain.GenerationJob, error) {
	return t.repo.GetByIDForUser(ctx, jobID, userID)
}

// RecentJobs partitions an owner's recent jobs for one content group by
// lifecycle phase.
type RecentJobs struct {
	Active    []*domain.GenerationJob
	Completed []*domain.GenerationJob
	Failed    []*domain.GenerationJob
}

// RecentByGroup lists the owner's jobs for a content group created within
// the recency window, partitioned into active/completed/failed.
func (t *Tracker) RecentByGroup(ctx context.Context, userID, groupID string) (RecentJobs, error) {
	since := t.now().Add(-RecentWindow)
	list, err := t.repo.ListRecentByGroup(ctx, userID, groupID, since)
	if err != nil {
		return RecentJobs{}, err
	}
	var out RecentJobs
	for _, j := range list {
		switch j.Status {
		case domain.JobStatusCompleted:
			out.Completed = append(out.Completed, j)
		case domain.JobStatusFailed:
			out.Failed = append(out.Failed, j)
		default:
			out.Active = append(out.Active, j)
		}
	}
	return out, nil
}
