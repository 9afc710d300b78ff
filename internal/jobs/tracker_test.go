package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelforge/internal/domain"
)

type fakeJobRepo struct {
	jobs map[string]*domain.GenerationJob
}

func newFakeJobRepo(jobs ...*domain.GenerationJob) *fakeJobRepo {
	r := &fakeJobRepo{jobs: make(map[string]*domain.GenerationJob)}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *fakeJobRepo) Create(_ context.Context, job *domain.GenerationJob) error {
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeJobRepo) GetByIDForUser(_ context.Context, jobID, userID string) (*domain.GenerationJob, error) {
	j, ok := r.jobs[jobID]
	if !ok || j.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (r *fakeJobRepo) ClaimNext(context.Context) (*domain.GenerationJob, error) {
	for _, j := range r.jobs {
		if j.Status == domain.JobStatusQueued {
			j.Status = domain.JobStatusProcessing
			return j, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeJobRepo) UpdateProgress(_ context.Context, jobID string, progress int, currentSection string, done, failed []string, at time.Time) error {
	j := r.jobs[jobID]
	if j == nil || j.Terminal() {
		return nil
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	j.CurrentSection = currentSection
	j.SectionsDone = done
	j.SectionsFailed = failed
	j.LastProgressAt = &at
	return nil
}

func (r *fakeJobRepo) Complete(_ context.Context, jobID string, done, failed []string, at time.Time) error {
	j := r.jobs[jobID]
	j.Status = domain.JobStatusCompleted
	j.Progress = 100
	j.SectionsDone = done
	j.SectionsFailed = failed
	j.CompletedAt = &at
	return nil
}

func (r *fakeJobRepo) Fail(_ context.Context, jobID string, errMsg string, at time.Time) error {
	j := r.jobs[jobID]
	j.Status = domain.JobStatusFailed
	j.ErrorMessage = errMsg
	j.CompletedAt = &at
	return nil
}

func (r *fakeJobRepo) ListRecentByGroup(_ context.Context, userID, groupID string, since time.Time) ([]*domain.GenerationJob, error) {
	var out []*domain.GenerationJob
	for _, j := range r.jobs {
		if j.UserID == userID && j.ContentGroupID == groupID && !j.CreatedAt.Before(since) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) LatestByGroupType(_ context.Context, userID, groupID string, jobType domain.JobType) (*domain.GenerationJob, error) {
	var latest *domain.GenerationJob
	for _, j := range r.jobs {
		if j.UserID != userID || j.ContentGroupID != groupID || j.Type != jobType {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

var _ domain.JobRepository = (*fakeJobRepo)(nil)

func processingJob(id string) *domain.GenerationJob {
	return &domain.GenerationJob{
		ID:             id,
		UserID:         "user-1",
		ContentGroupID: "group-1",
		Type:           domain.JobTypeSMSSequence,
		Status:         domain.JobStatusProcessing,
		CreatedAt:      time.Now(),
	}
}

func testTracker(repo domain.JobRepository, now time.Time) *Tracker {
	return NewTrackerWithClock(repo, zerolog.Nop(), func() time.Time { return now })
}

func TestProgressNeverDecreases(t *testing.T) {
	job := processingJob("job-1")
	repo := newFakeJobRepo(job)
	tr := testTracker(repo, time.Now())
	ctx := context.Background()

	require.NoError(t, tr.Progress(ctx, job, 3, 4, "chunk-c", []string{"a", "b", "c"}, nil))
	assert.Equal(t, 75, job.Progress)

	// A late settlement report with a smaller numerator must not move the
	// percentage backwards.
	require.NoError(t, tr.Progress(ctx, job, 2, 4, "chunk-b", []string{"a", "b"}, nil))
	assert.Equal(t, 75, job.Progress)

	require.NoError(t, tr.Progress(ctx, job, 4, 4, "chunk-d", []string{"a", "b", "c", "d"}, nil))
	assert.Equal(t, 100, job.Progress)
}

func TestProgressRecordsSettlementOrder(t *testing.T) {
	job := processingJob("job-1")
	tr := testTracker(newFakeJobRepo(job), time.Now())

	require.NoError(t, tr.Progress(context.Background(), job, 1, 2, "messages-6-10", []string{"message_6"}, nil))
	assert.Equal(t, "messages-6-10", job.CurrentSection)
	assert.Equal(t, 50, job.Progress)
	assert.NotNil(t, job.LastProgressAt)
}

func TestTerminalJobsAreImmutable(t *testing.T) {
	job := processingJob("job-1")
	repo := newFakeJobRepo(job)
	tr := testTracker(repo, time.Now())
	ctx := context.Background()

	require.NoError(t, tr.Complete(ctx, job, []string{"a"}, nil))
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)

	assert.ErrorIs(t, tr.Progress(ctx, job, 1, 2, "x", nil, nil), domain.ErrJobTerminal)
	assert.ErrorIs(t, tr.Complete(ctx, job, nil, nil), domain.ErrJobTerminal)
	assert.ErrorIs(t, tr.Fail(ctx, job, "late failure"), domain.ErrJobTerminal)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
}

func TestFailKeepsLastKnownProgress(t *testing.T) {
	job := processingJob("job-1")
	tr := testTracker(newFakeJobRepo(job), time.Now())
	ctx := context.Background()

	require.NoError(t, tr.Progress(ctx, job, 1, 2, "chunk-a", []string{"a"}, nil))
	require.NoError(t, tr.Fail(ctx, job, "provider unreachable"))
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 50, job.Progress)
	assert.Equal(t, "provider unreachable", job.ErrorMessage)
	assert.NotNil(t, job.CompletedAt)
}

func TestGetForUserScopesOwnership(t *testing.T) {
	job := processingJob("job-1")
	tr := testTracker(newFakeJobRepo(job), time.Now())
	ctx := context.Background()

	got, err := tr.GetForUser(ctx, "job-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = tr.GetForUser(ctx, "job-1", "someone-else")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecentByGroupPartitionsAndWindows(t *testing.T) {
	now := time.Now()
	old := processingJob("old")
	old.Status = domain.JobStatusCompleted
	old.CreatedAt = now.Add(-RecentWindow - time.Minute)

	active := processingJob("active")
	active.CreatedAt = now.Add(-time.Minute)

	completed := processingJob("completed")
	completed.Status = domain.JobStatusCompleted
	completed.CreatedAt = now.Add(-2 * time.Minute)

	failed := processingJob("failed")
	failed.Status = domain.JobStatusFailed
	failed.CreatedAt = now.Add(-3 * time.Minute)

	queued := processingJob("queued")
	queued.Status = domain.JobStatusQueued
	queued.CreatedAt = now.Add(-time.Second)

	tr := testTracker(newFakeJobRepo(old, active, completed, failed, queued), now)
	got, err := tr.RecentByGroup(context.Background(), "user-1", "group-1")
	require.NoError(t, err)

	assert.Len(t, got.Active, 2) // queued and processing count as active
	assert.Len(t, got.Completed, 1)
	assert.Len(t, got.Failed, 1)
	assert.Equal(t, "completed", got.Completed[0].ID)
}
