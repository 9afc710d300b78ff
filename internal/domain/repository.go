package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for generation jobs.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	// GetByIDForUser resolves a job by id scoped to its owner. A job owned
	// by another user is reported as ErrNotFound, never as a distinct
	// forbidden error, so non-owners cannot confirm a job's existence.
	GetByIDForUser(ctx context.Context, jobID, userID string) (*GenerationJob, error)
	// ClaimNext atomically claims the oldest queued job and moves it to
	// processing. Returns ErrNotFound when the queue is empty.
	ClaimNext(ctx context.Context) (*GenerationJob, error)
	// UpdateProgress persists settlement-order progress for a processing
	// job. It has no effect on terminal jobs.
	UpdateProgress(ctx context.Context, jobID string, progress int, currentSection string, done, failed []string, at time.Time) error
	Complete(ctx context.Context, jobID string, done, failed []string, at time.Time) error
	Fail(ctx context.Context, jobID string, errMsg string, at time.Time) error
	// ListRecentByGroup returns the owner's jobs for a content group created
	// at or after since, newest first.
	ListRecentByGroup(ctx context.Context, userID, groupID string, since time.Time) ([]*GenerationJob, error)
	// LatestByGroupType returns the owner's most recent job for one content
	// group and job type, or ErrNotFound.
	LatestByGroupType(ctx context.Context, userID, groupID string, jobType JobType) (*GenerationJob, error)
}

// VersionRepository defines persistence for content version records.
type VersionRepository interface {
	// Current returns the current version for (group, content type), or
	// ErrNotFound when nothing has been generated yet.
	Current(ctx context.Context, groupID string, contentType JobType) (*ContentVersion, error)
	// Promote writes a new version and flips it to current atomically,
	// demoting the previous current version in the same transaction.
	Promote(ctx context.Context, groupID string, contentType JobType, contentJSON []byte, contentHash string) (*ContentVersion, error)
	// RecentUpdates returns versions of the group written at or after since,
	// newest first.
	RecentUpdates(ctx context.Context, groupID string, since time.Time) ([]*ContentVersion, error)
}
