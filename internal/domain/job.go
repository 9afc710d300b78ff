package domain

import "time"

// JobType identifies which content pipeline a job runs. Values match the
// content-type table rows in internal/content/plans.yaml.
type JobType string

const (
	JobTypeSMSSequence   JobType = "sms_sequence"
	JobTypeEmailSequence JobType = "email_sequence"
	JobTypeSetterScript  JobType = "setter_script"
	JobTypeLandingPage   JobType = "landing_page"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// GenerationJob represents one invocation of the content pipeline for a
// given owner and content group. Mutated only by the orchestrator; immutable
// once terminal.
type GenerationJob struct {
	ID             string
	UserID         string
	ContentGroupID string
	Type           JobType
	Status         JobStatus
	Progress       int
	CurrentSection string
	SectionsDone   []string
	SectionsFailed []string
	// Sections restricts a retry job to the named fields; empty means the
	// full partition plan.
	Sections     []string
	ContextJSON  []byte
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	// LastProgressAt lets an external supervisor detect stalled jobs.
	LastProgressAt *time.Time
}

// Terminal reports whether the job reached a final state.
func (j *GenerationJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Elapsed returns the job's total run time, or zero while it has not
// finished.
func (j *GenerationJob) Elapsed() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}
