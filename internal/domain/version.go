package domain

import "time"

// ContentVersion is one stored version of a content group's generated
// document for one content type. At most one version per (content group,
// content type) is current at any time; the repository enforces this
// transactionally.
type ContentVersion struct {
	ID             string
	ContentGroupID string
	ContentType    JobType
	Version        int
	IsCurrent      bool
	ContentJSON    []byte
	ContentHash    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
