package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"funnelforge/internal/domain"
)

type jobDTO struct {
	ID             string     `json:"id"`
	ContentGroupID string     `json:"content_group_id"`
	JobType        string     `json:"job_type"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	CurrentSection string     `json:"current_section,omitempty"`
	SectionsDone   []string   `json:"sections_done"`
	SectionsFailed []string   `json:"sections_failed"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ElapsedSeconds float64    `json:"elapsed_seconds,omitempty"`
}

func toJobDTO(j *domain.GenerationJob) jobDTO {
	dto := jobDTO{
		ID:             j.ID,
		ContentGroupID: j.ContentGroupID,
		JobType:        string(j.Type),
		Status:         string(j.Status),
		Progress:       j.Progress,
		CurrentSection: j.CurrentSection,
		SectionsDone:   emptyIfNil(j.SectionsDone),
		SectionsFailed: emptyIfNil(j.SectionsFailed),
		ErrorMessage:   j.ErrorMessage,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
	if d := j.Elapsed(); d > 0 {
		dto.ElapsedSeconds = d.Seconds()
	}
	return dto
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// JobGet returns one job's last persisted state, owner-scoped. Unknown and
// foreign jobs are both 404.
func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "id")
	job, err := a.Tracker.GetForUser(r.Context(), jobID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("load job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, toJobDTO(job))
}

// JobsByGroup lists the owner's recent jobs for one content group,
// partitioned by lifecycle phase.
func (a *App) JobsByGroup(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	groupID := chi.URLParam(r, "id")
	recent, err := a.Tracker.RecentByGroup(r.Context(), userID, groupID)
	if err != nil {
		a.Logger.Error().Err(err).Str("content_group_id", groupID).Msg("list jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"active":    toJobDTOs(recent.Active),
		"completed": toJobDTOs(recent.Completed),
		"failed":    toJobDTOs(recent.Failed),
	})
}

func toJobDTOs(list []*domain.GenerationJob) []jobDTO {
	out := make([]jobDTO, 0, len(list))
	for _, j := range list {
		out = append(out, toJobDTO(j))
	}
	return out
}
