package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"funnelforge/internal/domain"
)

type generateRequest struct {
	JobType        string         `json:"job_type" validate:"required"`
	ContentGroupID string         `json:"content_group_id" validate:"required"`
	Context        map[string]any `json:"context"`
}

type retryRequest struct {
	JobType        string   `json:"job_type" validate:"required"`
	ContentGroupID string   `json:"content_group_id" validate:"required"`
	Sections       []string `json:"sections"`
	Force          bool     `json:"force"`
}

type enqueueResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// GenerationsCreate accepts a generation request and enqueues a job for the
// worker. The response carries the job id for polling.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if !a.Registry.Has(req.JobType) {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown job type")
		return
	}
	job, err := a.enqueueJob(r, userID, req.JobType, req.ContentGroupID, req.Context, nil)
	if err != nil {
		a.Logger.Error().Err(err).Msg("enqueue generation failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to enqueue generation")
		return
	}
	a.json(w, http.StatusAccepted, enqueueResponse{JobID: job.ID, Status: string(job.Status)})
}

// GenerationsRetry enqueues a job restricted to previously failed sections.
// Sections defaults to the latest job's failed list; force regenerates the
// full plan.
func (a *App) GenerationsRetry(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req retryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if !a.Registry.Has(req.JobType) {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown job type")
		return
	}

	prev, err := a.Jobs.LatestByGroupType(r.Context(), userID, req.ContentGroupID, domain.JobType(req.JobType))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no previous generation for this content group")
			return
		}
		a.Logger.Error().Err(err).Msg("load previous job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to enqueue retry")
		return
	}

	sections := req.Sections
	if req.Force {
		sections = nil
	} else if len(sections) == 0 {
		sections = prev.SectionsFailed
		if len(sections) == 0 {
			a.error(w, http.StatusConflict, "nothing_to_retry", "previous generation has no failed sections")
			return
		}
	}

	var prevCtx map[string]any
	if len(prev.ContextJSON) > 0 {
		_ = json.Unmarshal(prev.ContextJSON, &prevCtx)
	}
	job, err := a.enqueueJob(r, userID, req.JobType, req.ContentGroupID, prevCtx, sections)
	if err != nil {
		a.Logger.Error().Err(err).Msg("enqueue retry failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to enqueue retry")
		return
	}
	a.json(w, http.StatusAccepted, enqueueResponse{JobID: job.ID, Status: string(job.Status)})
}

func (a *App) enqueueJob(r *http.Request, userID, jobType, groupID string, bizCtx map[string]any, sections []string) (*domain.GenerationJob, error) {
	var ctxJSON []byte
	if len(bizCtx) > 0 {
		b, err := json.Marshal(bizCtx)
		if err != nil {
			return nil, err
		}
		ctxJSON = b
	}
	job := &domain.GenerationJob{
		ID:             uuid.NewString(),
		UserID:         userID,
		ContentGroupID: groupID,
		Type:           domain.JobType(jobType),
		Status:         domain.JobStatusQueued,
		Sections:       sections,
		ContextJSON:    ctxJSON,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		return nil, err
	}
	return job, nil
}
