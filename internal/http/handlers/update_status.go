package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// UpdateStatus reports a content group's recent version writes so the client
// can show and clear an "updating" indicator.
func (a *App) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	groupID := chi.URLParam(r, "id")
	summary, err := a.Reporter.UpdateStatus(r.Context(), groupID)
	if err != nil {
		a.Logger.Error().Err(err).Str("content_group_id", groupID).Msg("update status failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load update status")
		return
	}
	a.json(w, http.StatusOK, summary)
}
