package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"funnelforge/internal/content"
	"funnelforge/internal/domain"
	"funnelforge/internal/jobs"
	"funnelforge/internal/middleware"
	"funnelforge/internal/status"
)

// App bundles the handlers' collaborators.
type App struct {
	Jobs     domain.JobRepository
	Tracker  *jobs.Tracker
	Reporter *status.Reporter
	Registry *content.Registry
	Validate *validator.Validate
	Logger   zerolog.Logger
}

func NewApp(jobsRepo domain.JobRepository, tracker *jobs.Tracker, reporter *status.Reporter, registry *content.Registry, logger zerolog.Logger) *App {
	return &App{
		Jobs:     jobsRepo,
		Tracker:  tracker,
		Reporter: reporter,
		Registry: registry,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Logger:   logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]any{
		"error":   slug,
		"message": message,
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
