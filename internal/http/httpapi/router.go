package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"funnelforge/internal/cache"
	"funnelforge/internal/http/handlers"
	"funnelforge/internal/metrics"
	"funnelforge/internal/middleware"
)

// NewRouter wires the polling and retry surface. Everything except health
// and the scrape endpoint requires a bearer token.
func NewRouter(app *handlers.App, jwtSecret string, authCache cache.Cache) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer, chimw.Logger)

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthBearer(jwtSecret, authCache))

		r.Route("/v1/generations", func(r chi.Router) {
			r.Post("/", app.GenerationsCreate)
			r.Post("/retry", app.GenerationsRetry)
		})

		r.Get("/v1/jobs/{id}", app.JobGet)

		r.Route("/v1/content-groups/{id}", func(r chi.Router) {
			r.Get("/jobs", app.JobsByGroup)
			r.Get("/update-status", app.UpdateStatus)
		})
	})

	return r
}
