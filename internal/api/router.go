package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Get("/api/health", app.HealthHandler)

	r.Route("/api/diagnoses", func(r chi.Router) {
		r.Post("/", app.CreateDiagnosisHandler)
		r.Get("/", app.ListDiagnosesHandler)
		r.Get("/latest", app.LatestDiagnosisHandler)
		r.Get("/runs/{runID}", app.RunStatusHandler)
		r.Get("/runs/{runID}/events", app.DiagnosisEventsHandler)
		r.Post("/runs/{runID}/stop", app.StopRunHandler)
	})

	r.Post("/api/nearby-care", app.NearbyCareHandler)

	r.Get("/files/{name}", app.FileHandler)

	return r
}
