package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/xrayaid/xrayaid/internal/care"
	"github.com/xrayaid/xrayaid/internal/database"
	"github.com/xrayaid/xrayaid/internal/diagnosis"
	"github.com/xrayaid/xrayaid/internal/predict"
	"github.com/xrayaid/xrayaid/internal/storage"
)

// App bundles the service dependencies the HTTP handlers need.
type App struct {
	Storage        storage.Storage
	DB             *database.DB
	DiagnosisRepo  *database.DiagnosisRepository
	Workflow       *diagnosis.Workflow
	Recommender    *care.Recommender
	InferenceCheck predict.HealthChecker
	MaxUploadBytes int64
	Log            zerolog.Logger
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// errorKind tells the UI which affordance to offer for a failure.
const (
	kindValidation  = "validation"
	kindUpload      = "upload"
	kindInference   = "inference"
	kindPersistence = "persistence"
	kindNotFound    = "not_found"
	kindInternal    = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (app *App) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		app.Log.Error().Err(err).Msg("encoding response")
	}
}

func (app *App) respondError(w http.ResponseWriter, status int, kind, message string) {
	app.respondJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// HealthHandler reports service health including inference backend
// reachability.
func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	type healthResponse struct {
		Status    string              `json:"status"`
		Database  string              `json:"database"`
		Inference *predict.HealthInfo `json:"inference,omitempty"`
		Error     string              `json:"inference_error,omitempty"`
	}

	resp := healthResponse{Status: "ok", Database: "ok"}

	if err := app.DB.Conn().PingContext(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
	}

	if app.InferenceCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		info, err := app.InferenceCheck.Health(ctx)
		if err != nil {
			resp.Status = "degraded"
			resp.Error = err.Error()
		} else {
			resp.Inference = info
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	app.respondJSON(w, status, resp)
}

// FileHandler serves a stored image blob. Range requests are handled by
// ServeContent.
func (app *App) FileHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		http.NotFound(w, r)
		return
	}

	file, err := app.Storage.Open(name)
	if err != nil {
		app.respondError(w, http.StatusNotFound, kindNotFound, "file not found")
		return
	}
	defer file.Close()

	modTime := time.Now()
	if statter, ok := file.(interface{ Stat() (os.FileInfo, error) }); ok {
		if stat, err := statter.Stat(); err == nil {
			modTime = stat.ModTime()
		}
	}

	http.ServeContent(w, r, name, modTime, file)
}
