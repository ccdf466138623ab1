package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xrayaid/xrayaid/internal/database"
	"github.com/xrayaid/xrayaid/internal/diagnosis"
	"github.com/xrayaid/xrayaid/internal/predict"
)

// CreateDiagnosisHandler accepts a multipart chest X-ray upload and starts a
// diagnosis run. The response carries the run ID; progress and the result
// arrive on the run's event stream.
func (app *App) CreateDiagnosisHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadBytes)

	if err := r.ParseMultipartForm(app.MaxUploadBytes); err != nil {
		app.respondError(w, http.StatusRequestEntityTooLarge, kindValidation, "image too large")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		app.respondError(w, http.StatusBadRequest, kindValidation, "image file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".png":
			contentType = "image/png"
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		app.respondError(w, http.StatusBadRequest, kindValidation, "reading image")
		return
	}

	input := diagnosis.RunInput{
		OwnerID:          r.FormValue("owner_id"),
		PatientContextID: r.FormValue("patient_id"),
		Filename:         header.Filename,
		ContentType:      contentType,
		Data:             data,
	}

	run, err := app.Workflow.Start(r.Context(), input)
	if err != nil {
		var valErr *diagnosis.ValidationError
		if errors.As(err, &valErr) {
			app.respondError(w, http.StatusBadRequest, kindValidation, valErr.Reason)
			return
		}
		app.Log.Error().Err(err).Msg("starting diagnosis run")
		app.respondError(w, http.StatusInternalServerError, kindInternal, "failed to start diagnosis")
		return
	}

	app.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id": run.ID,
		"state":  run.State(),
	})
}

// DiagnosisEventsHandler streams a run's updates over SSE until the run
// reaches a terminal state or the client disconnects.
func (app *App) DiagnosisEventsHandler(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, exists := app.Workflow.GetRun(runID)
	if !exists {
		app.respondError(w, http.StatusNotFound, kindNotFound, "run not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientGone := r.Context().Done()

	for {
		select {
		case update, ok := <-run.Updates:
			if !ok {
				return
			}

			data, err := json.Marshal(update.Data)
			if err != nil {
				app.Log.Error().Err(err).Str("type", update.Type).Msg("marshaling run update")
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, string(data))
			flusher.Flush()

		case <-clientGone:
			return
		}
	}
}

// RunStatusHandler reports the current state of a run, for clients that poll
// instead of streaming.
func (app *App) RunStatusHandler(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, exists := app.Workflow.GetRun(runID)
	if !exists {
		app.respondError(w, http.StatusNotFound, kindNotFound, "run not found")
		return
	}

	payload := map[string]interface{}{
		"run_id":   run.ID,
		"state":    run.State(),
		"progress": run.Progress(),
	}

	if result := run.Result(); result != nil {
		payload["record"] = result.Record
		payload["saved"] = result.Saved
		if result.SaveErr != nil {
			payload["save_error"] = result.SaveErr.Error()
		}
	}
	if err := run.Err(); err != nil {
		payload["error"] = err.Error()
		payload["kind"] = failureKind(err)
	}

	app.respondJSON(w, http.StatusOK, payload)
}

// StopRunHandler cancels an in-flight run.
func (app *App) StopRunHandler(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if err := app.Workflow.Stop(runID); err != nil {
		app.respondError(w, http.StatusNotFound, kindNotFound, "run not found")
		return
	}

	app.respondJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// LatestDiagnosisHandler returns the owner's most recent saved record.
func (app *App) LatestDiagnosisHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		app.respondError(w, http.StatusBadRequest, kindValidation, "owner_id is required")
		return
	}

	record, err := app.DiagnosisRepo.Latest(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, database.ErrDiagnosisNotFound) {
			app.respondError(w, http.StatusNotFound, kindNotFound, "no diagnoses for owner")
			return
		}
		app.Log.Error().Err(err).Msg("loading latest diagnosis")
		app.respondError(w, http.StatusInternalServerError, kindInternal, "failed to load diagnosis")
		return
	}

	app.respondJSON(w, http.StatusOK, record)
}

// ListDiagnosesHandler returns the owner's past records, newest first.
func (app *App) ListDiagnosesHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		app.respondError(w, http.StatusBadRequest, kindValidation, "owner_id is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			app.respondError(w, http.StatusBadRequest, kindValidation, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := app.DiagnosisRepo.ListByOwner(r.Context(), ownerID, limit)
	if err != nil {
		app.Log.Error().Err(err).Msg("listing diagnoses")
		app.respondError(w, http.StatusInternalServerError, kindInternal, "failed to list diagnoses")
		return
	}

	app.respondJSON(w, http.StatusOK, map[string]interface{}{
		"diagnoses": records,
		"count":     len(records),
	})
}

func failureKind(err error) string {
	var (
		valErr *diagnosis.ValidationError
		upErr  *diagnosis.UploadError
		infErr *predict.InferenceError
		perErr *diagnosis.PersistenceError
	)
	switch {
	case errors.As(err, &valErr):
		return kindValidation
	case errors.As(err, &upErr):
		return kindUpload
	case errors.As(err, &infErr):
		return kindInference
	case errors.As(err, &perErr):
		return kindPersistence
	default:
		return kindInternal
	}
}
