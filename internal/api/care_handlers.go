package api

import (
	"encoding/json"
	"net/http"

	"github.com/xrayaid/xrayaid/internal/care"
	"github.com/xrayaid/xrayaid/internal/geo"
)

type nearbyCareRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Consent   bool     `json:"consent"`
}

// NearbyCareHandler ranks care facilities around the caller's position. The
// client sends its position together with an explicit consent flag; without
// consent the search never runs.
func (app *App) NearbyCareHandler(w http.ResponseWriter, r *http.Request) {
	var req nearbyCareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.respondError(w, http.StatusBadRequest, kindValidation, "invalid request body")
		return
	}

	locator := geo.ConsentLocator{Granted: req.Consent}
	if req.Latitude != nil && req.Longitude != nil {
		locator.Position = &geo.Coordinate{Lat: *req.Latitude, Lng: *req.Longitude}
	}

	recommendation, err := app.Recommender.Recommend(r.Context(), locator)
	if err != nil {
		app.Log.Error().Err(err).Msg("nearby care recommendation failed")
		app.respondError(w, http.StatusInternalServerError, kindInternal, "nearby care search failed")
		return
	}

	status := http.StatusOK
	switch recommendation.Status {
	case care.StatusDenied:
		status = http.StatusForbidden
	case care.StatusUnavailable:
		status = http.StatusServiceUnavailable
	}

	app.respondJSON(w, status, recommendation)
}
