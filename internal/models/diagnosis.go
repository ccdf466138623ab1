package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/xrayaid/xrayaid/internal/predict"
)

// DiagnosisRecord is the persisted outcome of one completed workflow run.
// Records are never mutated; a re-run produces a new record.
type DiagnosisRecord struct {
	ID                 string               `json:"id"`
	OwnerID            string               `json:"owner_id"`
	PatientContextID   string               `json:"patient_context_id"`
	ImageURL           string               `json:"image_url"`
	Predictions        []predict.Prediction `json:"predictions"`
	TopLabel           string               `json:"top_label"`
	TopScore           float64              `json:"top_score"`
	HasPositiveFinding bool                 `json:"has_positive_finding"`
	ConfidenceTier     predict.Tier         `json:"confidence_tier"`
	HeatmapPNGBase64   string               `json:"heatmap_png_base64,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
}

// NewDiagnosisRecord assembles a record from a finished inference result.
func NewDiagnosisRecord(ownerID, patientContextID, imageURL string, result *predict.Result, positiveThreshold, highRiskThreshold float64) *DiagnosisRecord {
	set := result.Predictions
	return &DiagnosisRecord{
		ID:                 uuid.New().String(),
		OwnerID:            ownerID,
		PatientContextID:   patientContextID,
		ImageURL:           imageURL,
		Predictions:        set.Entries(),
		TopLabel:           set.TopLabel(),
		TopScore:           set.TopScore(),
		HasPositiveFinding: set.HasPositiveFinding(positiveThreshold),
		ConfidenceTier:     set.ConfidenceTier(positiveThreshold, highRiskThreshold),
		HeatmapPNGBase64:   result.HeatmapPNGBase64,
		CreatedAt:          time.Now().UTC(),
	}
}
