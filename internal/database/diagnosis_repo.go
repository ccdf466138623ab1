package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xrayaid/xrayaid/internal/models"
	"github.com/xrayaid/xrayaid/internal/predict"
)

var ErrDiagnosisNotFound = errors.New("diagnosis not found")

type DiagnosisRepository struct {
	db *DB
}

func NewDiagnosisRepository(db *DB) *DiagnosisRepository {
	return &DiagnosisRepository{db: db}
}

// Insert writes a record as a single atomic insert. Records are immutable;
// there is no update path.
func (r *DiagnosisRepository) Insert(ctx context.Context, rec *models.DiagnosisRecord) error {
	predictionsJSON, err := json.Marshal(rec.Predictions)
	if err != nil {
		return fmt.Errorf("failed to marshal predictions: %w", err)
	}

	query := r.db.bind(`
		INSERT INTO diagnoses (
			id, owner_id, patient_context_id, image_url, predictions,
			top_label, top_score, has_positive_finding, confidence_tier,
			heatmap_png, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.conn.ExecContext(ctx, query,
		rec.ID,
		rec.OwnerID,
		rec.PatientContextID,
		rec.ImageURL,
		string(predictionsJSON),
		rec.TopLabel,
		rec.TopScore,
		rec.HasPositiveFinding,
		string(rec.ConfidenceTier),
		nullIfEmpty(rec.HeatmapPNGBase64),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert diagnosis: %w", err)
	}
	return nil
}

func (r *DiagnosisRepository) GetByID(ctx context.Context, id string) (*models.DiagnosisRecord, error) {
	query := r.db.bind(selectColumns + ` WHERE id = ?`)
	return r.scanOne(r.db.conn.QueryRowContext(ctx, query, id))
}

// Latest returns the most recent record for an owner, or ErrDiagnosisNotFound.
func (r *DiagnosisRepository) Latest(ctx context.Context, ownerID string) (*models.DiagnosisRecord, error) {
	query := r.db.bind(selectColumns + ` WHERE owner_id = ? ORDER BY created_at DESC LIMIT 1`)
	return r.scanOne(r.db.conn.QueryRowContext(ctx, query, ownerID))
}

// ListByOwner returns an owner's records, newest first.
func (r *DiagnosisRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.DiagnosisRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := r.db.bind(selectColumns + ` WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`)
	rows, err := r.db.conn.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagnoses: %w", err)
	}
	defer rows.Close()

	var records []models.DiagnosisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

const selectColumns = `
	SELECT id, owner_id, patient_context_id, image_url, predictions,
	       top_label, top_score, has_positive_finding, confidence_tier,
	       heatmap_png, created_at
	FROM diagnoses`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *DiagnosisRepository) scanOne(row *sql.Row) (*models.DiagnosisRecord, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDiagnosisNotFound
	}
	return rec, err
}

func scanRecord(row rowScanner) (*models.DiagnosisRecord, error) {
	var rec models.DiagnosisRecord
	var predictionsJSON string
	var tier string
	var heatmap sql.NullString
	var createdAt time.Time

	err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.PatientContextID,
		&rec.ImageURL,
		&predictionsJSON,
		&rec.TopLabel,
		&rec.TopScore,
		&rec.HasPositiveFinding,
		&tier,
		&heatmap,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan diagnosis: %w", err)
	}

	if err := json.Unmarshal([]byte(predictionsJSON), &rec.Predictions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal predictions: %w", err)
	}
	rec.ConfidenceTier = predict.Tier(tier)
	rec.HeatmapPNGBase64 = heatmap.String
	rec.CreatedAt = createdAt

	return &rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
