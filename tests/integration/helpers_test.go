package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xrayaid/xrayaid/internal/api"
	"github.com/xrayaid/xrayaid/internal/care"
	"github.com/xrayaid/xrayaid/internal/database"
	"github.com/xrayaid/xrayaid/internal/diagnosis"
	"github.com/xrayaid/xrayaid/internal/predict"
	"github.com/xrayaid/xrayaid/internal/storage"
)

type TestServer struct {
	Server  *httptest.Server
	App     *api.App
	DB      *database.DB
	Repo    *database.DiagnosisRepository
	Storage storage.Storage
	TempDir string
}

// fixedPredictor returns the same result for every image.
type fixedPredictor struct {
	result *predict.Result
}

func (p *fixedPredictor) Predict(ctx context.Context, image []byte, contentType string) (*predict.Result, error) {
	return p.result, nil
}

func pneumoniaPredictor(t *testing.T, score float64) *fixedPredictor {
	set, err := predict.NewPredictionSet(
		[]string{"Pneumonia", "Atelectasis", "Cardiomegaly"},
		[]float64{score, 0.08, 0.05})
	if err != nil {
		t.Fatalf("Failed to build prediction set: %v", err)
	}
	return &fixedPredictor{result: &predict.Result{Predictions: set}}
}

func setupTestServer(t *testing.T, predictor predict.Client) *TestServer {
	tempDir, err := os.MkdirTemp("", "xrayaid_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	uploadDir := filepath.Join(tempDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		t.Fatalf("Failed to create upload dir: %v", err)
	}

	localStorage, err := storage.NewLocalStorage(uploadDir, "/files")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	db, err := database.NewDB(database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(tempDir, "test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	repo := database.NewDiagnosisRepository(db)
	workflow := diagnosis.NewWorkflow(localStorage, predictor, repo, diagnosis.Config{}, zerolog.Nop())

	lat1, lng1 := 0.0, 0.1
	lat2, lng2 := 0.0, 0.3
	provider := care.NewStaticProvider([]care.RawFacility{
		{ID: "near", Name: "Near Hospital", Address: "1 Close Rd", Lat: &lat1, Lng: &lng1},
		{ID: "far", Name: "Far Hospital", Address: "2 Distant Rd", Lat: &lat2, Lng: &lng2},
	})
	chain := care.NewChain([]care.Provider{provider}, time.Minute, zerolog.Nop())
	recommender := care.NewRecommender(chain, care.RecommenderConfig{RadiusKm: 50, TopN: 5}, zerolog.Nop())

	app := &api.App{
		Storage:        localStorage,
		DB:             db,
		DiagnosisRepo:  repo,
		Workflow:       workflow,
		Recommender:    recommender,
		MaxUploadBytes: 10 * 1024 * 1024,
		Log:            zerolog.Nop(),
	}

	router := api.NewRouter(app)
	server := httptest.NewServer(router)

	return &TestServer{
		Server:  server,
		App:     app,
		DB:      db,
		Repo:    repo,
		Storage: localStorage,
		TempDir: tempDir,
	}
}

func (ts *TestServer) Cleanup() {
	ts.Server.Close()
	ts.DB.Close()
	os.RemoveAll(ts.TempDir)
}

func createMultipartImage(ownerID, patientID, filename string, content []byte) (*bytes.Buffer, string, error) {
	return createMultipartFile(ownerID, patientID, filename, "image/png", content)
}

func createMultipartFile(ownerID, patientID, filename, mimeType string, content []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(content)); err != nil {
		return nil, "", err
	}

	if err := writer.WriteField("owner_id", ownerID); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("patient_id", patientID); err != nil {
		return nil, "", err
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

func countDiagnosesInDB(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM diagnoses").Scan(&count)
	return count, err
}

// uploadTestImage posts a fake X-ray and returns the run ID.
func uploadTestImage(t *testing.T, server string, ownerID string) string {
	content := []byte("fake png content for testing")
	body, contentType, err := createMultipartImage(ownerID, "patient-1", "scan.png", content)
	if err != nil {
		t.Fatalf("Failed to create multipart upload: %v", err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/api/diagnoses", server), contentType, body)
	if err != nil {
		t.Fatalf("Failed to upload image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected 202, got %d: %s", resp.StatusCode, raw)
	}

	var created struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if created.RunID == "" {
		t.Fatal("Expected a run ID in the response")
	}

	return created.RunID
}

// waitForRun polls the run status endpoint until the run finishes.
func waitForRun(t *testing.T, server, runID string) map[string]interface{} {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("%s/api/diagnoses/runs/%s", server, runID))
		if err != nil {
			t.Fatalf("Failed to get run status: %v", err)
		}

		var status map[string]interface{}
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("Failed to decode run status: %v", err)
		}

		state, _ := status["state"].(string)
		if state == "succeeded" || state == "failed" {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Run did not finish in time")
	return nil
}
