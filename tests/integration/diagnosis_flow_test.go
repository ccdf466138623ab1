package integration

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestDiagnosisFlow(t *testing.T) {
	ts := setupTestServer(t, pneumoniaPredictor(t, 0.55))
	defer ts.Cleanup()

	runID := uploadTestImage(t, ts.Server.URL, "owner-flow")
	status := waitForRun(t, ts.Server.URL, runID)

	if state := status["state"]; state != "succeeded" {
		t.Fatalf("Expected run to succeed, got state %v (error: %v)", state, status["error"])
	}
	if saved, _ := status["saved"].(bool); !saved {
		t.Error("Expected the record to be saved")
	}

	record, ok := status["record"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected a record in the run status")
	}
	if record["top_label"] != "Pneumonia" {
		t.Errorf("Expected top label Pneumonia, got %v", record["top_label"])
	}
	if positive, _ := record["has_positive_finding"].(bool); !positive {
		t.Error("Expected a positive finding at score 0.55")
	}
	if record["confidence_tier"] != "moderate" {
		t.Errorf("Expected moderate tier, got %v", record["confidence_tier"])
	}

	count, err := countDiagnosesInDB(ts.DB.Conn())
	if err != nil {
		t.Fatalf("Failed to count diagnoses: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 diagnosis in DB, got %d", count)
	}

	// The stored image is retrievable through the files endpoint.
	imageURL, _ := record["image_url"].(string)
	if imageURL == "" {
		t.Fatal("Expected an image URL on the record")
	}
	resp, err := http.Get(ts.Server.URL + imageURL)
	if err != nil {
		t.Fatalf("Failed to fetch stored image: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 fetching stored image, got %d", resp.StatusCode)
	}
	content, _ := io.ReadAll(resp.Body)
	if string(content) != "fake png content for testing" {
		t.Error("Stored image content does not match the upload")
	}
}

func TestDiagnosisEventStream(t *testing.T) {
	ts := setupTestServer(t, pneumoniaPredictor(t, 0.55))
	defer ts.Cleanup()

	runID := uploadTestImage(t, ts.Server.URL, "owner-events")
	waitForRun(t, ts.Server.URL, runID)

	resp, err := http.Get(fmt.Sprintf("%s/api/diagnoses/runs/%s/events", ts.Server.URL, runID))
	if err != nil {
		t.Fatalf("Failed to open event stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %s", ct)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read event stream: %v", err)
	}
	body := string(raw)

	for _, event := range []string{"event: progress", "event: result", "event: care_suggested"} {
		if !strings.Contains(body, event) {
			t.Errorf("Expected %q in the event stream", event)
		}
	}
}

func TestDiagnosisRejectsNonImage(t *testing.T) {
	ts := setupTestServer(t, pneumoniaPredictor(t, 0.55))
	defer ts.Cleanup()

	body, contentType, err := createMultipartFile("owner-bad", "patient-1", "report.pdf", "application/pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Failed to build upload: %v", err)
	}

	resp, err := http.Post(ts.Server.URL+"/api/diagnoses", contentType, body)
	if err != nil {
		t.Fatalf("Failed to post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a non-image upload, got %d", resp.StatusCode)
	}

	count, err := countDiagnosesInDB(ts.DB.Conn())
	if err != nil {
		t.Fatalf("Failed to count diagnoses: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no diagnoses after a rejected upload, got %d", count)
	}
}
