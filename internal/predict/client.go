package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Result is the structured outcome of one inference call.
type Result struct {
	Predictions      *PredictionSet
	HeatmapPNGBase64 string
}

// Client invokes the diagnostic model on a single image.
type Client interface {
	Predict(ctx context.Context, image []byte, contentType string) (*Result, error)
}

// HealthChecker is implemented by clients that can probe their backend.
type HealthChecker interface {
	Health(ctx context.Context) (*HealthInfo, error)
}

// HealthInfo mirrors the inference backend's health payload.
type HealthInfo struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Labels int    `json:"labels"`
}

// InferenceError is returned when the model call fails or the response cannot
// be interpreted as a prediction set.
type InferenceError struct {
	Status int
	Body   string
	Err    error
}

func (e *InferenceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("inference backend returned status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// HTTPClient talks to the classifier service over multipart HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type predictResponse struct {
	Labels           []string  `json:"labels"`
	Scores           []float64 `json:"scores"`
	TopLabel         string    `json:"top_label"`
	TopScore         float64   `json:"top_score"`
	HeatmapPNGBase64 string    `json:"heatmap_png_base64"`
}

func (c *HTTPClient) Predict(ctx context.Context, image []byte, contentType string) (*Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", fileNameFor(contentType))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("writing image bytes: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InferenceError{Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &InferenceError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var decoded predictResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &InferenceError{Err: fmt.Errorf("decoding response: %w", err)}
	}

	set, err := NewPredictionSet(decoded.Labels, decoded.Scores)
	if err != nil {
		return nil, &InferenceError{Err: fmt.Errorf("malformed prediction set: %w", err)}
	}

	return &Result{
		Predictions:      set,
		HeatmapPNGBase64: decoded.HeatmapPNGBase64,
	}, nil
}

// Health probes the backend root endpoint.
func (c *HTTPClient) Health(ctx context.Context) (*HealthInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference backend returned status %d", resp.StatusCode)
	}

	var info HealthInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding health response: %w", err)
	}

	return &info, nil
}

func fileNameFor(contentType string) string {
	switch contentType {
	case "image/png":
		return "image.png"
	case "image/jpeg":
		return "image.jpg"
	default:
		return "image"
	}
}
