package predict

import (
	"context"
	"math/rand"
	"sync"
)

// placeholderHeatmap is a 1x1 transparent PNG, standing in for the Grad-CAM
// overlay the real backend produces.
const placeholderHeatmap = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// MockClient produces placeholder predictions without a model backend. Score
// ranges match the legacy mock predictor so downstream threshold behavior is
// exercised realistically.
type MockClient struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockClient(seed int64) *MockClient {
	return &MockClient{rng: rand.New(rand.NewSource(seed))}
}

func (c *MockClient) Predict(ctx context.Context, image []byte, contentType string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &InferenceError{Err: err}
	}

	c.mu.Lock()
	scores := []float64{
		c.rng.Float64()*0.4 + 0.1, // Pneumonia
		c.rng.Float64() * 0.3,     // Lung Nodule
		c.rng.Float64() * 0.25,    // Cardiomegaly
		c.rng.Float64() * 0.2,     // Pleural Effusion
		c.rng.Float64() * 0.15,    // Atelectasis
	}
	c.mu.Unlock()

	labels := []string{"Pneumonia", "Lung Nodule", "Cardiomegaly", "Pleural Effusion", "Atelectasis"}

	set, err := NewPredictionSet(labels, scores)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}

	return &Result{
		Predictions:      set,
		HeatmapPNGBase64: placeholderHeatmap,
	}, nil
}
