package diagnosis

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrayaid/xrayaid/internal/models"
	"github.com/xrayaid/xrayaid/internal/predict"
	"github.com/xrayaid/xrayaid/internal/storage"
)

type fakeStorage struct {
	err     error
	gate    chan struct{}
	saves   int
	lastKey string
}

func (s *fakeStorage) Save(ctx context.Context, r io.Reader, info storage.FileInfo, progress storage.ProgressFunc) (storage.Blob, error) {
	s.saves++
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return storage.Blob{}, s.err
	}
	if progress != nil {
		progress(info.Size/2, info.Size)
		progress(info.Size, info.Size)
	}
	s.lastKey = "blob-" + info.Filename
	return storage.Blob{Name: s.lastKey, URL: "/files/" + s.lastKey, Size: info.Size}, nil
}

func (s *fakeStorage) Open(name string) (io.ReadSeekCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStorage) Delete(name string) error { return nil }

func (s *fakeStorage) URL(name string) string { return "/files/" + name }

type fakePredictor struct {
	result *predict.Result
	err    error
}

func (p *fakePredictor) Predict(ctx context.Context, image []byte, contentType string) (*predict.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

type fakeRecords struct {
	err      error
	inserted []*models.DiagnosisRecord
}

func (r *fakeRecords) Insert(ctx context.Context, rec *models.DiagnosisRecord) error {
	if r.err != nil {
		return r.err
	}
	r.inserted = append(r.inserted, rec)
	return nil
}

func inferenceResult(t *testing.T, labels []string, scores []float64) *predict.Result {
	t.Helper()
	set, err := predict.NewPredictionSet(labels, scores)
	require.NoError(t, err)
	return &predict.Result{Predictions: set}
}

func validInput() RunInput {
	return RunInput{
		OwnerID:          "owner-1",
		PatientContextID: "patient-1",
		Filename:         "scan.png",
		ContentType:      "image/png",
		Data:             []byte("png bytes"),
	}
}

// collect drains a run's update stream until the run finishes.
func collect(t *testing.T, run *Run) []Update {
	t.Helper()
	var updates []Update
	timeout := time.After(5 * time.Second)
	for {
		select {
		case upd, ok := <-run.Updates:
			if !ok {
				return updates
			}
			updates = append(updates, upd)
		case <-timeout:
			t.Fatal("timed out waiting for run to finish")
		}
	}
}

func updateTypes(updates []Update) []string {
	types := make([]string, 0, len(updates))
	for _, u := range updates {
		types = append(types, u.Type)
	}
	return types
}

func TestStartValidation(t *testing.T) {
	store := &fakeStorage{}
	wf := NewWorkflow(store, &fakePredictor{}, &fakeRecords{}, Config{MaxUploadBytes: 100}, zerolog.Nop())

	tests := []struct {
		name   string
		mutate func(*RunInput)
	}{
		{"missing owner", func(in *RunInput) { in.OwnerID = "" }},
		{"empty image", func(in *RunInput) { in.Data = nil }},
		{"wrong content type", func(in *RunInput) { in.ContentType = "application/pdf" }},
		{"oversize image", func(in *RunInput) { in.Data = make([]byte, 101) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(&input)

			_, err := wf.Start(context.Background(), input)

			require.Error(t, err)
			var valErr *ValidationError
			assert.True(t, errors.As(err, &valErr))
		})
	}

	assert.Equal(t, 0, store.saves, "validation failures must not touch the blob store")
}

func TestRunSucceedsAndPersists(t *testing.T) {
	store := &fakeStorage{}
	records := &fakeRecords{}
	predictor := &fakePredictor{result: inferenceResult(t,
		[]string{"Pneumonia", "Atelectasis"}, []float64{0.55, 0.10})}

	wf := NewWorkflow(store, predictor, records, Config{}, zerolog.Nop())

	run, err := wf.Start(context.Background(), validInput())
	require.NoError(t, err)

	updates := collect(t, run)

	assert.Equal(t, StateSucceeded, run.State())
	require.Len(t, records.inserted, 1)

	rec := records.inserted[0]
	assert.Equal(t, "owner-1", rec.OwnerID)
	assert.Equal(t, "patient-1", rec.PatientContextID)
	assert.Equal(t, "/files/blob-scan.png", rec.ImageURL)
	assert.Equal(t, "Pneumonia", rec.TopLabel)
	assert.True(t, rec.HasPositiveFinding)
	assert.Equal(t, predict.TierModerate, rec.ConfidenceTier)

	result := run.Result()
	require.NotNil(t, result)
	assert.True(t, result.Saved)
	assert.Nil(t, result.SaveErr)
	assert.Same(t, rec, result.Record)

	types := updateTypes(updates)
	assert.Contains(t, types, "result")
	assert.Contains(t, types, "care_suggested", "positive finding must suggest nearby care")
}

func TestRunProgressIsMonotonicAndEndsAt100(t *testing.T) {
	wf := NewWorkflow(&fakeStorage{}, &fakePredictor{result: inferenceResult(t,
		[]string{"No Finding"}, []float64{0.1})}, &fakeRecords{}, Config{}, zerolog.Nop())

	run, err := wf.Start(context.Background(), validInput())
	require.NoError(t, err)

	updates := collect(t, run)

	last := -1
	final := 0
	for _, upd := range updates {
		if upd.Type != "progress" {
			continue
		}
		percent := upd.Data.(map[string]interface{})["percent"].(int)
		assert.Greater(t, percent, last, "progress must be strictly increasing per event")
		last = percent
		final = percent
	}
	assert.Equal(t, 100, final)
	assert.Equal(t, 100, run.Progress())
}

func TestRunNoCareSuggestionBelowThreshold(t *testing.T) {
	wf := NewWorkflow(&fakeStorage{}, &fakePredictor{result: inferenceResult(t,
		[]string{"No Finding"}, []float64{0.1})}, &fakeRecords{}, Config{}, zerolog.Nop())

	run, err := wf.Start(context.Background(), validInput())
	require.NoError(t, err)

	updates := collect(t, run)

	assert.NotContains(t, updateTypes(updates), "care_suggested")
}

func TestRunUploadFailureCreatesNoRecord(t *testing.T) {
	records := &fakeRecords{}
	wf := NewWorkflow(&fakeStorage{err: errors.New("disk full")},
		&fakePredictor{}, records, Config{}, zerolog.Nop())

	run, err := wf.Start(context.Background(), validInput())
	require.NoError(t, err)

	updates := collect(t, run)

	assert.Equal(t, StateFailed, run.State())
	assert.Empty(t, records.inserted)

	var upErr *UploadError
	require.True(t, errors.As(run.Err(), &upErr))

	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, "error", last.Type)
	assert.Equal(t, "upload", last.Data.(map[string]interface{})["kind"])
}

func TestRunInferenceFailure(t *testing.T) {
	records := &fakeRecords{}
	infErr := &predict.InferenceError{Status: 500, Body: "model crashed"}
	wf := NewWorkflow(&fakeStorage{}, &fakePredictor{err: infErr}, records, Config{}, zerolog.Nop())

	run, err := wf.Start(context.Background(), validInput())
	require.NoError(t, err)

	collect(t, run)

	assert.Equal(t, StateFailed, run.State())
	assert.Empty(t, records.inserted, "no record without a usable inference result")

	var got *predict.InferenceError
	require.True(t, errors.As(run.Err(), &got))
}

func TestRunDegradedSuccessOnPersistFailure(t *testing.T) {
	records := &fakeRecords{err: errors.New("database is down")}
	predictor := &fakePredictor{result: inferenceResult(t,
		[]string{"Pneumonia"}, []float64{0.55})}

	wf := NewWorkflow(&fakeStorage{}, predictor, records, Config{}, zerolog.Nop())

	run, err := wf.Start(context.Background(), validInput())
	require.NoError(t, err)

	updates := collect(t, run)

	assert.Equal(t, StateSucceeded, run.State(), "a storage hiccup must not discard a completed analysis")

	result := run.Result()
	require.NotNil(t, result)
	assert.False(t, result.Saved)
	require.NotNil(t, result.SaveErr)

	var perErr *PersistenceError
	assert.True(t, errors.As(result.SaveErr, &perErr))

	require.NotNil(t, result.Record)
	assert.Equal(t, "Pneumonia", result.Record.TopLabel)
	assert.InDelta(t, 0.55, result.Record.TopScore, 1e-9)

	assert.Contains(t, updateTypes(updates), "result")
}

func TestSupersededRunEventsAreDiscarded(t *testing.T) {
	gate := make(chan struct{})
	slowStore := &fakeStorage{gate: gate}
	predictor := &fakePredictor{result: inferenceResult(t,
		[]string{"No Finding"}, []float64{0.1})}
	records := &fakeRecords{}

	wf := NewWorkflow(slowStore, predictor, records, Config{}, zerolog.Nop())

	first, err := wf.Start(context.Background(), validInput())
	require.NoError(t, err)

	second, err := wf.Start(context.Background(), validInput())
	require.NoError(t, err)

	// Release both runs now that the second has taken over as current.
	close(gate)

	firstUpdates := collect(t, first)
	secondUpdates := collect(t, second)

	assert.NotContains(t, updateTypes(firstUpdates), "result",
		"superseded runs must not publish results")
	assert.Contains(t, updateTypes(secondUpdates), "result")
}

func TestGetRunAndStop(t *testing.T) {
	wf := NewWorkflow(&fakeStorage{}, &fakePredictor{result: inferenceResult(t,
		[]string{"No Finding"}, []float64{0.1})}, &fakeRecords{}, Config{}, zerolog.Nop())

	run, err := wf.Start(context.Background(), validInput())
	require.NoError(t, err)
	collect(t, run)

	got, exists := wf.GetRun(run.ID)
	assert.True(t, exists)
	assert.Same(t, run, got)

	_, exists = wf.GetRun("missing")
	assert.False(t, exists)

	assert.NoError(t, wf.Stop(run.ID))
	assert.Error(t, wf.Stop("missing"))
}
