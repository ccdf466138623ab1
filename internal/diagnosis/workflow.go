package diagnosis

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xrayaid/xrayaid/internal/models"
	"github.com/xrayaid/xrayaid/internal/predict"
	"github.com/xrayaid/xrayaid/internal/storage"
)

// State is the lifecycle position of a single run. Succeeded and Failed are
// terminal; a fresh Start call begins a new run.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateUploading  State = "uploading"
	StateAnalyzing  State = "analyzing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Update is one event on a run's stream.
type Update struct {
	Type string
	Data interface{}
}

// RunResult carries the outcome of a completed run. Saved is false when the
// record write failed after a successful inference; the record is still
// populated so the caller can display it.
type RunResult struct {
	Record  *models.DiagnosisRecord
	Saved   bool
	SaveErr *PersistenceError
}

// RunInput is everything a run needs, passed explicitly. The image bytes are
// held in memory for the duration of the run so inference never has to
// re-fetch the uploaded blob.
type RunInput struct {
	OwnerID          string
	PatientContextID string
	Filename         string
	ContentType      string
	Data             []byte
}

// Run is one workflow execution. State, progress and result are guarded by
// mu; the Updates channel carries the same transitions as events for the SSE
// stream and is closed when the run reaches a terminal state.
type Run struct {
	ID               string
	OwnerID          string
	PatientContextID string
	StartedAt        time.Time

	Updates chan Update

	mu          sync.Mutex
	state       State
	progress    int
	result      *RunResult
	err         error
	completedAt *time.Time
	cancel      context.CancelFunc
}

func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Run) Progress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Result returns the run outcome, or nil while the run is still going.
func (r *Run) Result() *RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Err returns the failure of a Failed run.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	r.state = s
	if s == StateSucceeded || s == StateFailed {
		now := time.Now()
		r.completedAt = &now
	}
	r.mu.Unlock()
}

func (r *Run) setProgress(p int) {
	r.mu.Lock()
	r.progress = p
	r.mu.Unlock()
}

// RecordStore persists finished diagnosis records.
type RecordStore interface {
	Insert(ctx context.Context, rec *models.DiagnosisRecord) error
}

type Config struct {
	MaxUploadBytes    int64
	PositiveThreshold float64
	HighRiskThreshold float64
}

// Workflow drives validate → upload → inference → persist for diagnosis
// runs. Starting a new run for an owner supersedes that owner's previous run:
// the old run keeps executing to completion but its events are discarded.
type Workflow struct {
	store     storage.Storage
	predictor predict.Client
	records   RecordStore
	cfg       Config
	log       zerolog.Logger

	runs       map[string]*Run
	currentRun map[string]string
	mu         sync.RWMutex
}

func NewWorkflow(store storage.Storage, predictor predict.Client, records RecordStore, cfg Config, log zerolog.Logger) *Workflow {
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.PositiveThreshold == 0 {
		cfg.PositiveThreshold = 0.25
	}
	if cfg.HighRiskThreshold == 0 {
		cfg.HighRiskThreshold = 0.60
	}

	return &Workflow{
		store:      store,
		predictor:  predictor,
		records:    records,
		cfg:        cfg,
		log:        log,
		runs:       make(map[string]*Run),
		currentRun: make(map[string]string),
	}
}

// Start validates the input in memory and, if it passes, launches the run
// goroutine. Validation failures have no side effects and are returned
// directly instead of starting a run.
func (w *Workflow) Start(ctx context.Context, input RunInput) (*Run, error) {
	if err := w.validate(input); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	run := &Run{
		ID:               uuid.New().String(),
		OwnerID:          input.OwnerID,
		PatientContextID: input.PatientContextID,
		StartedAt:        time.Now(),
		Updates:          make(chan Update, 100),
		state:            StateValidating,
		cancel:           cancel,
	}

	w.mu.Lock()
	w.runs[run.ID] = run
	w.currentRun[input.OwnerID] = run.ID
	w.mu.Unlock()

	go w.execute(runCtx, run, input)

	return run, nil
}

func (w *Workflow) GetRun(runID string) (*Run, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	run, exists := w.runs[runID]
	return run, exists
}

// Stop cancels a run's goroutine. The run transitions to Failed.
func (w *Workflow) Stop(runID string) error {
	w.mu.RLock()
	run, exists := w.runs[runID]
	w.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run not found")
	}

	if run.cancel != nil {
		w.log.Info().Str("run_id", runID).Msg("stopping diagnosis run")
		run.cancel()
	}

	return nil
}

func (w *Workflow) validate(input RunInput) error {
	if input.OwnerID == "" {
		return &ValidationError{Reason: "owner id is required"}
	}
	if len(input.Data) == 0 {
		return &ValidationError{Reason: "image is empty"}
	}
	if !strings.HasPrefix(input.ContentType, "image/") {
		return &ValidationError{Reason: fmt.Sprintf("unsupported content type %q, expected an image", input.ContentType)}
	}
	if int64(len(input.Data)) > w.cfg.MaxUploadBytes {
		return &ValidationError{Reason: fmt.Sprintf("image is %d bytes, limit is %d", len(input.Data), w.cfg.MaxUploadBytes)}
	}
	return nil
}

// isCurrent reports whether run is still the owner's active run. Events from
// superseded runs are discarded.
func (w *Workflow) isCurrent(run *Run) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentRun[run.OwnerID] == run.ID
}

func (w *Workflow) publish(run *Run, update Update) {
	if !w.isCurrent(run) {
		w.log.Debug().Str("run_id", run.ID).Str("type", update.Type).Msg("discarding event from superseded run")
		return
	}

	select {
	case run.Updates <- update:
	default:
		w.log.Warn().Str("run_id", run.ID).Str("type", update.Type).Msg("run update buffer full, dropping event")
	}
}

func (w *Workflow) execute(ctx context.Context, run *Run, input RunInput) {
	defer close(run.Updates)
	defer run.cancel()

	log := w.log.With().Str("run_id", run.ID).Str("owner_id", run.OwnerID).Logger()
	log.Info().Int("bytes", len(input.Data)).Str("content_type", input.ContentType).Msg("diagnosis run started")

	// Uploading. Progress comes from the storage layer's byte counter and is
	// clamped monotonic; 100 is always emitted before Analyzing.
	run.setState(StateUploading)
	w.publish(run, Update{Type: "state", Data: map[string]interface{}{"state": StateUploading}})

	blob, err := w.upload(ctx, run, input)
	if err != nil {
		log.Error().Err(err).Msg("upload failed, no record created")
		w.fail(run, &UploadError{Err: err}, "upload")
		return
	}

	log.Debug().Str("blob", blob.Name).Str("url", blob.URL).Msg("image stored")

	// Analyzing. Inference runs on the in-memory bytes, not the stored URL.
	// If it fails the blob stays behind; orphaned blobs are accepted.
	run.setState(StateAnalyzing)
	w.publish(run, Update{Type: "state", Data: map[string]interface{}{"state": StateAnalyzing}})

	result, err := w.predictor.Predict(ctx, input.Data, input.ContentType)
	if err != nil {
		log.Error().Err(err).Str("orphaned_blob", blob.Name).Msg("inference failed")
		w.fail(run, err, "inference")
		return
	}

	record := models.NewDiagnosisRecord(run.OwnerID, run.PatientContextID, blob.URL,
		result, w.cfg.PositiveThreshold, w.cfg.HighRiskThreshold)

	outcome := &RunResult{Record: record, Saved: true}

	if err := w.records.Insert(ctx, record); err != nil {
		// Degraded success: the analysis is done, so it is delivered even
		// though it could not be saved.
		log.Error().Err(err).Msg("record write failed, returning unsaved result")
		outcome.Saved = false
		outcome.SaveErr = &PersistenceError{Err: err}
	}

	run.mu.Lock()
	run.result = outcome
	run.mu.Unlock()

	run.setState(StateSucceeded)
	w.publish(run, Update{Type: "result", Data: outcome})

	if record.HasPositiveFinding {
		log.Info().Str("top_label", record.TopLabel).Float64("top_score", record.TopScore).
			Msg("positive finding, suggesting nearby care")
		w.publish(run, Update{Type: "care_suggested", Data: map[string]interface{}{
			"top_label": record.TopLabel,
			"tier":      record.ConfidenceTier,
		}})
	}

	log.Info().Bool("saved", outcome.Saved).Dur("elapsed", time.Since(run.StartedAt)).Msg("diagnosis run finished")
}

func (w *Workflow) upload(ctx context.Context, run *Run, input RunInput) (storage.Blob, error) {
	info := storage.FileInfo{
		Filename:    input.Filename,
		ContentType: input.ContentType,
		Size:        int64(len(input.Data)),
	}

	lastPercent := -1
	progress := func(written, total int64) {
		percent := 0
		if total > 0 {
			percent = int(written * 100 / total)
		} else if written > 0 {
			// Unknown total: report a bounded ramp and let the final 100
			// come from the completion path below.
			percent = 95
		}
		if percent > 100 {
			percent = 100
		}
		if percent <= lastPercent {
			return
		}
		lastPercent = percent
		run.setProgress(percent)
		w.publish(run, Update{Type: "progress", Data: map[string]interface{}{"percent": percent}})
	}

	blob, err := w.store.Save(ctx, bytes.NewReader(input.Data), info, progress)
	if err != nil {
		return storage.Blob{}, err
	}

	if lastPercent < 100 {
		run.setProgress(100)
		w.publish(run, Update{Type: "progress", Data: map[string]interface{}{"percent": 100}})
	}

	return blob, nil
}

func (w *Workflow) fail(run *Run, err error, kind string) {
	run.mu.Lock()
	run.err = err
	run.mu.Unlock()

	run.setState(StateFailed)
	w.publish(run, Update{Type: "error", Data: map[string]interface{}{
		"kind":    kind,
		"message": err.Error(),
	}})
}
