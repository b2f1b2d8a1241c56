// Package session drives one attendance session from photo capture through
// review to saving.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/rollcall/internal/capture"
	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/ledger"
	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/pipeline"
	"github.com/Veraticus/rollcall/internal/reconcile"
)

// DefaultRecognitionTimeout bounds upload and analysis of one photo.
const DefaultRecognitionTimeout = 60 * time.Second

// State is the workflow state of an Orchestrator.
type State string

// Workflow states.
const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateCaptured  State = "captured"
	StateUploading State = "uploading"
	StateAnalyzing State = "analyzing"
	StateReviewing State = "reviewing"
	StateError     State = "error"
	StateClosed    State = "closed"
)

// busy reports whether a recognition attempt owns the session.
func (s State) busy() bool {
	return s == StateUploading || s == StateAnalyzing || s == StateReviewing
}

// Config wires an Orchestrator to its collaborators.
type Config struct {
	Device     capture.Device
	Recognizer Recognizer
	Persister  Persister
	Journal    Journal
	Now        func() time.Time
	OnStatus   func(pipeline.Status)
	OnState    func(State)
	Session    model.Session
	// Threshold overrides reconcile.DefaultThreshold when set; zero is a valid value.
	Threshold          *float64
	RecognitionTimeout time.Duration
	JPEGQuality        int
}

// SaveResult describes a successful save.
type SaveResult struct {
	SavedAt time.Time
	Saved   int
	// Revision is the ledger revision that was sent.
	Revision uint64
	// PendingEdits is true when the ledger changed while the save was in flight.
	PendingEdits bool
}

// Orchestrator owns the ledger of one session and at most one capture attempt.
type Orchestrator struct {
	cfg        Config
	ledger     *ledger.Ledger
	camera     *capture.Controller
	tracker    *pipeline.Tracker
	reconciler *reconcile.Reconciler
	attempt    *model.RecognitionAttempt
	state      State
	lastErr    error
	saving     bool
	opening    bool
	// savedRevision is the ledger revision of the last successful save.
	savedRevision uint64
	mu            sync.Mutex
}

// New creates an idle orchestrator with an all-absent ledger.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Device == nil:
		return nil, fmt.Errorf("%w: camera device", common.ErrMissingConfig)
	case cfg.Recognizer == nil:
		return nil, fmt.Errorf("%w: recognizer", common.ErrMissingConfig)
	case cfg.Persister == nil:
		return nil, fmt.Errorf("%w: persister", common.ErrMissingConfig)
	case cfg.Session.ID == "":
		return nil, fmt.Errorf("%w: session id", common.ErrMissingConfig)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Threshold == nil {
		threshold := reconcile.DefaultThreshold
		cfg.Threshold = &threshold
	}
	if cfg.RecognitionTimeout <= 0 {
		cfg.RecognitionTimeout = DefaultRecognitionTimeout
	}
	if cfg.Session.StartedAt.IsZero() {
		cfg.Session.StartedAt = cfg.Now()
	}

	l, err := ledger.New(cfg.Session.Roster, cfg.Session.StartedAt, ledger.WithClock(cfg.Now))
	if err != nil {
		return nil, err
	}

	return &Orchestrator{cfg: cfg, ledger: l, state: StateIdle, savedRevision: l.Revision()}, nil
}

// Session returns the session being marked.
func (o *Orchestrator) Session() model.Session {
	return o.cfg.Session
}

// State returns the current workflow state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status returns the pipeline status of the current attempt, if there is one.
func (o *Orchestrator) Status() (pipeline.Status, bool) {
	o.mu.Lock()
	tracker := o.tracker
	o.mu.Unlock()
	if tracker == nil {
		return pipeline.Status{}, false
	}
	return tracker.Status(), true
}

// Err returns the error that put the session in the error state.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Reconciler returns the results under review, if any.
func (o *Orchestrator) Reconciler() (*reconcile.Reconciler, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reconciler, o.reconciler != nil
}

// OpenCamera starts a capture attempt. The device is opened without holding
// the session lock, so State and Close stay responsive while it waits.
func (o *Orchestrator) OpenCamera(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.opening:
		o.mu.Unlock()
		return fmt.Errorf("%w: camera is opening", common.ErrCaptureInFlight)
	case o.state.busy():
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: session is %s", common.ErrCaptureInFlight, state)
	case o.state == StateCapturing:
		o.mu.Unlock()
		return nil
	case o.state != StateIdle:
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: open camera from %s", common.ErrInvalidTransition, state)
	}

	o.opening = true
	o.clearAttemptLocked()
	o.mu.Unlock()

	camera := capture.NewController(o.cfg.Device, capture.WithQuality(o.cfg.JPEGQuality), capture.WithClock(o.cfg.Now))
	err := camera.Open(ctx)

	o.mu.Lock()
	o.opening = false
	if err != nil {
		o.mu.Unlock()
		return err
	}
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		_ = camera.Close()
		return fmt.Errorf("%w: session became %s while the camera opened", common.ErrInvalidTransition, state)
	}
	o.camera = camera
	o.state = StateCapturing
	o.mu.Unlock()

	o.emitState(StateCapturing)
	return nil
}

// Capture freezes the current frame.
func (o *Orchestrator) Capture() (capture.Image, error) {
	o.mu.Lock()
	if o.state != StateCapturing || o.camera == nil {
		state := o.state
		o.mu.Unlock()
		return capture.Image{}, fmt.Errorf("%w: camera is not open (%s)", common.ErrNotReady, state)
	}
	img, err := o.camera.Capture()
	if err != nil {
		o.mu.Unlock()
		return capture.Image{}, err
	}
	o.state = StateCaptured
	o.mu.Unlock()

	o.emitState(StateCaptured)
	return img, nil
}

// Retake discards the captured photo and reopens the camera.
func (o *Orchestrator) Retake(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateCaptured || o.camera == nil {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: retake from %s", common.ErrInvalidTransition, state)
	}
	if err := o.camera.Retake(ctx); err != nil {
		_ = o.camera.Close()
		o.camera = nil
		o.state = StateIdle
		o.mu.Unlock()
		o.emitState(StateIdle)
		return err
	}
	o.state = StateCapturing
	o.mu.Unlock()

	o.emitState(StateCapturing)
	return nil
}

// CancelCapture closes the camera without recognizing anything.
func (o *Orchestrator) CancelCapture() error {
	o.mu.Lock()
	if o.state != StateCapturing && o.state != StateCaptured {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: cancel capture from %s", common.ErrInvalidTransition, state)
	}
	o.releaseCameraLocked()
	o.clearAttemptLocked()
	o.state = StateIdle
	o.mu.Unlock()

	o.emitState(StateIdle)
	return nil
}

// ConfirmPhoto releases the camera, uploads the captured photo and waits for
// recognition. On success the session moves to reviewing and the returned
// reconciler holds the candidates. Cancelling ctx aborts the attempt.
func (o *Orchestrator) ConfirmPhoto(ctx context.Context) (*reconcile.Reconciler, error) {
	o.mu.Lock()
	if o.state != StateCaptured || o.camera == nil {
		state := o.state
		o.mu.Unlock()
		if state.busy() {
			return nil, fmt.Errorf("%w: session is %s", common.ErrCaptureInFlight, state)
		}
		return nil, fmt.Errorf("%w: confirm photo from %s", common.ErrInvalidTransition, state)
	}
	img, ok := o.camera.Image()
	o.releaseCameraLocked()
	if !ok {
		o.state = StateIdle
		o.mu.Unlock()
		o.emitState(StateIdle)
		return nil, fmt.Errorf("%w: no captured photo", common.ErrNotReady)
	}

	attempt := &model.RecognitionAttempt{
		ID:        uuid.NewString(),
		SessionID: o.cfg.Session.ID,
		StartedAt: o.cfg.Now(),
	}
	tracker := pipeline.NewTracker(pipeline.WithListener(o.emitStatus))
	o.tracker = tracker
	o.attempt = attempt
	o.lastErr = nil
	o.state = StateUploading
	o.mu.Unlock()
	o.emitState(StateUploading)

	logger := slog.With("session_id", o.cfg.Session.ID, "attempt_id", attempt.ID)
	logger.Info("Uploading classroom photo", "bytes", len(img.Data), "width", img.Width, "height", img.Height)

	rctx, cancel := context.WithTimeout(ctx, o.cfg.RecognitionTimeout)
	defer cancel()

	candidates, err := o.cfg.Recognizer.Recognize(rctx, o.cfg.Session.ID, img, func(percent int) {
		o.uploadProgress(tracker, percent)
	})
	if err == nil {
		err = o.ensureAnalyzing(tracker)
	}
	if err != nil {
		return nil, o.failAttempt(ctx, tracker, attempt, rctx, err)
	}

	r := reconcile.New(candidates, o.cfg.Session.Roster,
		reconcile.WithThreshold(*o.cfg.Threshold),
		reconcile.WithClock(o.cfg.Now))
	summary := r.Summary()
	if err := tracker.Complete(summary.Total); err != nil {
		return nil, o.failAttempt(ctx, tracker, attempt, rctx, err)
	}

	o.mu.Lock()
	if o.state == StateClosed {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: session closed during recognition", common.ErrInvalidTransition)
	}
	o.reconciler = r
	o.state = StateReviewing
	o.mu.Unlock()
	o.emitState(StateReviewing)

	status := tracker.Status()
	attempt.FinishedAt = o.cfg.Now()
	attempt.Stage = string(status.Stage)
	attempt.Message = status.Message
	attempt.Detail = status.Detail
	attempt.Outcome = "recognized"
	attempt.CandidateCount = summary.Total
	attempt.LowConfidenceCount = summary.Low
	attempt.DroppedCount = summary.Dropped()
	o.journalAttempt(ctx, *attempt)

	logger.Info("Recognition complete",
		"candidates", summary.Total,
		"selected", summary.Selected,
		"low_confidence", summary.Low,
		"dropped", summary.Dropped())
	return r, nil
}

// uploadProgress advances the tracker; finishing the upload starts analysis.
func (o *Orchestrator) uploadProgress(tracker *pipeline.Tracker, percent int) {
	if tracker.Status().Stage != pipeline.StageUploading {
		return
	}
	if err := tracker.SetUploadProgress(percent); err != nil {
		slog.Debug("Ignoring upload progress", "percent", percent, "error", err)
		return
	}
	if percent >= 100 {
		if err := tracker.BeginAnalysis(""); err == nil {
			o.setBusyState(StateAnalyzing)
		}
	}
}

// ensureAnalyzing covers recognizers that never report the end of the upload.
func (o *Orchestrator) ensureAnalyzing(tracker *pipeline.Tracker) error {
	if tracker.Status().Stage != pipeline.StageUploading {
		return nil
	}
	if err := tracker.SetUploadProgress(100); err != nil {
		return err
	}
	if err := tracker.BeginAnalysis(""); err != nil {
		return err
	}
	o.setBusyState(StateAnalyzing)
	return nil
}

func (o *Orchestrator) setBusyState(state State) {
	o.mu.Lock()
	if !o.state.busy() {
		o.mu.Unlock()
		return
	}
	o.state = state
	o.mu.Unlock()
	o.emitState(state)
}

// failAttempt moves the tracker and the session to the error state and returns
// the error classified by the stage it happened in.
func (o *Orchestrator) failAttempt(ctx context.Context, tracker *pipeline.Tracker, attempt *model.RecognitionAttempt, rctx context.Context, cause error) error {
	stage := tracker.Status().Stage

	var err error
	switch {
	case errors.Is(cause, common.ErrUploadFailed), errors.Is(cause, common.ErrRecognitionFailed):
		err = cause
	case stage == pipeline.StageUploading:
		err = fmt.Errorf("%w: %w", common.ErrUploadFailed, cause)
	default:
		err = fmt.Errorf("%w: %w", common.ErrRecognitionFailed, cause)
	}

	reason := common.UserMessage(err)
	outcome := "failed"
	switch {
	case ctx.Err() != nil:
		reason = "cancelled"
		outcome = "cancelled"
		err = fmt.Errorf("%w: %w", err, ctx.Err())
	case errors.Is(rctx.Err(), context.DeadlineExceeded):
		reason = "timeout"
		outcome = "timeout"
		if !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", err, context.DeadlineExceeded)
		}
	}

	if failErr := tracker.Fail(reason); failErr != nil {
		slog.Warn("Failed to mark tracker as failed", "error", failErr)
	}

	o.mu.Lock()
	closed := o.state == StateClosed
	if !closed {
		o.state = StateError
		o.lastErr = err
	}
	o.mu.Unlock()
	if !closed {
		o.emitState(StateError)
	}

	status := tracker.Status()
	attempt.FinishedAt = o.cfg.Now()
	attempt.Stage = string(stage)
	attempt.Message = status.Message
	attempt.Detail = status.Detail
	attempt.Outcome = outcome
	o.journalAttempt(context.WithoutCancel(ctx), *attempt)

	common.LogError(err, "Recognition attempt failed", common.Fields{
		"session_id": o.cfg.Session.ID,
		"attempt_id": attempt.ID,
		"stage":      string(stage),
		"reason":     reason,
	})
	return err
}

// ConfirmReview merges the selected candidates into the ledger as a single
// batch and returns the number of entries written.
func (o *Orchestrator) ConfirmReview(selectedIDs []string) (int, error) {
	o.mu.Lock()
	if o.state != StateReviewing || o.reconciler == nil {
		state := o.state
		o.mu.Unlock()
		return 0, fmt.Errorf("%w: confirm review from %s", common.ErrInvalidTransition, state)
	}
	r := o.reconciler

	entries, err := r.Confirm(selectedIDs)
	if err != nil {
		o.mu.Unlock()
		return 0, err
	}
	n, err := o.ledger.Merge(entries)
	o.reconciler = nil
	o.clearAttemptLocked()
	o.state = StateIdle
	o.mu.Unlock()
	o.emitState(StateIdle)

	if err != nil {
		return 0, err
	}
	o.journalWrites(entries)
	slog.Info("Merged recognition results", "session_id", o.cfg.Session.ID, "entries", n)
	return n, nil
}

// RejectReview discards the recognition results without touching the ledger.
func (o *Orchestrator) RejectReview() error {
	o.mu.Lock()
	if o.state != StateReviewing || o.reconciler == nil {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: reject review from %s", common.ErrInvalidTransition, state)
	}
	err := o.reconciler.Reject()
	o.reconciler = nil
	o.clearAttemptLocked()
	o.state = StateIdle
	o.mu.Unlock()
	o.emitState(StateIdle)
	return err
}

// Discard leaves the error state so a new capture can start.
func (o *Orchestrator) Discard() error {
	o.mu.Lock()
	if o.state != StateError {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: discard from %s", common.ErrInvalidTransition, state)
	}
	o.clearAttemptLocked()
	o.lastErr = nil
	o.state = StateIdle
	o.mu.Unlock()
	o.emitState(StateIdle)
	return nil
}

// SetStatus records a teacher's decision for one student.
func (o *Orchestrator) SetStatus(studentID string, status model.AttendanceStatus) (model.AttendanceEntry, error) {
	if err := o.checkEditable(); err != nil {
		return model.AttendanceEntry{}, err
	}
	entry, err := o.ledger.SetStatus(studentID, status, model.OriginTeacher)
	if err != nil {
		return model.AttendanceEntry{}, err
	}
	o.journalWrites([]model.AttendanceEntry{entry})
	return entry, nil
}

// BulkSetStatus sets every student to the same status.
func (o *Orchestrator) BulkSetStatus(status model.AttendanceStatus) error {
	if err := o.checkEditable(); err != nil {
		return err
	}
	entries, err := o.ledger.BulkSetStatus(status, model.OriginTeacher)
	if err != nil {
		return err
	}
	o.journalWrites(entries)
	return nil
}

func (o *Orchestrator) checkEditable() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StateCapturing, StateCaptured:
		return common.ErrEditWhileCapturing
	case StateClosed:
		return fmt.Errorf("%w: session closed", common.ErrInvalidTransition)
	}
	return nil
}

// Snapshot returns the ledger entries in roster order.
func (o *Orchestrator) Snapshot() []model.AttendanceEntry {
	return o.ledger.Snapshot()
}

// Stats returns statistics of the current ledger.
func (o *Orchestrator) Stats() model.Stats {
	return o.ledger.Stats()
}

// Save sends a snapshot of the ledger. Edits may continue while the save is in
// flight; they are reported through SaveResult.PendingEdits. A failed save is
// journaled as a draft and returned as *UnsentSnapshotError.
func (o *Orchestrator) Save(ctx context.Context) (SaveResult, error) {
	o.mu.Lock()
	if o.saving {
		o.mu.Unlock()
		return SaveResult{}, common.ErrSaveInFlight
	}
	if o.state == StateClosed {
		o.mu.Unlock()
		return SaveResult{}, fmt.Errorf("%w: session closed", common.ErrInvalidTransition)
	}
	o.saving = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.saving = false
		o.mu.Unlock()
	}()

	entries, revision := o.ledger.SnapshotWithRevision()
	err := o.cfg.Persister.MarkAttendance(ctx, o.cfg.Session.ID, entries)
	if err != nil {
		unsent := &UnsentSnapshotError{Err: err, Entries: entries}
		if o.cfg.Journal != nil {
			id, draftErr := o.cfg.Journal.SaveDraft(context.WithoutCancel(ctx), model.Draft{
				SessionID: o.cfg.Session.ID,
				Title:     o.cfg.Session.Title(),
				Reason:    err.Error(),
				Entries:   entries,
				CreatedAt: o.cfg.Now(),
			})
			if draftErr != nil {
				common.LogError(draftErr, "Failed to journal unsent attendance", common.Fields{"session_id": o.cfg.Session.ID})
			} else {
				unsent.DraftID = id
			}
		}
		common.LogError(err, "Saving attendance failed", common.Fields{
			"session_id": o.cfg.Session.ID,
			"draft_id":   unsent.DraftID,
		})
		return SaveResult{}, unsent
	}

	o.mu.Lock()
	if revision > o.savedRevision {
		o.savedRevision = revision
	}
	o.mu.Unlock()

	result := SaveResult{
		Saved:        len(entries),
		Revision:     revision,
		SavedAt:      o.cfg.Now(),
		PendingEdits: o.ledger.Revision() != revision,
	}
	slog.Info("Attendance saved",
		"session_id", o.cfg.Session.ID,
		"entries", result.Saved,
		"pending_edits", result.PendingEdits)
	return result, nil
}

// HasUnsavedChanges reports whether the ledger changed since the last
// successful save.
func (o *Orchestrator) HasUnsavedChanges() bool {
	o.mu.Lock()
	saved := o.savedRevision
	o.mu.Unlock()
	return o.ledger.Revision() != saved
}

// Close releases the camera and ends the session. It is safe to call more than once.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.state == StateClosed {
		o.mu.Unlock()
		return nil
	}
	o.releaseCameraLocked()
	if o.reconciler != nil {
		_ = o.reconciler.Reject()
		o.reconciler = nil
	}
	o.clearAttemptLocked()
	o.state = StateClosed
	o.mu.Unlock()
	o.emitState(StateClosed)
	return nil
}

// clearAttemptLocked drops the pipeline status of the last attempt.
func (o *Orchestrator) clearAttemptLocked() {
	o.tracker = nil
	o.attempt = nil
}

func (o *Orchestrator) releaseCameraLocked() {
	if o.camera == nil {
		return
	}
	if err := o.camera.Close(); err != nil {
		slog.Warn("Failed to close camera", "session_id", o.cfg.Session.ID, "error", err)
	}
	o.camera = nil
}

func (o *Orchestrator) journalWrites(entries []model.AttendanceEntry) {
	if o.cfg.Journal == nil || len(entries) == 0 {
		return
	}
	revision := o.ledger.Revision()
	writes := make([]model.LedgerWrite, len(entries))
	for i, entry := range entries {
		writes[i] = model.LedgerWrite{
			SessionID:  o.cfg.Session.ID,
			Entry:      entry,
			Revision:   revision,
			RecordedAt: o.cfg.Now(),
		}
	}
	if err := o.cfg.Journal.RecordLedgerWrites(context.Background(), writes); err != nil {
		common.LogError(err, "Failed to journal ledger writes", common.Fields{"session_id": o.cfg.Session.ID})
	}
}

func (o *Orchestrator) journalAttempt(ctx context.Context, attempt model.RecognitionAttempt) {
	if o.cfg.Journal == nil {
		return
	}
	if err := o.cfg.Journal.SaveAttempt(ctx, attempt); err != nil {
		common.LogError(err, "Failed to journal recognition attempt", common.Fields{"attempt_id": attempt.ID})
	}
}

func (o *Orchestrator) emitState(state State) {
	if o.cfg.OnState != nil {
		o.cfg.OnState(state)
	}
}

func (o *Orchestrator) emitStatus(status pipeline.Status) {
	if o.cfg.OnStatus != nil {
		o.cfg.OnStatus(status)
	}
}
