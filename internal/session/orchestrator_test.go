package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/rollcall/internal/capture"
	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeStream struct {
	device *fakeDevice
}

func (s *fakeStream) Frame() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 32, 24)), nil
}

func (s *fakeStream) Close() error {
	s.device.mu.Lock()
	s.device.open--
	s.device.mu.Unlock()
	return nil
}

type fakeDevice struct {
	err     error
	entered chan struct{}
	gate    chan struct{}
	open    int
	mu      sync.Mutex
}

func (d *fakeDevice) Name() string { return "fake-camera" }

func (d *fakeDevice) Open(context.Context) (capture.Stream, error) {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.gate != nil {
		<-d.gate
	}
	if d.err != nil {
		return nil, d.err
	}
	d.mu.Lock()
	d.open++
	d.mu.Unlock()
	return &fakeStream{device: d}, nil
}

func (d *fakeDevice) openStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

type fakeRecognizer struct {
	fn func(ctx context.Context, progress func(int)) ([]model.RecognitionCandidate, error)
}

func (r *fakeRecognizer) Recognize(ctx context.Context, _ string, img capture.Image, progress func(int)) ([]model.RecognitionCandidate, error) {
	if len(img.Data) == 0 {
		return nil, errors.New("empty upload")
	}
	return r.fn(ctx, progress)
}

type fakePersister struct {
	err     error
	block   chan struct{}
	entered chan struct{}
	saved   [][]model.AttendanceEntry
	mu      sync.Mutex
}

func (p *fakePersister) MarkAttendance(_ context.Context, _ string, entries []model.AttendanceEntry) error {
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.saved = append(p.saved, entries)
	return nil
}

type fakeJournal struct {
	drafts   []model.Draft
	writes   []model.LedgerWrite
	attempts []model.RecognitionAttempt
	mu       sync.Mutex
}

func (j *fakeJournal) SaveDraft(_ context.Context, d model.Draft) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.drafts = append(j.drafts, d)
	return int64(len(j.drafts)), nil
}

func (j *fakeJournal) RecordLedgerWrites(_ context.Context, w []model.LedgerWrite) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.writes = append(j.writes, w...)
	return nil
}

func (j *fakeJournal) SaveAttempt(_ context.Context, a model.RecognitionAttempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts = append(j.attempts, a)
	return nil
}

func classroomCandidates() []model.RecognitionCandidate {
	return []model.RecognitionCandidate{
		{StudentID: "A", Confidence: 0.92},
		{StudentID: "B", Confidence: 0.55},
		{StudentID: "C", Confidence: 0.92},
		{StudentID: "C", Confidence: 0.70},
	}
}

func succeed(candidates []model.RecognitionCandidate) *fakeRecognizer {
	return &fakeRecognizer{fn: func(_ context.Context, progress func(int)) ([]model.RecognitionCandidate, error) {
		progress(40)
		progress(100)
		return candidates, nil
	}}
}

type harness struct {
	orch      *Orchestrator
	device    *fakeDevice
	persister *fakePersister
	journal   *fakeJournal
	states    []State
	statuses  []pipeline.Status
	mu        sync.Mutex
}

func newHarness(t *testing.T, recognizer Recognizer, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{device: &fakeDevice{}, persister: &fakePersister{}, journal: &fakeJournal{}}
	cfg := Config{
		Session: model.Session{
			ID:          "S-1",
			SubjectName: "Physics",
			ClassName:   "10-B",
			StartedAt:   testNow,
			Roster: []model.Student{
				{ID: "A", Name: "Ada", RollNumber: "01"},
				{ID: "B", Name: "Ben", RollNumber: "02"},
				{ID: "C", Name: "Cy", RollNumber: "03"},
			},
		},
		Device:     h.device,
		Recognizer: recognizer,
		Persister:  h.persister,
		Journal:    h.journal,
		Now:        func() time.Time { return testNow.Add(5 * time.Minute) },
		OnState: func(s State) {
			h.mu.Lock()
			h.states = append(h.states, s)
			h.mu.Unlock()
		},
		OnStatus: func(s pipeline.Status) {
			h.mu.Lock()
			h.statuses = append(h.statuses, s)
			h.mu.Unlock()
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	orch, err := New(cfg)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) captured(t *testing.T) {
	t.Helper()
	require.NoError(t, h.orch.OpenCamera(context.Background()))
	_, err := h.orch.Capture()
	require.NoError(t, err)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestClassroomAttempt_EndToEnd(t *testing.T) {
	h := newHarness(t, succeed(classroomCandidates()))
	ctx := context.Background()

	h.captured(t)
	assert.Equal(t, 0, h.device.openStreams(), "capture freezes the frame and releases the stream")

	r, err := h.orch.ConfirmPhoto(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReviewing, h.orch.State())
	assert.Equal(t, []string{"A", "C"}, r.Selected())
	assert.Equal(t, 1, r.LowConfidenceCount())

	status, ok := h.orch.Status()
	require.True(t, ok)
	assert.Equal(t, pipeline.StageComplete, status.Stage)
	assert.Equal(t, "Recognized 3 students", status.Detail)

	n, err := h.orch.ConfirmReview(r.Selected())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, StateIdle, h.orch.State())

	snapshot := h.orch.Snapshot()
	require.Len(t, snapshot, 3)
	for _, i := range []int{0, 2} {
		assert.Equal(t, model.StatusPresent, snapshot[i].Status)
		assert.Equal(t, model.OriginAI, snapshot[i].Origin)
		require.NotNil(t, snapshot[i].Confidence)
		assert.InDelta(t, 0.92, *snapshot[i].Confidence, 1e-9)
	}
	assert.Equal(t, model.StatusAbsent, snapshot[1].Status)
	assert.Equal(t, model.OriginSystem, snapshot[1].Origin)

	stats := h.orch.Stats()
	assert.Equal(t, 2, stats.Present)
	assert.Equal(t, 2, stats.MarkedByAI)

	assert.Equal(t, []State{StateCapturing, StateCaptured, StateUploading, StateAnalyzing, StateReviewing, StateIdle}, h.states)

	stages := make([]pipeline.Stage, 0, len(h.statuses))
	for _, s := range h.statuses {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, pipeline.StageUploading, stages[0])
	assert.Equal(t, pipeline.StageComplete, stages[len(stages)-1])

	require.Len(t, h.journal.attempts, 1)
	assert.Equal(t, "recognized", h.journal.attempts[0].Outcome)
	assert.Equal(t, 3, h.journal.attempts[0].CandidateCount)
	assert.Equal(t, 1, h.journal.attempts[0].LowConfidenceCount)
	assert.Len(t, h.journal.writes, 2)
}

func TestCameraReleasedBeforeAnalysis(t *testing.T) {
	var h *harness
	h = newHarness(t, &fakeRecognizer{fn: func(_ context.Context, progress func(int)) ([]model.RecognitionCandidate, error) {
		assert.Equal(t, 0, h.device.openStreams())
		progress(100)
		assert.Equal(t, StateAnalyzing, h.orch.State())
		return nil, nil
	}})

	h.captured(t)
	r, err := h.orch.ConfirmPhoto(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.Candidates())
}

func TestOpenCamera_RejectedWhileAttemptInFlight(t *testing.T) {
	h := newHarness(t, succeed(classroomCandidates()))
	h.captured(t)
	_, err := h.orch.ConfirmPhoto(context.Background())
	require.NoError(t, err)

	err = h.orch.OpenCamera(context.Background())
	assert.ErrorIs(t, err, common.ErrCaptureInFlight)

	require.NoError(t, h.orch.RejectReview())
	require.NoError(t, h.orch.OpenCamera(context.Background()))
}

func TestRejectReview_LeavesLedgerUntouched(t *testing.T) {
	h := newHarness(t, succeed(classroomCandidates()))
	h.captured(t)
	r, err := h.orch.ConfirmPhoto(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.orch.RejectReview())
	for _, entry := range h.orch.Snapshot() {
		assert.Equal(t, model.StatusAbsent, entry.Status)
	}
	_, err = r.Confirm(r.Selected())
	assert.ErrorIs(t, err, common.ErrAlreadyDecided)
}

func TestEdits_RejectedOnlyWhileCapturing(t *testing.T) {
	h := newHarness(t, succeed(classroomCandidates()))

	_, err := h.orch.SetStatus("B", model.StatusLate)
	require.NoError(t, err)

	require.NoError(t, h.orch.OpenCamera(context.Background()))
	_, err = h.orch.SetStatus("B", model.StatusPresent)
	assert.ErrorIs(t, err, common.ErrEditWhileCapturing)
	assert.ErrorIs(t, h.orch.BulkSetStatus(model.StatusPresent), common.ErrEditWhileCapturing)

	_, err = h.orch.Capture()
	require.NoError(t, err)
	_, err = h.orch.SetStatus("B", model.StatusPresent)
	assert.ErrorIs(t, err, common.ErrEditWhileCapturing)

	_, err = h.orch.ConfirmPhoto(context.Background())
	require.NoError(t, err)
	_, err = h.orch.SetStatus("B", model.StatusExcused)
	require.NoError(t, err, "edits are allowed during review")
}

func TestManualCorrectionOverridesAI(t *testing.T) {
	h := newHarness(t, succeed(classroomCandidates()))
	h.captured(t)
	r, err := h.orch.ConfirmPhoto(context.Background())
	require.NoError(t, err)
	_, err = h.orch.ConfirmReview(r.Selected())
	require.NoError(t, err)

	entry, err := h.orch.SetStatus("A", model.StatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, model.OriginTeacher, entry.Origin)
	assert.Nil(t, entry.Confidence)
	assert.Equal(t, model.StatusAbsent, h.orch.Snapshot()[0].Status)
}

func TestBulkSetStatus(t *testing.T) {
	h := newHarness(t, succeed(classroomCandidates()))
	require.NoError(t, h.orch.BulkSetStatus(model.StatusPresent))

	for _, entry := range h.orch.Snapshot() {
		assert.Equal(t, model.StatusPresent, entry.Status)
		assert.Equal(t, model.OriginTeacher, entry.Origin)
		assert.Nil(t, entry.Confidence)
	}
	assert.InDelta(t, 100.0, h.orch.Stats().Percentage(), 1e-9)
}

func TestConfirmPhoto_UploadFailure(t *testing.T) {
	h := newHarness(t, &fakeRecognizer{fn: func(_ context.Context, progress func(int)) ([]model.RecognitionCandidate, error) {
		progress(20)
		return nil, errors.New("connection reset")
	}})
	h.captured(t)

	_, err := h.orch.ConfirmPhoto(context.Background())
	assert.ErrorIs(t, err, common.ErrUploadFailed)
	assert.Equal(t, StateError, h.orch.State())
	assert.ErrorIs(t, h.orch.Err(), common.ErrUploadFailed)

	status, _ := h.orch.Status()
	assert.Equal(t, pipeline.StageError, status.Stage)
	assert.False(t, status.ShowProgress())

	assert.ErrorIs(t, h.orch.OpenCamera(context.Background()), common.ErrInvalidTransition)
	require.NoError(t, h.orch.Discard())
	assert.Equal(t, StateIdle, h.orch.State())
	require.NoError(t, h.orch.OpenCamera(context.Background()))

	require.Len(t, h.journal.attempts, 1)
	assert.Equal(t, "failed", h.journal.attempts[0].Outcome)
	assert.Equal(t, string(pipeline.StageUploading), h.journal.attempts[0].Stage)
}

func TestConfirmPhoto_AnalysisFailure(t *testing.T) {
	h := newHarness(t, &fakeRecognizer{fn: func(_ context.Context, progress func(int)) ([]model.RecognitionCandidate, error) {
		progress(100)
		return nil, errors.New("model crashed")
	}})
	h.captured(t)

	_, err := h.orch.ConfirmPhoto(context.Background())
	assert.ErrorIs(t, err, common.ErrRecognitionFailed)
	assert.Equal(t, string(pipeline.StageAnalyzing), h.journal.attempts[0].Stage)
}

func TestConfirmPhoto_Timeout(t *testing.T) {
	h := newHarness(t, &fakeRecognizer{fn: func(ctx context.Context, progress func(int)) ([]model.RecognitionCandidate, error) {
		progress(100)
		<-ctx.Done()
		return nil, ctx.Err()
	}}, func(cfg *Config) {
		cfg.RecognitionTimeout = 20 * time.Millisecond
	})
	h.captured(t)

	_, err := h.orch.ConfirmPhoto(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, common.ErrRecognitionFailed)

	status, _ := h.orch.Status()
	assert.Equal(t, "timeout", status.Detail)
	assert.Equal(t, "timeout", h.journal.attempts[0].Outcome)
}

func TestConfirmPhoto_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, &fakeRecognizer{fn: func(rctx context.Context, _ func(int)) ([]model.RecognitionCandidate, error) {
		cancel()
		<-rctx.Done()
		return nil, rctx.Err()
	}})
	h.captured(t)

	_, err := h.orch.ConfirmPhoto(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, common.ErrUploadFailed)
	assert.Equal(t, StateError, h.orch.State())
}

func TestCaptureFlow_Transitions(t *testing.T) {
	h := newHarness(t, succeed(nil))
	ctx := context.Background()

	_, err := h.orch.Capture()
	assert.ErrorIs(t, err, common.ErrNotReady)
	_, err = h.orch.ConfirmPhoto(ctx)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	h.captured(t)
	require.NoError(t, h.orch.Retake(ctx))
	assert.Equal(t, StateCapturing, h.orch.State())
	assert.Equal(t, 1, h.device.openStreams())

	require.NoError(t, h.orch.CancelCapture())
	assert.Equal(t, StateIdle, h.orch.State())
	assert.Equal(t, 0, h.device.openStreams())
}

func TestOpenCamera_DeviceUnavailable(t *testing.T) {
	h := newHarness(t, succeed(nil))
	h.device.err = common.ErrDeviceUnavailable

	assert.ErrorIs(t, h.orch.OpenCamera(context.Background()), common.ErrDeviceUnavailable)
	assert.Equal(t, StateIdle, h.orch.State())
}

func TestSave_Success(t *testing.T) {
	h := newHarness(t, succeed(nil))
	_, err := h.orch.SetStatus("A", model.StatusPresent)
	require.NoError(t, err)

	result, err := h.orch.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Saved)
	assert.False(t, result.PendingEdits)
	require.Len(t, h.persister.saved, 1)
	assert.Equal(t, model.StatusPresent, h.persister.saved[0][0].Status)
}

func TestSave_FailureKeepsDraft(t *testing.T) {
	h := newHarness(t, succeed(nil))
	h.persister.err = errors.New("502 bad gateway")

	_, err := h.orch.Save(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPersistenceFailed)

	var unsent *UnsentSnapshotError
	require.ErrorAs(t, err, &unsent)
	assert.Len(t, unsent.Entries, 3)
	assert.Equal(t, int64(1), unsent.DraftID)

	require.Len(t, h.journal.drafts, 1)
	assert.Equal(t, "S-1", h.journal.drafts[0].SessionID)
	assert.Equal(t, "Physics · 10-B", h.journal.drafts[0].Title)

	_, err = h.orch.SetStatus("B", model.StatusLate)
	require.NoError(t, err, "ledger stays editable after a failed save")
}

func TestSave_SingleFlightAndConcurrentEdits(t *testing.T) {
	h := newHarness(t, succeed(nil))
	h.persister.block = make(chan struct{})
	h.persister.entered = make(chan struct{}, 1)

	type outcome struct {
		result SaveResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := h.orch.Save(context.Background())
		done <- outcome{result, err}
	}()
	<-h.persister.entered

	_, err := h.orch.Save(context.Background())
	assert.ErrorIs(t, err, common.ErrSaveInFlight)

	_, err = h.orch.SetStatus("C", model.StatusLate)
	require.NoError(t, err)

	close(h.persister.block)
	got := <-done
	require.NoError(t, got.err)
	assert.True(t, got.result.PendingEdits)
	assert.Equal(t, model.StatusAbsent, h.persister.saved[0][2].Status, "snapshot predates the edit")
}

func TestClose_IsIdempotent(t *testing.T) {
	h := newHarness(t, succeed(nil))
	require.NoError(t, h.orch.OpenCamera(context.Background()))

	require.NoError(t, h.orch.Close())
	require.NoError(t, h.orch.Close())
	assert.Equal(t, StateClosed, h.orch.State())
	assert.Equal(t, 0, h.device.openStreams())

	_, err := h.orch.SetStatus("A", model.StatusPresent)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestStatus_ClearedWhenAttemptEnds(t *testing.T) {
	ctx := context.Background()

	t.Run("after confirm", func(t *testing.T) {
		h := newHarness(t, succeed(classroomCandidates()))
		h.captured(t)
		r, err := h.orch.ConfirmPhoto(ctx)
		require.NoError(t, err)

		_, err = h.orch.ConfirmReview(r.Selected())
		require.NoError(t, err)
		_, ok := h.orch.Status()
		assert.False(t, ok)
	})

	t.Run("after reject and a new capture", func(t *testing.T) {
		h := newHarness(t, succeed(classroomCandidates()))
		h.captured(t)
		_, err := h.orch.ConfirmPhoto(ctx)
		require.NoError(t, err)
		_, ok := h.orch.Status()
		require.True(t, ok)

		require.NoError(t, h.orch.RejectReview())
		_, ok = h.orch.Status()
		assert.False(t, ok)

		require.NoError(t, h.orch.OpenCamera(ctx))
		assert.Equal(t, StateCapturing, h.orch.State())
		_, ok = h.orch.Status()
		assert.False(t, ok)
	})

	t.Run("after close", func(t *testing.T) {
		h := newHarness(t, succeed(classroomCandidates()))
		h.captured(t)
		_, err := h.orch.ConfirmPhoto(ctx)
		require.NoError(t, err)

		require.NoError(t, h.orch.Close())
		_, ok := h.orch.Status()
		assert.False(t, ok)
	})

	t.Run("error keeps status until discard", func(t *testing.T) {
		h := newHarness(t, &fakeRecognizer{fn: func(context.Context, func(int)) ([]model.RecognitionCandidate, error) {
			return nil, common.ErrRecognitionFailed
		}})
		h.captured(t)
		_, err := h.orch.ConfirmPhoto(ctx)
		require.Error(t, err)

		status, ok := h.orch.Status()
		require.True(t, ok)
		assert.Equal(t, pipeline.StageError, status.Stage)

		require.NoError(t, h.orch.Discard())
		_, ok = h.orch.Status()
		assert.False(t, ok)
	})
}

func TestOpenCamera_SlowDeviceDoesNotBlockSession(t *testing.T) {
	h := newHarness(t, succeed(nil))
	h.device.entered = make(chan struct{})
	h.device.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.orch.OpenCamera(context.Background()) }()
	<-h.device.entered

	assert.Equal(t, StateIdle, h.orch.State())
	assert.ErrorIs(t, h.orch.OpenCamera(context.Background()), common.ErrCaptureInFlight)
	require.NoError(t, h.orch.Close())

	close(h.device.gate)
	err := <-done
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
	assert.Equal(t, StateClosed, h.orch.State())
	assert.Equal(t, 0, h.device.openStreams(), "a camera opened after close is released")
}

func TestHasUnsavedChanges(t *testing.T) {
	h := newHarness(t, succeed(nil))
	ctx := context.Background()
	assert.False(t, h.orch.HasUnsavedChanges())

	_, err := h.orch.SetStatus("A", model.StatusPresent)
	require.NoError(t, err)
	assert.True(t, h.orch.HasUnsavedChanges())

	_, err = h.orch.Save(ctx)
	require.NoError(t, err)
	assert.False(t, h.orch.HasUnsavedChanges())

	h.persister.err = common.ErrPersistenceFailed
	require.NoError(t, h.orch.BulkSetStatus(model.StatusLate))
	_, err = h.orch.Save(ctx)
	require.Error(t, err)
	assert.True(t, h.orch.HasUnsavedChanges(), "a failed save leaves the edits unsaved")
}

func TestThreshold_ExplicitZeroSelectsEveryCandidate(t *testing.T) {
	zero := 0.0
	h := newHarness(t, succeed(classroomCandidates()), func(c *Config) { c.Threshold = &zero })

	h.captured(t)
	r, err := h.orch.ConfirmPhoto(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, r.Selected())
	assert.Zero(t, r.LowConfidenceCount())
}
