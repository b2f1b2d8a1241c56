package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/rollcall/internal/capture"
	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/session"
)

var consoleNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type stubStream struct{}

func (stubStream) Frame() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 40, 30)), nil
}

func (stubStream) Close() error { return nil }

type stubDevice struct{}

func (stubDevice) Name() string { return "stub" }

func (stubDevice) Open(context.Context) (capture.Stream, error) { return stubStream{}, nil }

type stubRecognizer struct {
	err        error
	candidates []model.RecognitionCandidate
}

func (r stubRecognizer) Recognize(_ context.Context, _ string, _ capture.Image, progress func(int)) ([]model.RecognitionCandidate, error) {
	progress(50)
	if r.err != nil {
		return nil, r.err
	}
	progress(100)
	return r.candidates, nil
}

type stubPersister struct {
	err   error
	saved [][]model.AttendanceEntry
	mu    sync.Mutex
}

func (p *stubPersister) MarkAttendance(_ context.Context, _ string, entries []model.AttendanceEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.saved = append(p.saved, entries)
	return nil
}

type stubJournal struct {
	drafts int64
}

func (j *stubJournal) SaveDraft(context.Context, model.Draft) (int64, error) {
	j.drafts++
	return j.drafts, nil
}

func (j *stubJournal) RecordLedgerWrites(context.Context, []model.LedgerWrite) error { return nil }

func (j *stubJournal) SaveAttempt(context.Context, model.RecognitionAttempt) error { return nil }

func classroom() model.Session {
	return model.Session{
		ID:          "S-1",
		SubjectName: "Physics",
		ClassName:   "10-B",
		Date:        "2026-03-02",
		StartTime:   "09:00",
		EndTime:     "09:45",
		StartedAt:   consoleNow,
		Roster: []model.Student{
			{ID: "A", Name: "Ada", RollNumber: "01"},
			{ID: "B", Name: "Ben", RollNumber: "02"},
			{ID: "C", Name: "Cy", RollNumber: "03"},
		},
	}
}

func recognized() []model.RecognitionCandidate {
	return []model.RecognitionCandidate{
		{StudentID: "A", Confidence: 0.92},
		{StudentID: "B", Confidence: 0.55},
		{StudentID: "C", Confidence: 0.92},
	}
}

type consoleHarness struct {
	orch      *session.Orchestrator
	persister *stubPersister
	out       *bytes.Buffer
}

func newConsoleHarness(t *testing.T, recognizer session.Recognizer) *consoleHarness {
	t.Helper()
	h := &consoleHarness{persister: &stubPersister{}, out: &bytes.Buffer{}}
	orch, err := session.New(session.Config{
		Session:    classroom(),
		Device:     stubDevice{},
		Recognizer: recognizer,
		Persister:  h.persister,
		Journal:    &stubJournal{},
		Now:        func() time.Time { return consoleNow.Add(time.Minute) },
	})
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *consoleHarness) run(t *testing.T, input string) {
	t.Helper()
	console := NewConsole(h.orch, strings.NewReader(input), h.out, WithConsoleClock(func() time.Time { return consoleNow }))
	require.NoError(t, console.Run(context.Background()))
}

func (h *consoleHarness) entry(t *testing.T, id string) model.AttendanceEntry {
	t.Helper()
	for _, e := range h.orch.Snapshot() {
		if e.StudentID == id {
			return e
		}
	}
	t.Fatalf("no entry for %s", id)
	return model.AttendanceEntry{}
}

func TestConsole_CaptureReviewAndSave(t *testing.T) {
	h := newConsoleHarness(t, stubRecognizer{candidates: recognized()})

	h.run(t, "capture\n\nc\na\nset 02 late\nsave\nquit\n")

	out := h.out.String()
	assert.Contains(t, out, "Physics · 10-B")
	assert.Contains(t, out, "Captured a 40x30 photo.")
	assert.Contains(t, out, "Marked 2 student(s) present")
	assert.Contains(t, out, "1 low-confidence match(es)")
	assert.Contains(t, out, "Ben is")
	assert.Contains(t, out, "Saved attendance for 3 students")

	require.Len(t, h.persister.saved, 1)
	saved := h.persister.saved[0]
	require.Len(t, saved, 3)
	assert.Equal(t, model.OriginAI, saved[0].Origin)
	assert.Equal(t, model.StatusLate, saved[1].Status)
	assert.Equal(t, model.OriginTeacher, saved[1].Origin)
	assert.Equal(t, model.StatusPresent, saved[2].Status)
	assert.Equal(t, session.StateIdle, h.orch.State())
}

func TestConsole_ReviewToggleIncludesLowConfidence(t *testing.T) {
	h := newConsoleHarness(t, stubRecognizer{candidates: recognized()})

	h.run(t, "capture\n\nc\n2\nt 3\na\nquit\n")

	assert.Equal(t, model.StatusPresent, h.entry(t, "A").Status)
	ben := h.entry(t, "B")
	assert.Equal(t, model.StatusPresent, ben.Status)
	assert.InDelta(t, 0.55, ben.ConfidenceValue(), 1e-9)
	assert.Equal(t, model.StatusAbsent, h.entry(t, "C").Status)
}

func TestConsole_RejectLeavesLedger(t *testing.T) {
	h := newConsoleHarness(t, stubRecognizer{candidates: recognized()})

	h.run(t, "capture\n\nc\nr\nquit\n")

	assert.Contains(t, h.out.String(), "Recognition results discarded.")
	for _, e := range h.orch.Snapshot() {
		assert.Equal(t, model.StatusAbsent, e.Status)
		assert.Equal(t, model.OriginSystem, e.Origin)
	}
}

func TestConsole_RetakeAndCancel(t *testing.T) {
	h := newConsoleHarness(t, stubRecognizer{candidates: recognized()})

	h.run(t, "capture\n\nr\n\nx\nquit\n")

	assert.Equal(t, 2, strings.Count(h.out.String(), "Captured a 40x30 photo."))
	assert.Equal(t, session.StateIdle, h.orch.State())
	assert.Equal(t, 0, h.orch.Stats().MarkedByAI)
}

func TestConsole_RecognitionFailureAllowsRetry(t *testing.T) {
	h := newConsoleHarness(t, stubRecognizer{err: fmt.Errorf("%w: server said no", common.ErrRecognitionFailed)})

	h.run(t, "capture\n\nc\nquit\n")

	out := h.out.String()
	assert.Contains(t, out, "Recognition failed.")
	assert.Contains(t, out, "Type 'capture' to try again.")
	assert.Equal(t, session.StateIdle, h.orch.State())
	require.NoError(t, h.orch.OpenCamera(context.Background()))
}

func TestConsole_SaveFailureReportsDraft(t *testing.T) {
	h := newConsoleHarness(t, stubRecognizer{})
	h.persister.err = fmt.Errorf("%w: status 502", common.ErrPersistenceFailed)

	h.run(t, "all present\nsave\nquit\n")

	out := h.out.String()
	assert.Contains(t, out, "Attendance kept as draft 1.")
	assert.Contains(t, out, "rollcall drafts resend 1")
}

func TestConsole_QuitAsksAboutUnsavedEdits(t *testing.T) {
	t.Run("declined then saved", func(t *testing.T) {
		h := newConsoleHarness(t, stubRecognizer{})
		h.run(t, "set 02 late\nquit\nn\nsave\nquit\n")

		out := h.out.String()
		assert.Contains(t, out, "changes that were not saved")
		assert.Contains(t, out, "Leave without saving?")
		require.Len(t, h.persister.saved, 1)
		assert.Equal(t, model.StatusLate, h.persister.saved[0][1].Status)
	})

	t.Run("confirmed", func(t *testing.T) {
		h := newConsoleHarness(t, stubRecognizer{})
		h.run(t, "set 02 late\nquit\ny\nsave\n")

		assert.Contains(t, h.out.String(), "Leave without saving?")
		assert.Empty(t, h.persister.saved, "console exited before the save command")
	})

	t.Run("nothing to save", func(t *testing.T) {
		h := newConsoleHarness(t, stubRecognizer{})
		h.run(t, "quit\nsave\n")

		assert.NotContains(t, h.out.String(), "Leave without saving?")
		assert.Empty(t, h.persister.saved)
	})
}

func TestConsole_Execute(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
		quit    bool
	}{
		{name: "blank", line: "   "},
		{name: "help", line: "help"},
		{name: "set by id", line: "set A excused"},
		{name: "set by roll", line: "set 03 late"},
		{name: "unknown student", line: "set 99 present", wantErr: common.ErrUnknownStudent},
		{name: "bad status", line: "set 01 asleep", wantErr: common.ErrInvalidStatus},
		{name: "bulk", line: "all Present"},
		{name: "filter", line: "filter absent"},
		{name: "stats", line: "stats"},
		{name: "quit", line: "quit", quit: true},
	}
	h := newConsoleHarness(t, stubRecognizer{})
	console := NewConsole(h.orch, strings.NewReader(""), h.out)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quit, err := console.Execute(context.Background(), tt.line)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.quit, quit)
		})
	}

	_, err := console.Execute(context.Background(), "dance")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestConsole_FilterAndShow(t *testing.T) {
	h := newConsoleHarness(t, stubRecognizer{})
	_, err := h.orch.SetStatus("B", model.StatusLate)
	require.NoError(t, err)

	h.run(t, "filter late\nfilter excused\nshow\n")

	out := h.out.String()
	assert.Contains(t, out, "Ben")
	assert.Contains(t, out, "No students are excused.")
	assert.Contains(t, out, "Roll No")
	assert.Contains(t, out, "33.3% attendance")
}

func TestConsole_CancelledContext(t *testing.T) {
	h := newConsoleHarness(t, stubRecognizer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	console := NewConsole(h.orch, blockingReader{}, h.out)
	err := console.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}
