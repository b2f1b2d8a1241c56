package pipeline

import (
	"fmt"
	"sync"

	"github.com/Veraticus/rollcall/internal/common"
)

const (
	// AnalysisBaseline is the progress shown when upload is done and analysis starts.
	AnalysisBaseline = 30

	uploadMessage   = "Uploading classroom photo"
	analyzeMessage  = "Analyzing faces"
	completeMessage = "Recognition complete"
	failMessage     = "Recognition failed"
)

// Listener receives every status the tracker moves through.
type Listener func(Status)

// Option configures a Tracker.
type Option func(*Tracker)

// WithListener registers a status listener.
func WithListener(l Listener) Option {
	return func(t *Tracker) {
		t.listener = l
	}
}

// Tracker is a single-use state holder for one recognition attempt. It does not
// drive itself: the orchestrator advances it. After an error a fresh tracker is
// required.
type Tracker struct {
	listener Listener
	status   Status
	mu       sync.Mutex
}

// NewTracker returns a tracker in the uploading stage at zero progress.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		status: Status{
			Stage:   StageUploading,
			Message: uploadMessage,
			Detail:  "Please wait while the image is uploaded",
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.notify(t.status)
	return t
}

// Status returns a copy of the current status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetUploadProgress records upload progress. Only valid while uploading, and n
// may not go backwards. Reaching 100 does not start analysis.
func (t *Tracker) SetUploadProgress(n int) error {
	t.mu.Lock()
	if t.status.Stage != StageUploading {
		stage := t.status.Stage
		t.mu.Unlock()
		return fmt.Errorf("%w: upload progress in stage %s", common.ErrInvalidTransition, stage)
	}
	if n < 0 || n > 100 {
		t.mu.Unlock()
		return fmt.Errorf("%w: upload progress %d out of range", common.ErrInvalidTransition, n)
	}
	if n < t.status.Progress {
		prev := t.status.Progress
		t.mu.Unlock()
		return fmt.Errorf("%w: upload progress went from %d to %d", common.ErrInvalidTransition, prev, n)
	}
	if n == t.status.Progress {
		t.mu.Unlock()
		return nil
	}
	t.status.Progress = n
	t.status.Detail = fmt.Sprintf("%d%% complete", n)
	status := t.status
	t.mu.Unlock()

	t.notify(status)
	return nil
}

// BeginAnalysis moves from uploading to analyzing. The upload must have
// reached 100 percent.
func (t *Tracker) BeginAnalysis(message string) error {
	t.mu.Lock()
	if t.status.Stage != StageUploading {
		stage := t.status.Stage
		t.mu.Unlock()
		return fmt.Errorf("%w: begin analysis from %s", common.ErrInvalidTransition, stage)
	}
	if t.status.Progress < 100 {
		progress := t.status.Progress
		t.mu.Unlock()
		return fmt.Errorf("%w: upload only %d%% complete", common.ErrInvalidTransition, progress)
	}
	if message == "" {
		message = analyzeMessage
	}
	t.status = Status{
		Stage:    StageAnalyzing,
		Progress: AnalysisBaseline,
		Message:  message,
		Detail:   "Detecting and recognizing students in the image",
	}
	status := t.status
	t.mu.Unlock()

	t.notify(status)
	return nil
}

// SetAnalysisProgress advances progress inside the analyzing stage.
func (t *Tracker) SetAnalysisProgress(n int) error {
	t.mu.Lock()
	if t.status.Stage != StageAnalyzing {
		stage := t.status.Stage
		t.mu.Unlock()
		return fmt.Errorf("%w: analysis progress in stage %s", common.ErrInvalidTransition, stage)
	}
	if n < t.status.Progress || n > 99 {
		t.mu.Unlock()
		return fmt.Errorf("%w: analysis progress %d", common.ErrInvalidTransition, n)
	}
	t.status.Progress = n
	status := t.status
	t.mu.Unlock()

	t.notify(status)
	return nil
}

// Complete moves from analyzing to complete and forces progress to 100.
func (t *Tracker) Complete(resultCount int) error {
	t.mu.Lock()
	if t.status.Stage != StageAnalyzing {
		stage := t.status.Stage
		t.mu.Unlock()
		return fmt.Errorf("%w: complete from %s", common.ErrInvalidTransition, stage)
	}
	t.status = Status{
		Stage:    StageComplete,
		Progress: 100,
		Message:  completeMessage,
		Detail:   fmt.Sprintf("Recognized %d students", resultCount),
	}
	status := t.status
	t.mu.Unlock()

	t.notify(status)
	return nil
}

// Fail moves an active tracker to the error stage. Failing an already failed
// tracker is a no-op; failing a completed one is rejected.
func (t *Tracker) Fail(reason string) error {
	t.mu.Lock()
	switch t.status.Stage {
	case StageError:
		t.mu.Unlock()
		return nil
	case StageComplete:
		t.mu.Unlock()
		return fmt.Errorf("%w: fail after complete", common.ErrInvalidTransition)
	}
	if reason == "" {
		reason = "An unexpected error occurred. Please try again."
	}
	t.status = Status{
		Stage:   StageError,
		Message: failMessage,
		Detail:  reason,
	}
	status := t.status
	t.mu.Unlock()

	t.notify(status)
	return nil
}

func (t *Tracker) notify(status Status) {
	if t.listener != nil {
		t.listener(status)
	}
}
