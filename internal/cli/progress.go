package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/rollcall/internal/pipeline"
)

// ProgressReporter renders recognition pipeline updates as a progress bar.
// It is safe to feed from the orchestrator's status callback.
type ProgressReporter struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	stage  pipeline.Stage
	mu     sync.Mutex
}

// NewProgressReporter creates a reporter writing to writer.
func NewProgressReporter(writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &ProgressReporter{writer: writer}
}

// Update renders status.
func (r *ProgressReporter) Update(status pipeline.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch status.Stage {
	case pipeline.StageError:
		r.closeBar()
		msg := status.Message
		if status.Detail != "" {
			msg = fmt.Sprintf("%s (%s)", msg, status.Detail)
		}
		r.println(FormatError(msg))
		return
	case pipeline.StageComplete:
		if r.bar != nil {
			_ = r.bar.Set(100)
		}
		r.closeBar()
		r.println(FormatSuccess(status.Message))
		return
	}

	if r.bar == nil || r.stage != status.Stage {
		r.closeBar()
		r.bar = r.newBar(status.Message)
		r.stage = status.Stage
	}
	if err := r.bar.Set(status.Progress); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

func (r *ProgressReporter) newBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(r.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (r *ProgressReporter) closeBar() {
	if r.bar == nil {
		return
	}
	if err := r.bar.Exit(); err != nil {
		slog.Warn("Failed to close progress bar", "error", err)
	}
	r.println("")
	r.bar = nil
	r.stage = ""
}

func (r *ProgressReporter) println(s string) {
	if _, err := fmt.Fprintln(r.writer, s); err != nil {
		slog.Warn("Failed to write progress output", "error", err)
	}
}
