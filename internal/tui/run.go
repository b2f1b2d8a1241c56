package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/reconcile"
)

// ErrAborted is returned when the review screen is left with Ctrl+C.
var ErrAborted = errors.New("review aborted")

// Reviewer runs the review screen for each recognition result.
type Reviewer struct {
	opts []Option
}

// NewReviewer creates a full screen reviewer.
func NewReviewer(opts ...Option) *Reviewer {
	return &Reviewer{opts: opts}
}

// Review blocks until the teacher confirms or rejects the proposal. It returns
// true when the reconciler's current selection should be confirmed.
func (r *Reviewer) Review(ctx context.Context, session model.Session, rec *reconcile.Reconciler) (bool, error) {
	cfg := defaultConfig()
	for _, opt := range r.opts {
		opt(&cfg)
	}

	programOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	programOpts = append(programOpts, cfg.ProgramOptions...)

	final, err := tea.NewProgram(NewModel(session, rec, r.opts...), programOpts...).Run()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("review screen failed: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return false, fmt.Errorf("review screen returned %T", final)
	}
	if m.Aborted() {
		return false, ErrAborted
	}
	return m.Decision() == DecisionConfirm, nil
}
