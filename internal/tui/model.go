// Package tui provides the full screen review of recognition results.
package tui

import (
	"log/slog"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/reconcile"
	"github.com/Veraticus/rollcall/internal/tui/themes"
)

// Decision is the outcome of a review.
type Decision int

// Review outcomes.
const (
	DecisionPending Decision = iota
	DecisionConfirm
	DecisionReject
)

// chromeLines is the number of lines around the candidate list.
const chromeLines = 9

// Model is the bubbletea model of the review screen. The reconciler is shared
// with the caller, which reads the final selection from it.
type Model struct {
	theme      themes.Theme
	rec        *reconcile.Reconciler
	help       help.Model
	session    model.Session
	keymap     KeyMap
	candidates []reconcile.Candidate
	cursor     int
	offset     int
	width      int
	height     int
	decision   Decision
	aborted    bool
}

// NewModel creates a review model for rec.
func NewModel(session model.Session, rec *reconcile.Reconciler, opts ...Option) Model {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	h := help.New()
	h.Width = cfg.Width
	return Model{
		theme:      cfg.Theme,
		rec:        rec,
		help:       h,
		session:    session,
		keymap:     DefaultKeyMap(),
		candidates: rec.Candidates(),
		width:      cfg.Width,
		height:     cfg.Height,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.clampOffset()
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.ForceQuit):
		m.decision = DecisionReject
		m.aborted = true
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Confirm):
		m.decision = DecisionConfirm
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Reject):
		m.decision = DecisionReject
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keymap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keymap.Down):
		if m.cursor < len(m.candidates)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keymap.Home):
		m.cursor = 0
	case key.Matches(msg, m.keymap.End):
		m.cursor = max(len(m.candidates)-1, 0)
	case key.Matches(msg, m.keymap.Toggle):
		if len(m.candidates) > 0 {
			if err := m.rec.Toggle(m.candidates[m.cursor].Student.ID); err != nil {
				slog.Warn("Failed to toggle candidate", "error", err)
			}
		}
	case key.Matches(msg, m.keymap.SelectAll):
		m.rec.SelectAll()
	case key.Matches(msg, m.keymap.DeselectAll):
		m.rec.DeselectAll()
	}
	m.clampOffset()
	return m, nil
}

// clampOffset keeps the cursor inside the visible window.
func (m *Model) clampOffset() {
	visible := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
	if maxOffset := max(len(m.candidates)-visible, 0); m.offset > maxOffset {
		m.offset = maxOffset
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m Model) visibleRows() int {
	return max(m.height-chromeLines, 1)
}

// Decision returns the review outcome.
func (m Model) Decision() Decision {
	return m.decision
}

// Aborted reports whether the screen was left with Ctrl+C.
func (m Model) Aborted() bool {
	return m.aborted
}

// Cursor returns the index of the highlighted candidate.
func (m Model) Cursor() int {
	return m.cursor
}
