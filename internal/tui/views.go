package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/rollcall/internal/reconcile"
)

// View renders the UI.
func (m Model) View() string {
	if m.decision != DecisionPending {
		return ""
	}

	sections := []string{
		m.theme.Title.Render("Recognition Results · " + m.session.Title()),
		m.renderSummary(),
	}
	if warn := m.renderWarnings(); warn != "" {
		sections = append(sections, warn)
	}
	sections = append(sections, m.renderList(), m.help.View(m.keymap))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderSummary() string {
	s := m.rec.Summary()
	return fmt.Sprintf("%d recognized · %s · %s · %s · %s",
		s.Total,
		m.theme.Tier(reconcile.TierHigh).Render(fmt.Sprintf("%d high", s.High)),
		m.theme.Tier(reconcile.TierMedium).Render(fmt.Sprintf("%d medium", s.Medium)),
		m.theme.Tier(reconcile.TierLow).Render(fmt.Sprintf("%d low", s.Low)),
		m.theme.Bold.Render(fmt.Sprintf("%d selected", len(m.rec.Selected()))))
}

func (m Model) renderWarnings() string {
	var lines []string
	if low := m.rec.LowConfidenceCount(); low > 0 {
		lines = append(lines, m.theme.StatusWarning.Render(fmt.Sprintf(
			"⚠ %d low-confidence match(es) below %.0f%% are not selected", low, m.rec.Threshold()*100)))
	}
	if dropped := m.rec.Summary().Dropped(); dropped > 0 {
		lines = append(lines, m.theme.StatusPending.Render(fmt.Sprintf(
			"%d detection(s) ignored (duplicates, unknown or invalid)", dropped)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderList() string {
	if len(m.candidates) == 0 {
		return m.theme.RoundedBox.Render(m.theme.StatusPending.Render(
			"No students were recognized. Press Esc to go back."))
	}

	end := min(m.offset+m.visibleRows(), len(m.candidates))
	rows := make([]string, 0, end-m.offset)
	for i := m.offset; i < end; i++ {
		rows = append(rows, m.renderRow(i, m.candidates[i]))
	}
	if len(m.candidates) > end-m.offset {
		rows = append(rows, m.theme.StatusPending.Render(
			fmt.Sprintf("%d-%d of %d", m.offset+1, end, len(m.candidates))))
	}
	return m.theme.RoundedBox.Render(strings.Join(rows, "\n"))
}

func (m Model) renderRow(i int, c reconcile.Candidate) string {
	mark := "[ ]"
	if m.rec.IsSelected(c.Student.ID) {
		mark = "[x]"
	}
	name := c.Student.Name
	if c.Student.RollNumber != "" {
		name = fmt.Sprintf("%s (%s)", name, c.Student.RollNumber)
	}
	confidence := m.theme.Tier(c.Tier).Render(fmt.Sprintf("%3.0f%% %-6s", c.Confidence*100, c.Tier.Label()))
	line := fmt.Sprintf("%s %-32s %s", mark, name, confidence)
	if i == m.cursor {
		return m.theme.Highlighted.Render("> " + line)
	}
	return "  " + line
}
