// Package themes holds the color themes of the review screen.
package themes

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/reconcile"
)

// Theme defines the visual style for the TUI.
type Theme struct {
	Selected      lipgloss.Style
	StatusPending lipgloss.Style
	StatusInfo    lipgloss.Style
	StatusError   lipgloss.Style
	StatusWarning lipgloss.Style
	StatusSuccess lipgloss.Style
	Title         lipgloss.Style
	Subtitle      lipgloss.Style
	Normal        lipgloss.Style
	Bold          lipgloss.Style
	RoundedBox    lipgloss.Style
	Highlighted   lipgloss.Style
	Primary       lipgloss.Color
	Muted         lipgloss.Color
	Border        lipgloss.Color
	Info          lipgloss.Color
	Error         lipgloss.Color
	Warning       lipgloss.Color
	Success       lipgloss.Color
}

func build(primary, success, warning, errColor, info, fg, subtle, border, muted, selectedFg string) Theme {
	return Theme{
		Primary: lipgloss.Color(primary),
		Success: lipgloss.Color(success),
		Warning: lipgloss.Color(warning),
		Error:   lipgloss.Color(errColor),
		Info:    lipgloss.Color(info),
		Border:  lipgloss.Color(border),
		Muted:   lipgloss.Color(muted),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(fg)).
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(subtle)),
		Normal: lipgloss.NewStyle().
			Foreground(lipgloss.Color(fg)),
		Bold: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(fg)),
		Selected: lipgloss.NewStyle().
			Background(lipgloss.Color(primary)).
			Foreground(lipgloss.Color(selectedFg)).
			Bold(true),
		Highlighted: lipgloss.NewStyle().
			Background(lipgloss.Color(border)).
			Foreground(lipgloss.Color(fg)),
		RoundedBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(border)).
			Padding(0, 1),

		StatusSuccess: lipgloss.NewStyle().
			Foreground(lipgloss.Color(success)).
			Bold(true),
		StatusWarning: lipgloss.NewStyle().
			Foreground(lipgloss.Color(warning)).
			Bold(true),
		StatusError: lipgloss.NewStyle().
			Foreground(lipgloss.Color(errColor)).
			Bold(true),
		StatusInfo: lipgloss.NewStyle().
			Foreground(lipgloss.Color(info)).
			Bold(true),
		StatusPending: lipgloss.NewStyle().
			Foreground(lipgloss.Color(muted)).
			Italic(true),
	}
}

// Default is the default theme.
var Default = build("#7c3aed", "#10b981", "#f59e0b", "#ef4444", "#3b82f6",
	"#fafafa", "#a3a3a3", "#404040", "#737373", "#fafafa")

// CatppuccinMocha is the Catppuccin Mocha theme.
var CatppuccinMocha = build("#cba6f7", "#a6e3a1", "#f9e2af", "#f38ba8", "#89dceb",
	"#cdd6f4", "#a6adc8", "#45475a", "#6c7086", "#1e1e2e")

// GetTheme returns a theme by name.
func GetTheme(name string) Theme {
	switch name {
	case "catppuccin-mocha":
		return CatppuccinMocha
	default:
		return Default
	}
}

// Tier returns the style of a confidence tier: high is green, medium amber, low red.
func (t Theme) Tier(tier reconcile.Tier) lipgloss.Style {
	switch tier {
	case reconcile.TierHigh:
		return t.StatusSuccess
	case reconcile.TierMedium:
		return t.StatusWarning
	default:
		return t.StatusError
	}
}

// Status returns the style of an attendance status.
func (t Theme) Status(status model.AttendanceStatus) lipgloss.Style {
	switch status {
	case model.StatusPresent:
		return t.StatusSuccess
	case model.StatusLate:
		return t.StatusWarning
	case model.StatusExcused:
		return t.StatusInfo
	default:
		return t.StatusError
	}
}
