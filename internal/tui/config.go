package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/rollcall/internal/tui/themes"
)

// Config holds TUI configuration.
type Config struct {
	Theme          themes.Theme
	ProgramOptions []tea.ProgramOption
	Width          int
	Height         int
	AltScreen      bool
}

// Option is a functional option for configuring the TUI.
type Option func(*Config)

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Theme:     themes.Default,
		Width:     80,
		Height:    24,
		AltScreen: true,
	}
}

// WithTheme sets the visual theme.
func WithTheme(theme themes.Theme) Option {
	return func(c *Config) {
		c.Theme = theme
	}
}

// WithSize sets the initial terminal size.
func WithSize(width, height int) Option {
	return func(c *Config) {
		c.Width = width
		c.Height = height
	}
}

// WithAltScreen controls whether the review screen takes over the terminal.
func WithAltScreen(enabled bool) Option {
	return func(c *Config) {
		c.AltScreen = enabled
	}
}

// WithProgramOptions passes extra options to the bubbletea program, e.g. its
// input and output.
func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(c *Config) {
		c.ProgramOptions = append(c.ProgramOptions, opts...)
	}
}
