package ui

import "github.com/charmbracelet/lipgloss"

// Colors for the UI theme - Muted Professional Palette
var (
	ColorPrimary   = lipgloss.Color("#A78BFA") // Soft Purple (Lavender 400)
	ColorSecondary = lipgloss.Color("#22D3EE") // Bright Cyan (Cyan 400)
	ColorSuccess   = lipgloss.Color("#059669") // Emerald 600 (muted green)
	ColorWarning   = lipgloss.Color("#D97706") // Amber 600 (muted amber)
	ColorError     = lipgloss.Color("#DC2626") // Red 600 (muted red)
	ColorMuted     = lipgloss.Color("#9CA3AF") // Neutral Gray (Gray 400)
	ColorText      = lipgloss.Color("#F1F5F9") // Soft White (Slate 100)
	ColorBorder    = lipgloss.Color("#1E293B") // Subtle Slate Border
	ColorHighlight = lipgloss.Color("#E9D5FF") // Soft Purple (Purple 200)
	ColorDim       = lipgloss.Color("#6B7280") // Gray 500
)

// Styles holds the lipgloss styles used by the browser.
type Styles struct {
	Title     lipgloss.Style
	Dir       lipgloss.Style
	File      lipgloss.Style
	Selected  lipgloss.Style
	Connector lipgloss.Style
	Status    lipgloss.Style
	Busy      lipgloss.Style
	Error     lipgloss.Style
	Pane      lipgloss.Style
	Help      lipgloss.Style
}

// DefaultStyles returns the default theme.
func DefaultStyles() *Styles {
	return &Styles{
		Title:     lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true),
		Dir:       lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true),
		File:      lipgloss.NewStyle().Foreground(ColorText),
		Selected:  lipgloss.NewStyle().Foreground(ColorHighlight).Background(ColorBorder).Bold(true),
		Connector: lipgloss.NewStyle().Foreground(ColorDim),
		Status:    lipgloss.NewStyle().Foreground(ColorMuted),
		Busy:      lipgloss.NewStyle().Foreground(ColorWarning),
		Error:     lipgloss.NewStyle().Foreground(ColorError),
		Pane:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorBorder).Padding(0, 1),
		Help:      lipgloss.NewStyle().Foreground(ColorDim),
	}
}
