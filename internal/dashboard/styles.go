package dashboard

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor = lipgloss.Color("#A78BFA") // Purple
	MutedColor   = lipgloss.Color("#9CA3AF") // Gray
	BorderColor  = lipgloss.Color("#6B7280") // Gray-500
	TextColor    = lipgloss.Color("#F9FAFB") // Light text

	// State colors
	StateActive    = lipgloss.Color("#10B981") // Green
	StatePending   = lipgloss.Color("#9CA3AF") // Gray
	StatePaused    = lipgloss.Color("#60A5FA") // Blue
	StateCompleted = lipgloss.Color("#A78BFA") // Purple
	StateError     = lipgloss.Color("#F87171") // Red

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		Padding(0, 1)

	Cell = lipgloss.NewStyle().
		Foreground(TextColor).
		Padding(0, 1)

	Muted = lipgloss.NewStyle().Foreground(MutedColor)
)

// StateColor returns the color for a migration state
func StateColor(state string) lipgloss.Color {
	switch state {
	case "active":
		return StateActive
	case "pending":
		return StatePending
	case "paused":
		return StatePaused
	case "completed":
		return StateCompleted
	case "error":
		return StateError
	default:
		return MutedColor
	}
}

// StateIcon returns an icon for a migration state
func StateIcon(state string) string {
	switch state {
	case "active":
		return "●"
	case "pending":
		return "○"
	case "paused":
		return "⏸"
	case "completed":
		return "✓"
	case "error":
		return "✗"
	default:
		return "●"
	}
}
