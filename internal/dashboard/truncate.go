package dashboard

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Column limits for cells whose length is set by the repository, not by us.
const (
	maxIDWidth    = 40
	maxErrorWidth = 120
)

// Truncate shortens s to maxWidth terminal columns, ending in "..." when
// anything was cut. Escape sequences and wide runes are measured the way
// the terminal draws them, so styled text can be passed in directly.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}
