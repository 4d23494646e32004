package components

import (
	"strings"

	"github.com/chun1617/Kir-Manager-sub002/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// RenderStatusBar renders the bottom status bar. monitorState is the
// current daemon state label, dataAge the age of the loaded snapshot.
func RenderStatusBar(width int, monitorState, dataAge string) string {
	t := theme.Active

	style := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface).
		Width(width)

	left := " [?]help  [R]efresh  [q]uit"

	var right string
	if monitorState != "" {
		dot := lipgloss.NewStyle().Foreground(stateColor(monitorState)).Background(t.Surface)
		right = dot.Render("● ") + monitorState
	}
	if dataAge != "" {
		if right != "" {
			right += "  "
		}
		right += dataAge
	}
	right += " "

	padding := width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 0 {
		padding = 0
	}

	return style.Render(left + strings.Repeat(" ", padding) + right)
}

func stateColor(state string) lipgloss.Color {
	t := theme.Active
	switch state {
	case "running":
		return t.Green
	case "cooldown":
		return t.Orange
	default:
		return t.TextDim
	}
}
