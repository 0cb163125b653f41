package tui

import (
	"github.com/charmbracelet/lipgloss"

	"ctrdash/internal/monitor"
)

var (
	colorOK      = lipgloss.Color("42")
	colorBusy    = lipgloss.Color("214")
	colorBad     = lipgloss.Color("196")
	colorMuted   = lipgloss.Color("245")
	colorSpecial = lipgloss.Color("170")
	colorAccent  = lipgloss.Color("63")

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	helpStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle    = lipgloss.NewStyle().Foreground(colorBad)
)

// badge renders the state marker shown next to a unit name.
func badge(u *unitView) string {
	switch {
	case u.statusErr:
		return errorStyle.Render("[Error]")
	case !u.known:
		return lipgloss.NewStyle().Foreground(colorMuted).Render("[Unknown]")
	}
	text := "[" + u.state.String() + "]"
	switch u.state {
	case monitor.Up:
		return lipgloss.NewStyle().Foreground(colorOK).Render(text)
	case monitor.Failed:
		return lipgloss.NewStyle().Foreground(colorBad).Render(text)
	case monitor.Maintenance:
		return lipgloss.NewStyle().Foreground(colorSpecial).Render(text)
	case monitor.Down:
		return lipgloss.NewStyle().Foreground(colorMuted).Render(text)
	default:
		return lipgloss.NewStyle().Foreground(colorBusy).Render(text)
	}
}
