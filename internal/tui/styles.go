package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/lockstep/internal/models"
)

var (
	accent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	muted  = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	alarm  = lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF5F5F"}
	amber  = lipgloss.AdaptiveColor{Light: "#B36B00", Dark: "#FFAF00"}
	calm   = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#87D787"}

	tabBorder = lipgloss.Border{Bottom: "─"}

	activeTabStyle   = lipgloss.NewStyle().Foreground(accent).Bold(true).Padding(0, 2).Border(tabBorder, false, false, true).BorderForeground(accent)
	inactiveTabStyle = lipgloss.NewStyle().Foreground(muted).Padding(0, 2).Border(tabBorder, false, false, true).BorderForeground(muted)

	selectedStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)
	dangerStyle   = lipgloss.NewStyle().Foreground(alarm).Bold(true)
	warningStyle  = lipgloss.NewStyle().Foreground(amber)

	docStyle = lipgloss.NewStyle().Margin(1, 2)
)

// statusStyle colors an obligation by how close it is to committing the user.
func statusStyle(s models.ObligationStatus) lipgloss.Style {
	switch s {
	case models.ObligationBinding:
		return lipgloss.NewStyle().Foreground(amber)
	case models.ObligationBound:
		return lipgloss.NewStyle().Foreground(alarm).Bold(true)
	case models.ObligationExecuted:
		return lipgloss.NewStyle().Foreground(calm)
	case models.ObligationFailed:
		return lipgloss.NewStyle().Foreground(alarm).Strikethrough(true)
	default:
		return lipgloss.NewStyle()
	}
}
