package render

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/wfsync/internal/state"
)

var (
	primaryColor   = lipgloss.Color("#5FAFAF")
	secondaryColor = lipgloss.Color("#666666")
	workingColor   = lipgloss.Color("#D7AF5F")
	successColor   = lipgloss.Color("#87AF87")
	errorColor     = lipgloss.Color("#AF5F5F")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	resultStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2)

	statusStyles = map[state.TaskStatus]lipgloss.Style{
		state.StatusPending:    lipgloss.NewStyle().Foreground(secondaryColor),
		state.StatusAnalyzing:  lipgloss.NewStyle().Foreground(workingColor),
		state.StatusInProgress: lipgloss.NewStyle().Foreground(primaryColor),
		state.StatusCompleted:  lipgloss.NewStyle().Foreground(successColor),
		state.StatusFailed:     lipgloss.NewStyle().Foreground(errorColor),
	}
)

// Column widths of the task table.
const (
	taskWidth     = 30
	statusWidth   = 12
	progressWidth = 16
)
