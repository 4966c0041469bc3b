// Package render projects a WorkflowState onto a terminal panel.
//
// Rendering is a pure function of the state; it never mutates it.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/wfsync/internal/state"
)

const (
	barWidth   = 10
	filledChar = "█"
	emptyChar  = "░"
	noProgress = "-"

	// MaxResult is the number of runes of a task result shown in a panel.
	MaxResult = 40
)

var statusLabels = map[state.TaskStatus]string{
	state.StatusPending:    "Pending",
	state.StatusAnalyzing:  "Analyzing",
	state.StatusInProgress: "Working",
	state.StatusCompleted:  "Done",
	state.StatusFailed:     "Failed",
}

// StatusLabel returns the display label for a task status.
func StatusLabel(s state.TaskStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Bar renders a task progress cell like: ████░░░░░░ 40%
// A task that has not started reports a dash instead.
func Bar(progress int64) string {
	if progress <= 0 {
		return noProgress
	}
	if progress > 100 {
		progress = 100
	}
	filled := int(progress * barWidth / 100)
	bar := strings.Repeat(filledChar, filled) + strings.Repeat(emptyChar, barWidth-filled)
	return fmt.Sprintf("%s %d%%", bar, progress)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Title returns the panel heading, e.g. "Release - 50% Complete".
func Title(ws state.WorkflowState) string {
	return fmt.Sprintf("%s - %d%% Complete", ws.Title, ws.OverallProgress)
}

// Panel renders the full workflow panel.
func Panel(ws state.WorkflowState) string {
	rows := []string{
		titleStyle.Render(Title(ws)),
		"",
		row(headerStyle, "Task", "Status", "Progress", "Result"),
	}
	for _, t := range ws.Tasks {
		result := ""
		if t.Result != nil {
			result = Truncate(*t.Result, MaxResult)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			cell(taskWidth, lipgloss.NewStyle()).Render(Truncate(t.Title, taskWidth-2)),
			cell(statusWidth, statusStyles[t.Status]).Render(StatusLabel(t.Status)),
			cell(progressWidth, lipgloss.NewStyle()).Render(Bar(t.Progress)),
			resultStyle.Render(result),
		))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func row(style lipgloss.Style, task, status, progress, result string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		cell(taskWidth, style).Render(task),
		cell(statusWidth, style).Render(status),
		cell(progressWidth, style).Render(progress),
		style.Render(result),
	)
}

func cell(width int, style lipgloss.Style) lipgloss.Style {
	return style.Width(width)
}

// Printer returns a replica change hook that writes a panel to w on every
// change.
func Printer(w io.Writer) func(state.WorkflowState) {
	return func(ws state.WorkflowState) {
		fmt.Fprintln(w, Panel(ws))
	}
}

// ProgressLine is a one-line summary for non-interactive output.
func ProgressLine(ws state.WorkflowState) string {
	done := 0
	for _, t := range ws.Tasks {
		if t.Status.IsTerminal() {
			done++
		}
	}
	return fmt.Sprintf("%s: %d/%d tasks finished, %d%%", ws.Title, done, len(ws.Tasks), ws.OverallProgress)
}
