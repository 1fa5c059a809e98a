package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// importSummary counts the outcome of every book of an import run.
type importSummary struct {
	Imported     int
	WithWarnings int
	Failed       int
	Failures     []string
}

// Total returns the number of books processed.
func (s importSummary) Total() int {
	return s.Imported + s.WithWarnings + s.Failed
}

var (
	summaryBorder = lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}

	boxStyle = lipgloss.NewStyle().
		Border(summaryBorder).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1)
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("254"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("247")).
		Faint(true)
)

// renderSummary formats the run outcome for the terminal.
func renderSummary(dbFile string, s importSummary) string {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Imported %d books into %s", s.Total(), dbFile)),
		okStyle.Render(fmt.Sprintf("imported:      %d", s.Imported)),
		warnStyle.Render(fmt.Sprintf("with warnings: %d", s.WithWarnings)),
		failStyle.Render(fmt.Sprintf("failed:        %d", s.Failed)),
	}
	for _, failure := range s.Failures {
		lines = append(lines, mutedStyle.Render("  "+failure))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderProvisioned(dbFile string) string {
	return boxStyle.Render(titleStyle.Render("Created empty catalog " + dbFile))
}
