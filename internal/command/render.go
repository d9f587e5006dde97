package command

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var titleStyle = lipgloss.NewStyle().Bold(true)

// renderTable prints a title over a two column field/value table. Empty
// values are skipped.
func renderTable(title string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Field", "Value")
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		t.Row(r...)
	}
	return titleStyle.Render(title) + "\n" + t.String()
}
