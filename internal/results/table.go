package results

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failedStyle = cellStyle.Foreground(lipgloss.Color("9"))
)

// RenderTable renders s as a bordered table followed by a summary line.
// With styled false the output carries no ANSI sequences.
func RenderTable(s *Set, styled bool) string {
	rows := make([][]string, len(s.Rows))
	for i := range s.Rows {
		rows[i] = s.Record(i)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(s.Header()...).
		Rows(rows...)

	if styled {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(s.Rows) && s.Rows[row].Failed():
				return failedStyle
			default:
				return cellStyle
			}
		})
	} else {
		t = t.BorderStyle(lipgloss.NewStyle()).StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}

	return fmt.Sprintf("%s\n%d points, %d failed\n", t.String(), len(s.Rows), s.Failures())
}
