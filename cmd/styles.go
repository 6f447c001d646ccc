package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// LipGloss signature purple/pink palette
var (
	headerColor  = lipgloss.Color("#F780FF") // Bright pink/magenta
	accentColor  = lipgloss.Color("#BD93F9") // Purple
	numberColor  = lipgloss.Color("#FF79C6") // Pink
	textColor    = lipgloss.Color("#E9E9F4") // Light purple/white
	borderColor  = lipgloss.Color("#6272A4") // Muted purple
	summaryColor = lipgloss.Color("#8BE9FD") // Cyan accent
	errorColor   = lipgloss.Color("#FF5555") // Red
	successColor = lipgloss.Color("#50FA7B") // Green
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(headerColor).Bold(true)
	accentStyle  = lipgloss.NewStyle().Foreground(accentColor)
	numberStyle  = lipgloss.NewStyle().Foreground(numberColor)
	textStyle    = lipgloss.NewStyle().Foreground(textColor)
	borderStyle  = lipgloss.NewStyle().Foreground(borderColor)
	summaryStyle = lipgloss.NewStyle().Foreground(summaryColor).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
)

// column is one table column with its width and alignment.
type column struct {
	title string
	width int
	right bool
}

// table renders rows in the bordered layout used by every listing command.
type table struct {
	columns []column
	rows    [][]lipgloss.Style
	cells   [][]string
}

func newTable(columns ...column) *table {
	return &table{columns: columns}
}

// add appends a row; styles[i] colors cells[i].
func (t *table) add(styles []lipgloss.Style, cells ...string) {
	t.rows = append(t.rows, styles)
	t.cells = append(t.cells, cells)
}

func (t *table) String() string {
	var out []string

	header := make([]string, len(t.columns))
	sep := make([]string, len(t.columns))
	for i, c := range t.columns {
		header[i] = headerStyle.Padding(0, 1).Width(c.width).Render(c.title)
		sep[i] = strings.Repeat("─", c.width)
	}
	out = append(out, strings.Join(header, borderStyle.Render("│")))
	out = append(out, borderStyle.Render(strings.Join(sep, "┼")))

	for r, cells := range t.cells {
		rendered := make([]string, len(t.columns))
		for i, c := range t.columns {
			style := textStyle
			if i < len(t.rows[r]) {
				style = t.rows[r][i]
			}
			style = style.Padding(0, 1).Width(c.width)
			if c.right {
				style = style.Align(lipgloss.Right)
			}
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			rendered[i] = style.Render(cell)
		}
		out = append(out, strings.Join(rendered, borderStyle.Render("│")))
	}
	return strings.Join(out, "\n")
}
