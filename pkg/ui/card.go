package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Tone colours a field value.
type Tone int

const (
	ToneNormal Tone = iota
	TonePositive
	ToneNegative
	ToneMuted
)

func (t Tone) style() lipgloss.Style {
	switch t {
	case TonePositive:
		return PositiveValue
	case ToneNegative:
		return NegativeValue
	case ToneMuted:
		return MutedValue
	default:
		return lipgloss.NewStyle()
	}
}

// Field is one labelled line of a Card.
type Field struct {
	Label string
	Value string
	Tone  Tone
}

// Card is a titled box of aligned label/value lines.
type Card struct {
	Title  string
	Fields []Field
}

// Add appends a field and returns the card for chaining.
func (c *Card) Add(label, value string, tone Tone) *Card {
	c.Fields = append(c.Fields, Field{Label: label, Value: value, Tone: tone})
	return c
}

func (c *Card) Render() string {
	width := 0
	for _, f := range c.Fields {
		width = max(width, lipgloss.Width(f.Label))
	}

	lines := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		label := LabelStyle.Width(width).Render(f.Label)
		lines = append(lines, label+"  "+f.Tone.style().Render(f.Value))
	}

	body := strings.Join(lines, "\n")
	if c.Title != "" {
		body = HeaderStyle.Render(c.Title) + "\n" + body
	}
	return BoxStyle.Render(body)
}

// Table renders rows under a header with padded columns.
type Table struct {
	Headers []string
	Rows    [][]string
}

func (t *Table) Render() string {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	render := func(cells []string, style lipgloss.Style) string {
		out := make([]string, len(widths))
		for i := range widths {
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			out[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		return style.Render(lipgloss.JoinHorizontal(lipgloss.Top, out...))
	}

	lines := []string{render(t.Headers, TableHeaderStyle)}
	for _, row := range t.Rows {
		lines = append(lines, render(row, lipgloss.NewStyle()))
	}
	return BoxStyle.Render(strings.Join(lines, "\n"))
}
