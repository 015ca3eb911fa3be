package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/sitebook/internal/tui/components"
	"github.com/theirongolddev/sitebook/internal/tui/theme"
)

// column describes one list column. A zero width takes the remaining space.
type column struct {
	title string
	width int
	right bool
}

// renderList renders a selectable list card filling cw x h. Cells may be
// pre-styled.
func renderList(title string, cols []column, rows [][]string, cursor, cw, h int, footer string) string {
	t := theme.Active
	inner := components.CardInnerWidth(cw)

	const gap = 2
	const marker = 2
	fixed := marker
	flex := -1
	for i, c := range cols {
		fixed += c.width
		if i > 0 {
			fixed += gap
		}
		if c.width == 0 {
			flex = i
		}
	}
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = c.width
	}
	if flex >= 0 {
		widths[flex] = max(inner-fixed, 8)
	}

	bg := lipgloss.NewStyle().Background(t.Surface)
	headerStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	rowStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	selStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceHover).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	markStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.SurfaceHover).Bold(true)

	line := func(cells []string, style lipgloss.Style) string {
		var b strings.Builder
		for i := range cols {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			cell = fit(cell, widths[i], cols[i].right)
			if i > 0 {
				b.WriteString(style.Render(strings.Repeat(" ", gap)))
			}
			b.WriteString(style.Render(cell))
		}
		return b.String()
	}

	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.title
	}

	var body strings.Builder
	body.WriteString(bg.Render(strings.Repeat(" ", marker)))
	body.WriteString(line(titles, headerStyle))
	body.WriteString("\n")

	if len(rows) == 0 {
		body.WriteString(mutedStyle.Render("  Nothing here yet"))
	}

	visible := max(h-5, 3) // border, title, header, footer
	start, end := visibleRange(cursor, len(rows), visible)
	for i := start; i < end; i++ {
		if i == cursor {
			body.WriteString(markStyle.Render("▸ "))
			body.WriteString(line(rows[i], selStyle))
		} else {
			body.WriteString(bg.Render("  "))
			body.WriteString(line(rows[i], rowStyle))
		}
		if i < end-1 {
			body.WriteString("\n")
		}
	}

	if footer != "" {
		body.WriteString("\n")
		body.WriteString(mutedStyle.Render(footer))
	}

	return components.ContentCard(title, body.String(), cw)
}

// fit pads or truncates a possibly styled cell to exactly w columns.
func fit(s string, w int, right bool) string {
	sw := lipgloss.Width(s)
	if sw > w {
		return truncStr(stripStyles(s), w)
	}
	pad := strings.Repeat(" ", w-sw)
	if right {
		return pad + s
	}
	return s + pad
}

// stripStyles drops ANSI escape sequences.
func stripStyles(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			i += 2
			for i < len(s) && (s[i] < 0x40 || s[i] > 0x7e) {
				i++
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
