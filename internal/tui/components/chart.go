package components

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/sitebook/internal/tui/theme"
)

// Sparkline renders a unicode sparkline from values.
func Sparkline(values []float64, color lipgloss.Color) string {
	if len(values) == 0 {
		return ""
	}
	t := theme.Active

	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	peak := values[0]
	for _, v := range values[1:] {
		peak = max(peak, v)
	}
	if peak == 0 {
		peak = 1
	}

	style := lipgloss.NewStyle().Foreground(color).Background(t.Surface)

	var buf strings.Builder
	buf.Grow(len(values) * 4) // UTF-8 block chars are up to 3 bytes
	for _, v := range values {
		idx := min(max(int(v/peak*float64(len(blocks)-1)), 0), len(blocks)-1)
		buf.WriteRune(blocks[idx])
	}

	return style.Render(buf.String())
}

// SpendBar is one column of a SpendChart.
type SpendBar struct {
	Label string
	Value float64
}

// SpendChart renders spend columns against a rupee axis. When ref is positive
// it is drawn as a dotted line and columns above it use the warning color.
// The oldest columns are dropped when they do not fit; areas too small for
// columns fall back to a sparkline.
func SpendChart(bars []SpendBar, ref float64, width, height int) string {
	if len(bars) == 0 {
		return ""
	}
	t := theme.Active
	if width < 15 || height < 3 {
		vals := make([]float64, len(bars))
		for i, b := range bars {
			vals[i] = b.Value
		}
		return Sparkline(vals, t.Blue)
	}

	peak := max(ref, 0)
	for _, b := range bars {
		peak = max(peak, b.Value)
	}
	if peak == 0 {
		peak = 1
	}
	step := chartTickStep(peak)
	ceiling := math.Ceil(peak/step) * step
	for ceiling/step > float64(max(height/2, 2)) {
		step *= 2
		ceiling = math.Ceil(peak/step) * step
	}

	axisW := max(len(formatAxisLabel(ceiling)), 3) + 1
	plotW := max(width-axisW-1, 2)
	colW := min(6, (plotW+1)/len(bars)-1)
	if colW < 1 {
		bars = bars[len(bars)-(plotW+1)/2:]
		colW = 1
	}
	plotLen := len(bars)*colW + len(bars) - 1

	blocks := []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	bg := lipgloss.NewStyle().Background(t.Surface)
	axis := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	normal := lipgloss.NewStyle().Foreground(t.Blue).Background(t.Surface)
	over := lipgloss.NewStyle().Foreground(t.Orange).Background(t.Surface)

	var out strings.Builder
	for row := height; row >= 1; row-- {
		top := ceiling * float64(row) / float64(height)
		bottom := ceiling * float64(row-1) / float64(height)

		label := ""
		if k := math.Floor(top / step); k > 0 && k*step > bottom {
			label = formatAxisLabel(k * step)
		}
		out.WriteString(axis.Render(fmt.Sprintf("%*s", axisW, label) + "│"))

		empty := bg.Render(strings.Repeat(" ", colW))
		if ref > 0 && ref > bottom && ref <= top {
			empty = axis.Render(strings.Repeat("┄", colW))
		}
		for i, b := range bars {
			if i > 0 {
				out.WriteString(bg.Render(" "))
			}
			style := normal
			if ref > 0 && b.Value > ref {
				style = over
			}
			switch {
			case b.Value >= top:
				out.WriteString(style.Render(strings.Repeat("█", colW)))
			case b.Value > bottom:
				idx := min(max(int((b.Value-bottom)/(top-bottom)*8), 1), 8)
				out.WriteString(style.Render(strings.Repeat(string(blocks[idx]), colW)))
			default:
				out.WriteString(empty)
			}
		}
		out.WriteString("\n")
	}

	out.WriteString(axis.Render(fmt.Sprintf("%*s", axisW, "0") + "└" + strings.Repeat("─", plotLen)))

	if colW >= 3 || len(bars) == 1 {
		labels := make([]string, len(bars))
		for i, b := range bars {
			labels[i] = fmt.Sprintf("%-*s", colW, truncate(b.Label, colW))
		}
		out.WriteString("\n")
		out.WriteString(axis.Render(strings.Repeat(" ", axisW+1) + strings.TrimRight(strings.Join(labels, " "), " ")))
	}
	return out.String()
}

// chartTickStep computes a nice tick interval targeting ~5 ticks.
func chartTickStep(maxVal float64) float64 {
	if maxVal <= 0 {
		return 1
	}
	rough := maxVal / 5
	exp := math.Floor(math.Log10(rough))
	base := math.Pow(10, exp)
	frac := rough / base

	switch {
	case frac < 1.5:
		return base
	case frac < 3.5:
		return 2 * base
	default:
		return 5 * base
	}
}

// formatAxisLabel writes rupee amounts on the Indian scale: 50k, 2.5L, 1.2Cr.
func formatAxisLabel(v float64) string {
	scaled := func(div float64, unit string) string {
		if q := v / div; q == math.Trunc(q) {
			return fmt.Sprintf("%.0f%s", q, unit)
		}
		return fmt.Sprintf("%.1f%s", v/div, unit)
	}
	switch {
	case v >= 1e7:
		return scaled(1e7, "Cr")
	case v >= 1e5:
		return scaled(1e5, "L")
	case v >= 1e3:
		return scaled(1e3, "k")
	case v >= 1:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
