package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/sitebook/internal/tui/theme"
)

// StatusInfo is what the bottom bar reports.
type StatusInfo struct {
	User        string
	LastRefresh time.Time
	Refreshing  bool
	AutoRefresh bool
	Error       string
	Now         time.Time
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, info StatusInfo) string {
	t := theme.Active

	muted := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	accent := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface)
	warn := lipgloss.NewStyle().Foreground(t.Orange).Background(t.Surface)

	left := muted.Render(" [?]help  [r]efresh  [q]uit")
	if info.Error != "" {
		left += warn.Render("  ! " + info.Error)
	}

	var right string
	switch {
	case info.Refreshing:
		right = accent.Render("refreshing… ")
	case !info.LastRefresh.IsZero():
		now := info.Now
		if now.IsZero() {
			now = time.Now()
		}
		age := now.Sub(info.LastRefresh).Truncate(time.Second)
		right = muted.Render(fmt.Sprintf("updated %s ago ", age))
	}
	if info.AutoRefresh {
		right = accent.Render("auto ") + right
	}
	if info.User != "" {
		right = muted.Render(info.User+" · ") + right
	}

	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	bar := left + muted.Render(fmt.Sprintf("%*s", gap, "")) + right

	return lipgloss.NewStyle().Background(t.Surface).MaxWidth(width).Render(bar)
}
