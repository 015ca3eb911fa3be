package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/tui/components"
	"github.com/theirongolddev/sitebook/internal/tui/theme"
)

func (a App) renderOverviewTab(cw int) string {
	t := theme.Active
	stats := a.derived.Stats
	budget := a.derived.Budget
	var b strings.Builder

	// Row 1: metric cards
	spentColor := t.Green
	if budget.IsOverBudget {
		spentColor = t.Red
	}
	metrics := []components.Metric{
		{
			Label: "Progress",
			Value: fmt.Sprintf("%d%%", stats.Progress),
			Delta: fmt.Sprintf("%d of %d phases", stats.CompletedPhases, stats.TotalPhases),
		},
		{
			Label: "Spent",
			Value: cli.FormatMoney(stats.TotalSpent),
			Delta: cli.FormatPercent(budget.BudgetPercent) + " of budget",
			Color: spentColor,
		},
		{
			Label: "Remaining",
			Value: cli.FormatMoney(budget.RemainingBudget),
			Delta: "cash " + cli.FormatMoney(budget.AvailableCash),
		},
		{
			Label: "Days elapsed",
			Value: cli.FormatNumber(int64(stats.DaysElapsed)),
			Delta: stats.CurrentPhase,
		},
	}
	b.WriteString(components.MetricCardRow(metrics, cw))
	b.WriteString("\n")

	// Row 2: budget and funding bars
	innerW := components.CardInnerWidth(cw)
	barW := max(innerW-40, 10)
	var bars strings.Builder
	bars.WriteString(components.BudgetBar("Budget used", budget.BudgetPercent/100,
		cli.FormatMoney(budget.TotalSpent)+" / "+cli.FormatMoney(budget.TotalBudget), 14, barW))
	bars.WriteString("\n")
	bars.WriteString(components.BudgetBar("Funding", budget.FundingCoverage/100,
		cli.FormatMoney(budget.TotalFunded)+" raised", 14, barW))
	b.WriteString(components.ContentCard("Budget", bars.String(), cw))
	b.WriteString("\n")

	if alerts := a.renderAlerts(); alerts != "" {
		b.WriteString(components.ContentCard("Attention", alerts, cw))
		b.WriteString("\n")
	}

	// Row 3: recent activity + low stock
	halves := components.LayoutRow(cw, 2)
	activity := components.ContentCard("Recent Activity",
		renderActivities(a.derived.Activities, components.CardInnerWidth(halves[0])), halves[0])
	stock := components.ContentCard(fmt.Sprintf("Low Stock (%d)", len(budget.LowStockItems)),
		renderLowStock(budget.LowStockItems, components.CardInnerWidth(halves[1])), halves[1])

	if a.isCompactLayout() {
		b.WriteString(activity)
		b.WriteString("\n")
		b.WriteString(stock)
	} else {
		b.WriteString(components.CardRow([]string{activity, stock}))
	}

	return b.String()
}

func (a App) renderAlerts() string {
	t := theme.Active
	budget := a.derived.Budget
	warn := lipgloss.NewStyle().Foreground(t.Orange).Background(t.Surface)
	bad := lipgloss.NewStyle().Foreground(t.Red).Background(t.Surface)

	var lines []string
	if budget.IsOverBudget {
		lines = append(lines, bad.Render(fmt.Sprintf("Over budget by %s",
			cli.FormatMoney(budget.TotalSpent-budget.TotalBudget))))
	}
	if budget.IsUnderFunded {
		lines = append(lines, warn.Render(fmt.Sprintf("Spending exceeds funding by %s",
			cli.FormatMoney(budget.TotalSpent-budget.TotalFunded))))
	}
	if budget.Health.Status == model.HealthOverAllocated {
		lines = append(lines, warn.Render(fmt.Sprintf("Category allocations exceed the budget by %s",
			cli.FormatMoney(budget.Health.Excess))))
	}
	return strings.Join(lines, "\n")
}

func renderActivities(acts []model.Activity, w int) string {
	t := theme.Active
	muted := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	text := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	taskMark := lipgloss.NewStyle().Foreground(t.Blue).Background(t.Surface).Render("●")
	expMark := lipgloss.NewStyle().Foreground(t.Green).Background(t.Surface).Render("₹")

	if len(acts) == 0 {
		return muted.Render("Nothing yet")
	}

	lines := make([]string, 0, len(acts))
	for _, act := range acts {
		mark := taskMark
		if act.Kind == model.ActivityExpense {
			mark = expMark
		}
		date := ""
		if !act.Date.IsZero() {
			date = act.Date.Format("02 Jan")
		}
		msgW := max(w-lipgloss.Width(date)-3, 10)
		lines = append(lines, mark+" "+text.Render(fmt.Sprintf("%-*s", msgW, truncStr(act.Message, msgW)))+" "+muted.Render(date))
	}
	return strings.Join(lines, "\n")
}

func renderLowStock(items []model.LowStockItem, w int) string {
	t := theme.Active
	muted := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	name := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	low := lipgloss.NewStyle().Foreground(t.Orange).Background(t.Surface)
	pending := lipgloss.NewStyle().Foreground(t.Cyan).Background(t.Surface)

	if len(items) == 0 {
		return muted.Render("All materials above minimum")
	}

	lines := make([]string, 0, len(items))
	for _, it := range items {
		qty := cli.FormatQuantity(it.CurrentStock, it.Unit) + " / " + cli.FormatQuantity(it.MinStockLevel, it.Unit)
		line := name.Render(truncStr(it.Name, max(w-lipgloss.Width(qty)-14, 8))) + " " + low.Render(qty)
		if it.PendingTransaction != nil {
			line += " " + pending.Render("restock pending")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
