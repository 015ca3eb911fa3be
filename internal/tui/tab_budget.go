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

func (a App) renderBudgetTab(cw int) string {
	t := theme.Active
	budget := a.derived.Budget
	var b strings.Builder

	remainingColor := t.Green
	if budget.IsOverBudget {
		remainingColor = t.Red
	}
	metrics := []components.Metric{
		{Label: "Budget", Value: cli.FormatMoney(budget.TotalBudget)},
		{Label: "Spent", Value: cli.FormatMoney(budget.TotalSpent), Delta: cli.FormatPercent(budget.BudgetPercent)},
		{Label: "Remaining", Value: cli.FormatMoney(budget.RemainingBudget), Color: remainingColor},
		{Label: "Inventory", Value: cli.FormatMoney(budget.InventoryValue), Delta: "stock on site"},
	}
	b.WriteString(components.MetricCardRow(metrics, cw))
	b.WriteString("\n")

	// Monthly spend chart
	if len(a.monthly) > 0 {
		bars := make([]components.SpendBar, len(a.monthly))
		var total float64
		for i, m := range a.monthly {
			bars[i] = components.SpendBar{Label: m.Month.Format("Jan"), Value: m.Amount}
			total += m.Amount
		}
		avg := total / float64(len(a.monthly))
		b.WriteString(components.ContentCard(
			fmt.Sprintf("Monthly Spend (%s over %d months, avg %s)", cli.FormatMoney(total), len(a.monthly), cli.FormatMoney(avg)),
			components.SpendChart(bars, avg, components.CardInnerWidth(cw), 8),
			cw,
		))
		b.WriteString("\n")
	}

	halves := components.LayoutRow(cw, 2)
	categories := components.ContentCard("Categories",
		renderCategories(budget.Categories, components.CardInnerWidth(halves[0])), halves[0])
	funding := components.ContentCard("Funding",
		renderFunding(budget, a.st.Snapshot.Funding), halves[1])

	if a.isCompactLayout() {
		b.WriteString(categories)
		b.WriteString("\n")
		b.WriteString(funding)
	} else {
		b.WriteString(components.CardRow([]string{categories, funding}))
	}
	return b.String()
}

func renderCategories(cats []model.CategoryStat, w int) string {
	t := theme.Active
	if len(cats) == 0 {
		return lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface).Render("No budget categories")
	}

	labelW := 14
	barW := max(w-labelW-30, 6)
	lines := make([]string, 0, len(cats))
	for _, c := range cats {
		frac := c.Percent / 100
		note := cli.FormatMoney(c.Spent) + " / " + cli.FormatMoney(c.Allocation)
		lines = append(lines, components.BudgetBar(c.Name, frac, note, labelW, barW))
	}
	return strings.Join(lines, "\n")
}

func renderFunding(b model.BudgetStats, sources []model.FundingSource) string {
	t := theme.Active
	label := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	value := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	warn := lipgloss.NewStyle().Foreground(t.Orange).Background(t.Surface)

	row := func(k, v string) string {
		return label.Render(fmt.Sprintf("%-16s", k)) + value.Render(v)
	}

	lines := []string{
		row("Total funded", cli.FormatMoney(b.TotalFunded)),
		row("Debt", cli.FormatMoney(b.TotalDebt)),
		row("Own capital", cli.FormatMoney(b.OwnCapital)),
		row("Available cash", cli.FormatMoney(b.AvailableCash)),
		row("Coverage", cli.FormatPercent(b.FundingCoverage)),
		row("Debt : equity", b.DebtToEquity),
	}
	if b.IsUnderFunded {
		lines = append(lines, warn.Render("Spending exceeds funding"))
	}
	if len(sources) > 0 {
		lines = append(lines, "")
		for _, s := range sources {
			lines = append(lines, row(truncStr(s.Name, 15), cli.FormatMoney(s.Amount.Float())+"  "+cli.FormatStatus(s.SourceType)))
		}
	}
	return strings.Join(lines, "\n")
}
