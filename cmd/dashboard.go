package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/pipeline"
	"github.com/theirongolddev/sitebook/internal/provider"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Project overview: progress, spend and alerts",
	RunE:  runDashboard,
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Budget utilization, categories, funding and monthly spend",
	RunE:  runBudget,
}

var flagBudgetMonths int

func init() {
	budgetCmd.Flags().IntVar(&flagBudgetMonths, "months", 6, "Months of spend history")
	rootCmd.AddCommand(dashboardCmd, budgetCmd)
}

func runDashboard(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{Progress: true}, func(ctx context.Context, s *session) error {
		st, err := s.loadDashboard(ctx)
		if err != nil {
			return explain(err)
		}
		printDashboard(st, time.Now())
		return nil
	})
}

func projectTitle(snap model.Snapshot) string {
	if snap.Project == nil {
		return "NO PROJECT"
	}
	return snap.Project.Name
}

func printDashboard(st provider.State, now time.Time) {
	snap := st.Snapshot
	d := pipeline.Derive(snap, now)
	stats, b := d.Stats, d.Budget

	fmt.Println()
	fmt.Println(cli.RenderTitle(projectTitle(snap)))
	fmt.Println()

	progress := fmt.Sprintf("%s %d%%", cli.RenderProgressBar(float64(stats.Progress), 20), stats.Progress)
	pairs := [][2]string{
		{"Progress", progress},
		{"Phases", fmt.Sprintf("%d of %d complete", stats.CompletedPhases, stats.TotalPhases)},
		{"Current phase", stats.CurrentPhase},
		{"Spent", fmt.Sprintf("%s of %s (%s)", cli.RenderMoney(b.TotalSpent), cli.FormatMoney(b.TotalBudget), cli.FormatPercent(b.BudgetPercent))},
		{"Funded", fmt.Sprintf("%s (%s available)", cli.FormatMoney(b.TotalFunded), cli.FormatMoney(b.AvailableCash))},
		{"Inventory", cli.FormatMoney(b.InventoryValue)},
	}
	if snap.Project != nil && !snap.Project.StartDate.IsZero() {
		pairs = append(pairs, [2]string{"Days elapsed", cli.FormatNumber(int64(stats.DaysElapsed))})
	}
	fmt.Print(cli.RenderKeyValues(pairs))

	if alerts := dashboardAlerts(b); len(alerts) > 0 {
		fmt.Println()
		for _, a := range alerts {
			fmt.Println("  " + cli.RenderWarning(a))
		}
	}

	if len(d.Activities) > 0 {
		rows := make([][]string, len(d.Activities))
		for i, a := range d.Activities {
			rows[i] = []string{a.Message, formatTime(a.Date)}
		}
		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Recent Activity",
			Headers: []string{"Activity", "When"},
			Rows:    rows,
		}))
	}

	if !st.LastRefresh.IsZero() {
		fmt.Println()
		fmt.Println("  " + cli.RenderMuted("Updated "+st.LastRefresh.Local().Format(time.DateTime)))
	}
	fmt.Println()
}

// dashboardAlerts lists the budget conditions worth flagging.
func dashboardAlerts(b model.BudgetStats) []string {
	var alerts []string
	if b.IsOverBudget {
		alerts = append(alerts, fmt.Sprintf("Over budget by %s", cli.FormatMoney(b.TotalSpent-b.TotalBudget)))
	}
	if b.IsUnderFunded {
		alerts = append(alerts, fmt.Sprintf("Spending exceeds funding by %s", cli.FormatMoney(b.TotalSpent-b.TotalFunded)))
	}
	if b.Health.Status == model.HealthOverAllocated {
		alerts = append(alerts, fmt.Sprintf("Categories allocate %s more than the budget", cli.FormatMoney(b.Health.Excess)))
	}
	if n := len(b.LowStockItems); n > 0 {
		alerts = append(alerts, fmt.Sprintf("%d material(s) at or below minimum stock", n))
	}
	return alerts
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02 Jan 2006")
}

func runBudget(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{Progress: true}, func(ctx context.Context, s *session) error {
		st, err := s.loadDashboard(ctx)
		if err != nil {
			return explain(err)
		}
		printBudget(st.Snapshot, time.Now(), flagBudgetMonths)
		return nil
	})
}

func printBudget(snap model.Snapshot, now time.Time, months int) {
	b := pipeline.ComputeBudget(snap)

	fmt.Println()
	fmt.Println(cli.RenderTitle("BUDGET  " + projectTitle(snap)))
	fmt.Println()

	fmt.Print(cli.RenderKeyValues([][2]string{
		{"Budget", cli.FormatMoney(b.TotalBudget)},
		{"Spent", fmt.Sprintf("%s  %s %s", cli.RenderMoney(b.TotalSpent),
			cli.RenderProgressBar(b.BudgetPercent, 20), cli.FormatPercent(b.BudgetPercent))},
		{"Remaining", cli.FormatMoney(b.RemainingBudget)},
		{"Funding coverage", cli.FormatPercent(b.FundingCoverage)},
		{"Debt to equity", b.DebtToEquity},
	}))
	for _, a := range dashboardAlerts(b) {
		fmt.Println("  " + cli.RenderWarning(a))
	}

	if len(b.Categories) > 0 {
		rows := make([][]string, len(b.Categories))
		for i, c := range b.Categories {
			rows[i] = []string{
				c.Name,
				cli.FormatMoney(c.Allocation),
				cli.FormatMoney(c.Spent),
				cli.FormatMoney(c.Remaining),
				cli.RenderProgressBar(c.Percent, 10) + " " + cli.FormatPercent(c.Percent),
			}
		}
		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Categories",
			Headers: []string{"Category", "Allocated", "Spent", "Remaining", "Used"},
			Rows:    rows,
		}))
	}

	if len(snap.Funding) > 0 {
		rows := make([][]string, len(snap.Funding))
		for i, f := range snap.Funding {
			rows[i] = []string{f.Name, cli.FormatStatus(f.SourceType), cli.FormatMoney(f.Amount.Float()), cli.FormatDate(f.ReceivedDate)}
		}
		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   fmt.Sprintf("Funding (%s, %s available)", cli.FormatMoney(b.TotalFunded), cli.FormatMoney(b.AvailableCash)),
			Headers: []string{"Source", "Type", "Amount", "Received"},
			Rows:    rows,
			Numeric: []bool{false, false, true, true},
		}))
	}

	monthly := pipeline.MonthlySpend(snap.Expenses, months, now)
	if len(monthly) > 0 {
		vals := make([]float64, len(monthly))
		var peak float64
		for i, m := range monthly {
			vals[i] = m.Amount
			peak = max(peak, m.Amount)
		}
		fmt.Println()
		fmt.Printf("  Monthly spend  %s\n", cli.RenderSparkline(vals))
		for _, m := range monthly {
			fmt.Println(cli.RenderHorizontalBar(m.Month.Format("Jan 06"), m.Amount, peak, 30))
		}
	}
	fmt.Println()
}
