package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/pipeline"
)

var (
	flagExpensePhase    int64
	flagExpenseCategory int64
	flagExpenseLimit    int

	flagExpenseTitle    string
	flagExpenseAmount   float64
	flagExpenseType     string
	flagExpenseDate     string
	flagExpensePaidTo   string
	flagExpenseUnpaid   bool
	flagExpenseSupplier int64
)

var expensesCmd = &cobra.Command{
	Use:   "expenses",
	Short: "List and record expenses",
	RunE:  runExpensesList,
}

var expensesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List expenses, newest first",
	RunE:  runExpensesList,
}

var expensesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record an expense",
	RunE:  runExpensesAdd,
}

var expensesOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show the backend's budget overview",
	RunE:  runExpensesOverview,
}

func init() {
	expensesCmd.PersistentFlags().Int64Var(&flagExpensePhase, "phase", 0, "Phase id")
	expensesCmd.PersistentFlags().Int64Var(&flagExpenseCategory, "category", 0, "Budget category id")
	expensesListCmd.Flags().IntVarP(&flagExpenseLimit, "limit", "n", 25, "Max rows (0 for all)")

	expensesAddCmd.Flags().StringVar(&flagExpenseTitle, "title", "", "What was paid for")
	expensesAddCmd.Flags().Float64Var(&flagExpenseAmount, "amount", 0, "Amount in rupees")
	expensesAddCmd.Flags().StringVar(&flagExpenseType, "type", "MATERIAL", "MATERIAL, LABOR, PERMIT, ...")
	expensesAddCmd.Flags().StringVar(&flagExpenseDate, "date", "", "Date (YYYY-MM-DD, default today)")
	expensesAddCmd.Flags().StringVar(&flagExpensePaidTo, "paid-to", "", "Payee")
	expensesAddCmd.Flags().BoolVar(&flagExpenseUnpaid, "unpaid", false, "Record as not yet paid")
	expensesAddCmd.Flags().Int64Var(&flagExpenseSupplier, "supplier", 0, "Supplier id")
	_ = expensesAddCmd.MarkFlagRequired("title")
	_ = expensesAddCmd.MarkFlagRequired("amount")

	expensesCmd.AddCommand(expensesListCmd, expensesAddCmd, expensesOverviewCmd)
	rootCmd.AddCommand(expensesCmd)
}

func runExpensesList(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{Progress: true}, func(ctx context.Context, s *session) error {
		st, err := s.loadDashboard(ctx)
		if err != nil {
			return explain(err)
		}
		printExpenses(filterExpenses(st.Snapshot.Expenses, flagExpensePhase, flagExpenseCategory), st.Snapshot, flagExpenseLimit)
		return nil
	})
}

// filterExpenses keeps expenses of the given phase and category, newest
// first. Zero ids match everything.
func filterExpenses(expenses []model.Expense, phase, category int64) []model.Expense {
	out := make([]model.Expense, 0, len(expenses))
	for _, e := range expenses {
		if phase != 0 && e.Phase != phase {
			continue
		}
		if category != 0 && e.Category != category {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date.Time)
	})
	return out
}

func printExpenses(expenses []model.Expense, snap model.Snapshot, limit int) {
	fmt.Println()
	if len(expenses) == 0 {
		fmt.Println("  No expenses match.")
		fmt.Println()
		return
	}

	categories := make(map[int64]string, len(snap.BudgetCategories))
	for _, c := range snap.BudgetCategories {
		categories[c.ID] = c.Name
	}

	var total float64
	for _, e := range expenses {
		total += e.Amount.Float()
	}
	shown := expenses
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	rows := make([][]string, len(shown))
	for i, e := range shown {
		paid := "yes"
		if !e.IsPaid {
			paid = cli.RenderWarning("no")
		}
		rows[i] = []string{
			cli.FormatDate(e.Date),
			cli.Truncate(e.Title, 32),
			cli.Truncate(categories[e.Category], 18),
			cli.Truncate(pipeline.PhaseName(snap.Phases, e.Phase), 18),
			cli.FormatMoney(e.Amount.Float()),
			paid,
		}
	}
	title := fmt.Sprintf("Expenses (%d, %s)", len(expenses), cli.FormatMoney(total))
	if len(shown) < len(expenses) {
		title = fmt.Sprintf("Expenses (latest %d of %d, %s)", len(shown), len(expenses), cli.FormatMoney(total))
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   title,
		Headers: []string{"Date", "Title", "Category", "Phase", "Amount", "Paid"},
		Rows:    rows,
		Numeric: []bool{false, false, false, false, true, false},
	}))
	fmt.Println()
}

func expensePayload(now time.Time) (map[string]any, error) {
	if strings.TrimSpace(flagExpenseTitle) == "" {
		return nil, &api.ValidationError{Field: "title", Message: "is required"}
	}
	if flagExpenseAmount <= 0 {
		return nil, &api.ValidationError{Field: "amount", Message: "must be positive"}
	}
	date := now.Format(time.DateOnly)
	if flagExpenseDate != "" {
		d, err := model.ParseDate(flagExpenseDate)
		if err != nil {
			return nil, err
		}
		date = d.Format(time.DateOnly)
	}

	payload := map[string]any{
		"title":        strings.TrimSpace(flagExpenseTitle),
		"amount":       fmt.Sprintf("%.2f", flagExpenseAmount),
		"expense_type": strings.ToUpper(flagExpenseType),
		"date":         date,
		"is_paid":      !flagExpenseUnpaid,
	}
	if flagExpensePaidTo != "" {
		payload["paid_to"] = flagExpensePaidTo
	}
	if flagExpenseCategory != 0 {
		payload["category"] = flagExpenseCategory
	}
	if flagExpensePhase != 0 {
		payload["phase"] = flagExpensePhase
	}
	if flagExpenseSupplier != 0 {
		payload["supplier"] = flagExpenseSupplier
	}
	return payload, nil
}

func runExpensesAdd(_ *cobra.Command, _ []string) error {
	payload, err := expensePayload(time.Now())
	if err != nil {
		return err
	}
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			return err
		}
		var created model.Expense
		if err := s.client.Create(ctx, api.Expenses, payload, &created); err != nil {
			return explain(err)
		}
		fmt.Printf("  Recorded %s for %s (id %d).\n", cli.FormatMoney(created.Amount.Float()), created.Title, created.ID)
		return nil
	})
}

func runExpensesOverview(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			return err
		}
		raw, err := s.client.ExpenseOverview(ctx)
		if err != nil {
			return explain(err)
		}
		return printJSON(raw)
	})
}

// printJSON pretty-prints a payload whose shape the CLI does not model.
func printJSON(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
