// Package pipeline derives dashboard statistics from a snapshot and loads
// snapshots from the backend.
package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/theirongolddev/sitebook/internal/model"
)

const (
	maxActivitySource = 3
	maxActivities     = 5
)

// Derive computes every statistic for one snapshot.
func Derive(snap model.Snapshot, now time.Time) model.Derived {
	return model.Derived{
		Stats:      ComputeStats(snap, now),
		Budget:     ComputeBudget(snap),
		Activities: RecentActivities(snap),
	}
}

// ComputeStats computes the overview summary cards.
func ComputeStats(snap model.Snapshot, now time.Time) model.DashboardStats {
	stats := model.DashboardStats{
		TotalSpent:   totalSpent(snap.Expenses),
		CurrentPhase: "N/A",
	}

	stats.TotalPhases = len(snap.Phases)
	stats.HasPhases = stats.TotalPhases > 0
	for _, p := range snap.Phases {
		if p.Status == model.StatusCompleted {
			stats.CompletedPhases++
		}
	}
	if stats.TotalPhases > 0 {
		stats.Progress = int(math.Round(float64(stats.CompletedPhases) / float64(stats.TotalPhases) * 100))
		stats.CurrentPhase = snap.Phases[0].Name
		for _, p := range snap.Phases {
			if p.Status == model.StatusInProgress {
				stats.CurrentPhase = p.Name
				break
			}
		}
	}

	if snap.Project != nil && !snap.Project.StartDate.IsZero() {
		elapsed := now.Sub(snap.Project.StartDate.Time)
		stats.DaysElapsed = int(math.Floor(elapsed.Hours() / 24))
	}

	return stats
}

// ComputeBudget computes budget utilization, funding, inventory and
// per-category figures. Every ratio is zero when its denominator is zero.
func ComputeBudget(snap model.Snapshot) model.BudgetStats {
	var b model.BudgetStats
	if snap.Project != nil {
		b.TotalBudget = snap.Project.TotalBudget.Float()
	}
	b.TotalSpent = totalSpent(snap.Expenses)
	b.RemainingBudget = math.Max(0, b.TotalBudget-b.TotalSpent)
	b.BudgetPercent = percent(b.TotalSpent, b.TotalBudget)

	for _, f := range snap.Funding {
		amt := f.Amount.Float()
		b.TotalFunded += amt
		switch f.SourceType {
		case model.SourceLoan, model.SourceBorrowed:
			b.TotalDebt += amt
		case model.SourceOwnMoney:
			b.OwnCapital += amt
		}
	}
	b.AvailableCash = math.Max(0, b.TotalFunded-b.TotalSpent)
	b.FundingCoverage = percent(b.TotalFunded, b.TotalBudget)
	b.DebtToEquity = debtToEquity(b.TotalDebt, b.OwnCapital)

	for _, m := range snap.Materials {
		b.InventoryValue += m.CurrentStock.Float() * m.AvgCostPerUnit.Float()
	}

	spentByCategory := make(map[int64]float64)
	for _, e := range snap.Expenses {
		spentByCategory[e.Category] += e.Amount.Float()
	}
	b.Categories = make([]model.CategoryStat, 0, len(snap.BudgetCategories))
	var allocated float64
	for _, c := range snap.BudgetCategories {
		alloc := c.Allocation.Float()
		spent := spentByCategory[c.ID]
		allocated += alloc
		b.Categories = append(b.Categories, model.CategoryStat{
			ID:         c.ID,
			Name:       c.Name,
			Allocation: alloc,
			Spent:      spent,
			Percent:    percent(spent, alloc),
			Remaining:  math.Max(0, alloc-spent),
		})
	}

	b.LowStockItems = LowStock(snap.Materials, snap.Transactions)

	b.IsOverBudget = b.TotalSpent > b.TotalBudget
	b.IsUnderFunded = b.TotalFunded < b.TotalSpent
	b.Health = model.ProjectHealth{Status: model.HealthOK}
	if b.TotalBudget > 0 && allocated > b.TotalBudget {
		b.Health = model.ProjectHealth{
			Status: model.HealthOverAllocated,
			Excess: allocated - b.TotalBudget,
		}
	}

	return b
}

// LowStock returns materials at or below their minimum level, each annotated
// with the first pending transaction for it.
func LowStock(materials []model.Material, txns []model.Transaction) []model.LowStockItem {
	items := make([]model.LowStockItem, 0)
	for _, m := range materials {
		if m.CurrentStock > m.MinStockLevel {
			continue
		}
		item := model.LowStockItem{Material: m}
		for i := range txns {
			if txns[i].Material == m.ID && txns[i].Status == model.StatusPending {
				t := txns[i]
				item.PendingTransaction = &t
				break
			}
		}
		items = append(items, item)
	}
	return items
}

// RecentActivities merges the first tasks and expenses into a feed ordered
// newest first.
func RecentActivities(snap model.Snapshot) []model.Activity {
	acts := make([]model.Activity, 0, 2*maxActivitySource)

	for _, t := range head(snap.Tasks, maxActivitySource) {
		acts = append(acts, model.Activity{
			ID:      "task-" + strconv.FormatInt(t.ID, 10),
			Kind:    model.ActivityTask,
			Title:   t.Title,
			Message: fmt.Sprintf("Task \"%s\" is %s", t.Title, strings.ToLower(t.Status)),
			Date:    t.UpdatedAt.Time,
		})
	}
	for _, e := range head(snap.Expenses, maxActivitySource) {
		acts = append(acts, model.Activity{
			ID:      "exp-" + strconv.FormatInt(e.ID, 10),
			Kind:    model.ActivityExpense,
			Title:   e.Title,
			Message: fmt.Sprintf("Paid %s for %s", FormatCurrency(e.Amount.Float()), e.Title),
			Date:    e.Date.Time,
		})
	}

	sort.SliceStable(acts, func(i, j int) bool {
		return acts[i].Date.After(acts[j].Date)
	})
	if len(acts) > maxActivities {
		acts = acts[:maxActivities]
	}
	return acts
}

// MonthlySpend buckets expenses into the last n calendar months ending with
// the month containing now, oldest first. Months without expenses are zero.
func MonthlySpend(expenses []model.Expense, n int, now time.Time) []model.MonthlySpend {
	if n <= 0 {
		return nil
	}
	loc := now.Location()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	first := current.AddDate(0, -(n - 1), 0)

	out := make([]model.MonthlySpend, n)
	for i := range out {
		out[i].Month = first.AddDate(0, i, 0)
	}

	for _, e := range expenses {
		if e.Date.IsZero() {
			continue
		}
		d := e.Date.In(loc)
		idx := (d.Year()-first.Year())*12 + int(d.Month()-first.Month())
		if idx < 0 || idx >= n {
			continue
		}
		out[idx].Amount += e.Amount.Float()
		out[idx].Count++
	}
	return out
}

// FilterTasks returns tasks matching status and phase. An empty status or a
// zero phase matches everything.
func FilterTasks(tasks []model.Task, status string, phase int64) []model.Task {
	if status == "" && phase == 0 {
		return tasks
	}
	var result []model.Task
	for _, t := range tasks {
		if status != "" && !strings.EqualFold(t.Status, status) {
			continue
		}
		if phase != 0 && t.Phase != phase {
			continue
		}
		result = append(result, t)
	}
	return result
}

// SortPhases returns a copy ordered by order, then id.
func SortPhases(phases []model.Phase) []model.Phase {
	out := make([]model.Phase, len(phases))
	copy(out, phases)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PhaseName returns the name of the phase with the given id, or "".
func PhaseName(phases []model.Phase, id int64) string {
	for _, p := range phases {
		if p.ID == id {
			return p.Name
		}
	}
	return ""
}

func totalSpent(expenses []model.Expense) float64 {
	var total float64
	for _, e := range expenses {
		total += e.Amount.Float()
	}
	return total
}

func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}

func debtToEquity(debt, own float64) string {
	switch {
	case own > 0:
		return strconv.FormatFloat(debt/own, 'f', 2, 64)
	case debt > 0:
		return "High"
	}
	return "0"
}

func head[T any](in []T, n int) []T {
	if len(in) > n {
		return in[:n]
	}
	return in
}
