package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/theirongolddev/sitebook/internal/model"
)

func date(s string) model.Date {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func near(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func phases(statuses ...string) []model.Phase {
	out := make([]model.Phase, len(statuses))
	for i, s := range statuses {
		out[i] = model.Phase{ID: int64(i + 1), Name: "Phase " + string(rune('A'+i)), Status: s, Order: i}
	}
	return out
}

func TestComputeStatsProgress(t *testing.T) {
	tests := []struct {
		name     string
		phases   []model.Phase
		progress int
		current  string
		has      bool
	}{
		{"no phases", nil, 0, "N/A", false},
		{"half done", phases(model.StatusCompleted, model.StatusCompleted, model.StatusPending, model.StatusPending), 50, "Phase A", true},
		{"in progress wins", phases(model.StatusCompleted, model.StatusInProgress, model.StatusPending), 33, "Phase B", true},
		{"two thirds rounds up", phases(model.StatusCompleted, model.StatusCompleted, model.StatusHalted), 67, "Phase A", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			snap := model.Empty()
			snap.Phases = tt.phases
			got := ComputeStats(snap, time.Now())
			if got.Progress != tt.progress || got.CurrentPhase != tt.current || got.HasPhases != tt.has {
				t.Fatalf("got progress=%d current=%q has=%v, want %d %q %v",
					got.Progress, got.CurrentPhase, got.HasPhases, tt.progress, tt.current, tt.has)
			}
		})
	}
}

func TestComputeStatsDaysElapsed(t *testing.T) {
	snap := model.Empty()
	now := time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC)
	if got := ComputeStats(snap, now).DaysElapsed; got != 0 {
		t.Fatalf("no project: DaysElapsed = %d", got)
	}

	snap.Project = &model.Project{Name: "Villa"}
	if got := ComputeStats(snap, now).DaysElapsed; got != 0 {
		t.Fatalf("no start date: DaysElapsed = %d", got)
	}

	snap.Project.StartDate = date("2024-03-01")
	snap.Expenses = []model.Expense{{Amount: 100}, {Amount: 250.5}}
	got := ComputeStats(snap, now)
	if got.DaysElapsed != 10 {
		t.Fatalf("DaysElapsed = %d, want 10", got.DaysElapsed)
	}
	if got.TotalSpent != 350.5 {
		t.Fatalf("TotalSpent = %v", got.TotalSpent)
	}
}

func TestComputeBudgetZeroDenominators(t *testing.T) {
	snap := model.Empty()
	snap.Project = &model.Project{TotalBudget: 0}
	snap.Expenses = []model.Expense{{Amount: 5000, Category: 1}}
	snap.Funding = []model.FundingSource{{Amount: 1000, SourceType: model.SourceLoan}}
	snap.BudgetCategories = []model.BudgetCategory{{ID: 1, Name: "Civil", Allocation: 0}}

	b := ComputeBudget(snap)
	for name, v := range map[string]float64{
		"BudgetPercent":    b.BudgetPercent,
		"FundingCoverage":  b.FundingCoverage,
		"category Percent": b.Categories[0].Percent,
	} {
		if v != 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s = %v, want 0", name, v)
		}
	}
	if b.RemainingBudget != 0 {
		t.Errorf("RemainingBudget = %v, want 0 on overspend", b.RemainingBudget)
	}
	if !b.IsOverBudget || !b.IsUnderFunded {
		t.Errorf("flags over=%v under=%v, want both true", b.IsOverBudget, b.IsUnderFunded)
	}
	if b.DebtToEquity != "High" {
		t.Errorf("DebtToEquity = %q, want High", b.DebtToEquity)
	}
	if b.Health.Status != model.HealthOK {
		t.Errorf("Health = %+v with zero budget", b.Health)
	}
}

func TestComputeBudget(t *testing.T) {
	snap := model.Empty()
	snap.Project = &model.Project{TotalBudget: 1000000}
	snap.Expenses = []model.Expense{
		{ID: 1, Amount: 200000, Category: 1},
		{ID: 2, Amount: 50000, Category: 2},
		{ID: 3, Amount: 100000, Category: 1},
	}
	snap.Funding = []model.FundingSource{
		{Amount: 400000, SourceType: model.SourceLoan},
		{Amount: 100000, SourceType: model.SourceBorrowed},
		{Amount: 250000, SourceType: model.SourceOwnMoney},
	}
	snap.Materials = []model.Material{
		{ID: 1, Name: "Cement", CurrentStock: 10, MinStockLevel: 20, AvgCostPerUnit: 400},
		{ID: 2, Name: "Steel", CurrentStock: 100, MinStockLevel: 50, AvgCostPerUnit: 60},
	}
	snap.BudgetCategories = []model.BudgetCategory{
		{ID: 1, Name: "Civil", Allocation: 600000},
		{ID: 2, Name: "Electrical", Allocation: 500000},
	}

	b := ComputeBudget(snap)

	if b.TotalSpent != 350000 || b.RemainingBudget != 650000 || !near(b.BudgetPercent, 35) {
		t.Errorf("spent=%v remaining=%v pct=%v", b.TotalSpent, b.RemainingBudget, b.BudgetPercent)
	}
	if b.TotalFunded != 750000 || b.TotalDebt != 500000 || b.OwnCapital != 250000 {
		t.Errorf("funded=%v debt=%v own=%v", b.TotalFunded, b.TotalDebt, b.OwnCapital)
	}
	if b.AvailableCash != 400000 || !near(b.FundingCoverage, 75) {
		t.Errorf("cash=%v coverage=%v", b.AvailableCash, b.FundingCoverage)
	}
	if b.DebtToEquity != "2.00" {
		t.Errorf("DebtToEquity = %q", b.DebtToEquity)
	}
	if b.InventoryValue != 10000 {
		t.Errorf("InventoryValue = %v", b.InventoryValue)
	}
	if b.IsOverBudget || b.IsUnderFunded {
		t.Errorf("flags over=%v under=%v", b.IsOverBudget, b.IsUnderFunded)
	}

	wantCats := []model.CategoryStat{
		{ID: 1, Name: "Civil", Allocation: 600000, Spent: 300000, Percent: 50, Remaining: 300000},
		{ID: 2, Name: "Electrical", Allocation: 500000, Spent: 50000, Percent: 10, Remaining: 450000},
	}
	if diff := cmp.Diff(wantCats, b.Categories, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("categories (-want +got):\n%s", diff)
	}

	if b.Health.Status != model.HealthOverAllocated || b.Health.Excess != 100000 {
		t.Errorf("Health = %+v, want OVER_ALLOCATED by 100000", b.Health)
	}
}

func TestLowStockAnnotatesPendingOnly(t *testing.T) {
	materials := []model.Material{
		{ID: 1, Name: "Cement", CurrentStock: 5, MinStockLevel: 10},
		{ID: 2, Name: "Sand", CurrentStock: 10, MinStockLevel: 10},
		{ID: 3, Name: "Steel", CurrentStock: 50, MinStockLevel: 10},
	}
	txns := []model.Transaction{
		{ID: 7, Material: 1, Status: "RECEIVED"},
		{ID: 8, Material: 1, Status: model.StatusPending},
		{ID: 9, Material: 3, Status: model.StatusPending},
	}

	items := LowStock(materials, txns)
	if len(items) != 2 {
		t.Fatalf("low stock items = %d, want 2", len(items))
	}
	if items[0].ID != 1 || items[0].PendingTransaction == nil || items[0].PendingTransaction.ID != 8 {
		t.Errorf("cement = %+v", items[0])
	}
	if items[1].ID != 2 || items[1].PendingTransaction != nil {
		t.Errorf("sand = %+v", items[1])
	}
}

func TestRecentActivities(t *testing.T) {
	snap := model.Empty()
	snap.Tasks = []model.Task{
		{ID: 1, Title: "Plaster", Status: model.StatusInProgress, UpdatedAt: date("2024-03-05")},
		{ID: 2, Title: "Wiring", Status: model.StatusCompleted, UpdatedAt: date("2024-03-09")},
		{ID: 3, Title: "Tiles", Status: model.StatusPending, UpdatedAt: date("2024-03-01")},
		{ID: 4, Title: "Ignored", Status: model.StatusPending, UpdatedAt: date("2024-04-01")},
	}
	snap.Expenses = []model.Expense{
		{ID: 10, Title: "Cement", Amount: 5000, Date: date("2024-03-08")},
		{ID: 11, Title: "Steel", Amount: 250000, Date: date("2024-03-02")},
	}

	got := RecentActivities(snap)
	ids := make([]string, len(got))
	for i, a := range got {
		ids[i] = a.ID
	}
	want := []string{"task-2", "exp-10", "task-1", "exp-11", "task-3"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("activity order (-want +got):\n%s", diff)
	}
	if got[0].Message != `Task "Wiring" is completed` {
		t.Errorf("task message = %q", got[0].Message)
	}
	if got[1].Message != "Paid Rs. 5,000 for Cement" {
		t.Errorf("expense message = %q", got[1].Message)
	}
	if got[3].Message != "Paid Rs. 2.50 Lakh for Steel" {
		t.Errorf("expense message = %q", got[3].Message)
	}
}

func TestRecentActivitiesEmpty(t *testing.T) {
	if got := RecentActivities(model.Empty()); len(got) != 0 {
		t.Fatalf("got %d activities from an empty snapshot", len(got))
	}
}

func TestMonthlySpend(t *testing.T) {
	now := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	expenses := []model.Expense{
		{Amount: 100, Date: date("2024-03-01")},
		{Amount: 50, Date: date("2024-03-19")},
		{Amount: 70, Date: date("2024-01-31")},
		{Amount: 999, Date: date("2023-10-01")},
		{Amount: 5},
	}

	got := MonthlySpend(expenses, 3, now)
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	wantMonths := []time.Month{time.January, time.February, time.March}
	wantAmounts := []float64{70, 0, 150}
	for i := range got {
		if got[i].Month.Month() != wantMonths[i] || got[i].Amount != wantAmounts[i] {
			t.Errorf("bucket %d = %v %v, want %v %v", i, got[i].Month.Month(), got[i].Amount, wantMonths[i], wantAmounts[i])
		}
	}
	if got[2].Count != 2 {
		t.Errorf("March count = %d", got[2].Count)
	}
}

func TestFilterAndSort(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, Status: model.StatusPending, Phase: 1},
		{ID: 2, Status: model.StatusCompleted, Phase: 1},
		{ID: 3, Status: model.StatusPending, Phase: 2},
	}
	if got := FilterTasks(tasks, "pending", 0); len(got) != 2 {
		t.Errorf("status filter = %d tasks", len(got))
	}
	if got := FilterTasks(tasks, model.StatusPending, 2); len(got) != 1 || got[0].ID != 3 {
		t.Errorf("status+phase filter = %+v", got)
	}

	in := []model.Phase{{ID: 3, Order: 2}, {ID: 2, Order: 1}, {ID: 1, Order: 1}}
	got := SortPhases(in)
	if got[0].ID != 1 || got[1].ID != 2 || got[2].ID != 3 {
		t.Errorf("SortPhases = %+v", got)
	}
	if in[0].ID != 3 {
		t.Error("SortPhases modified its input")
	}
}

func TestDeriveBundles(t *testing.T) {
	snap := model.Empty()
	snap.Phases = phases(model.StatusCompleted)
	d := Derive(snap, time.Now())
	if d.Stats.Progress != 100 || d.Budget.Categories == nil || d.Activities == nil {
		t.Fatalf("Derive = %+v", d)
	}
}
