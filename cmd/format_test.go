package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/sitebook/internal/model"
)

func TestDashboardAlerts(t *testing.T) {
	b := model.BudgetStats{
		TotalBudget:   100,
		TotalSpent:    150,
		TotalFunded:   120,
		IsOverBudget:  true,
		IsUnderFunded: true,
		Health:        model.ProjectHealth{Status: model.HealthOverAllocated, Excess: 10},
		LowStockItems: []model.LowStockItem{{}},
	}
	alerts := dashboardAlerts(b)
	if len(alerts) != 4 {
		t.Fatalf("got %d alerts, want 4: %v", len(alerts), alerts)
	}
	if !strings.HasPrefix(alerts[0], "Over budget") {
		t.Errorf("first alert = %q", alerts[0])
	}

	if got := dashboardAlerts(model.BudgetStats{Health: model.ProjectHealth{Status: model.HealthOK}}); len(got) != 0 {
		t.Errorf("healthy budget produced alerts: %v", got)
	}
}

func TestFilterExpensesNewestFirst(t *testing.T) {
	day := func(d int) model.Date { return model.NewDate(time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)) }
	expenses := []model.Expense{
		{ID: 1, Phase: 1, Category: 3, Date: day(1)},
		{ID: 2, Phase: 2, Category: 3, Date: day(9)},
		{ID: 3, Phase: 1, Category: 4, Date: day(5)},
	}

	tests := []struct {
		name            string
		phase, category int64
		want            []int64
	}{
		{"all", 0, 0, []int64{2, 3, 1}},
		{"phase", 1, 0, []int64{3, 1}},
		{"category", 0, 3, []int64{2, 1}},
		{"both", 1, 4, []int64{3}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := filterExpenses(expenses, tt.phase, tt.category)
			ids := make([]int64, len(got))
			for i, e := range got {
				ids[i] = e.ID
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Fatalf("ids = %v, want %v", ids, tt.want)
				}
			}
		})
	}
}

func TestRestockEmailDraft(t *testing.T) {
	m := model.Material{ID: 5, Name: "Cement", Unit: "bags", CurrentStock: 8, MinStockLevel: 20, Supplier: 9}
	email := restockEmail(m, &model.Project{Name: "Lakeview House"})
	if email.Quantity != 12 {
		t.Errorf("Quantity = %v, want 12", email.Quantity)
	}
	if email.SupplierID != 9 {
		t.Errorf("SupplierID = %d, want 9", email.SupplierID)
	}
	if !strings.Contains(email.Body, "12 bags of Cement to Lakeview House") {
		t.Errorf("Body = %q", email.Body)
	}

	m.CurrentStock = 25
	if got := restockEmail(m, nil).Quantity; got != 20 {
		t.Errorf("above-minimum Quantity = %v, want the minimum level 20", got)
	}
}

func TestExpensePayloadValidation(t *testing.T) {
	t.Cleanup(func() {
		flagExpenseTitle, flagExpenseAmount, flagExpenseDate = "", 0, ""
		flagExpenseCategory = 0
	})
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	flagExpenseTitle, flagExpenseAmount = "Cement", 0
	if _, err := expensePayload(now); err == nil {
		t.Fatal("expected error for zero amount")
	}

	flagExpenseAmount = 4500
	flagExpenseCategory = 3
	p, err := expensePayload(now)
	if err != nil {
		t.Fatal(err)
	}
	if p["amount"] != "4500.00" || p["date"] != "2024-06-15" || p["category"] != int64(3) {
		t.Errorf("payload = %v", p)
	}
	if _, ok := p["phase"]; ok {
		t.Error("phase set without a flag")
	}
}
