package model

// Project health states derived from category allocations.
const (
	HealthOK            = "HEALTHY"
	HealthOverAllocated = "OVER_ALLOCATED"
)

// BudgetStats holds budget utilization, funding and inventory figures.
type BudgetStats struct {
	TotalBudget     float64 `json:"total_budget"`
	TotalSpent      float64 `json:"total_spent"`
	RemainingBudget float64 `json:"remaining_budget"`
	BudgetPercent   float64 `json:"budget_percent"`

	TotalFunded     float64 `json:"total_funded"`
	TotalDebt       float64 `json:"total_debt"`
	OwnCapital      float64 `json:"own_capital"`
	AvailableCash   float64 `json:"available_cash"`
	FundingCoverage float64 `json:"funding_coverage"`
	DebtToEquity    string  `json:"debt_to_equity"`

	InventoryValue float64        `json:"inventory_value"`
	Categories     []CategoryStat `json:"categories"`
	LowStockItems  []LowStockItem `json:"low_stock_items"`

	IsOverBudget  bool          `json:"is_over_budget"`
	IsUnderFunded bool          `json:"is_under_funded"`
	Health        ProjectHealth `json:"health"`
}

// CategoryStat is the utilization of one budget category.
type CategoryStat struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Allocation float64 `json:"allocation"`
	Spent      float64 `json:"spent"`
	Percent    float64 `json:"percent"`
	Remaining  float64 `json:"remaining"`
}

// LowStockItem is a material at or below its minimum level. PendingTransaction
// is set when a restock is already on its way.
type LowStockItem struct {
	Material
	PendingTransaction *Transaction `json:"pending_transaction"`
}

// ProjectHealth flags category allocations that exceed the master budget.
type ProjectHealth struct {
	Status string  `json:"status"`
	Excess float64 `json:"excess"`
}
