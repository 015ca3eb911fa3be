package model

import "time"

// DashboardStats holds the summary cards shown on the overview.
type DashboardStats struct {
	HasPhases       bool    `json:"has_phases"`
	TotalPhases     int     `json:"total_phases"`
	CompletedPhases int     `json:"completed_phases"`
	Progress        int     `json:"progress"`
	TotalSpent      float64 `json:"total_spent"`
	DaysElapsed     int     `json:"days_elapsed"`
	CurrentPhase    string  `json:"current_phase"`
}

// Activity kinds.
const (
	ActivityTask    = "task"
	ActivityExpense = "expense"
)

// Activity is one entry of the recent activity feed.
type Activity struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
}

// MonthlySpend is the expense total for one calendar month.
type MonthlySpend struct {
	Month  time.Time `json:"month"`
	Amount float64   `json:"amount"`
	Count  int       `json:"count"`
}

// Derived bundles every statistic computed from one snapshot.
type Derived struct {
	Stats      DashboardStats `json:"stats"`
	Budget     BudgetStats    `json:"budget"`
	Activities []Activity     `json:"activities"`
}
