package model

// Status values shared by phases, tasks and permit steps.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusHalted     = "HALTED"
	StatusBlocked    = "BLOCKED"
	StatusApproved   = "APPROVED"
	StatusRejected   = "REJECTED"
)

// Funding source types.
const (
	SourceLoan     = "LOAN"
	SourceBorrowed = "BORROWED"
	SourceOwnMoney = "OWN_MONEY"
)

// PhaseStatuses lists the statuses a construction phase can take.
var PhaseStatuses = []string{StatusPending, StatusInProgress, StatusCompleted, StatusHalted}

// TaskStatuses lists the statuses a task can take.
var TaskStatuses = []string{StatusPending, StatusInProgress, StatusCompleted, StatusBlocked}

// PermitStatuses lists the statuses a permit step can take.
var PermitStatuses = []string{StatusPending, StatusInProgress, StatusApproved, StatusRejected}

// Project is the single house project the dashboard is about.
type Project struct {
	ID                     int64  `json:"id"`
	Name                   string `json:"name"`
	Address                string `json:"address,omitempty"`
	TotalBudget            Amount `json:"total_budget"`
	AreaSqft               Amount `json:"area_sqft"`
	StartDate              Date   `json:"start_date"`
	ExpectedCompletionDate Date   `json:"expected_completion_date"`
}

// Phase is a construction phase (foundation, DPC, slab...).
type Phase struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Status          string `json:"status"`
	Order           int    `json:"order"`
	EstimatedBudget Amount `json:"estimated_budget"`
	StartDate       Date   `json:"start_date"`
	EndDate         Date   `json:"end_date"`
}

// Task is a unit of work, optionally tied to a phase and a room.
type Task struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Status        string `json:"status"`
	Priority      string `json:"priority"`
	Phase         int64  `json:"phase"`
	Room          int64  `json:"room"`
	AssignedTo    int64  `json:"assigned_to"`
	EstimatedCost Amount `json:"estimated_cost"`
	DueDate       Date   `json:"due_date"`
	UpdatedAt     Date   `json:"updated_at"`
}

// Expense is a recorded spend against a budget category.
type Expense struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Amount      Amount `json:"amount"`
	ExpenseType string `json:"expense_type"`
	Category    int64  `json:"category"`
	Phase       int64  `json:"phase"`
	Supplier    int64  `json:"supplier"`
	Contractor  int64  `json:"contractor"`
	Date        Date   `json:"date"`
	PaidTo      string `json:"paid_to"`
	IsPaid      bool   `json:"is_paid"`
}

// Material is an inventory item tracked on site.
type Material struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Category       string `json:"category,omitempty"`
	Unit           string `json:"unit"`
	CurrentStock   Amount `json:"current_stock"`
	MinStockLevel  Amount `json:"min_stock_level"`
	AvgCostPerUnit Amount `json:"avg_cost_per_unit"`
	Supplier       int64  `json:"supplier"`
}

// Transaction is a stock movement for a material.
type Transaction struct {
	ID              int64  `json:"id"`
	Material        int64  `json:"material"`
	TransactionType string `json:"transaction_type"`
	Quantity        Amount `json:"quantity"`
	UnitPrice       Amount `json:"unit_price"`
	Status          string `json:"status"`
	Date            Date   `json:"date"`
}

// Contractor is a person or firm working on site.
type Contractor struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	DailyWage Amount `json:"daily_wage"`
	IsActive  bool   `json:"is_active"`
}

// Supplier sells materials.
type Supplier struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person,omitempty"`
	Phone         string `json:"phone"`
	Email         string `json:"email,omitempty"`
	Category      string `json:"category"`
}

// BudgetCategory is a named allocation expenses are tracked against.
type BudgetCategory struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Allocation  Amount `json:"allocation"`
}

// Floor is a storey of the house.
type Floor struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Room belongs to a floor.
type Room struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Floor            int64  `json:"floor"`
	Status           string `json:"status"`
	AreaSqft         Amount `json:"area_sqft"`
	BudgetAllocation Amount `json:"budget_allocation"`
}

// PermitStep is one step of the municipal building permit process.
type PermitStep struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Order       int    `json:"order"`
	DateIssued  Date   `json:"date_issued"`
}

// FundingSource is a pool of capital (loan, own money...) expenses draw from.
type FundingSource struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Amount       Amount `json:"amount"`
	SourceType   string `json:"source_type"`
	ReceivedDate Date   `json:"received_date"`
}

// Snapshot is the combined dashboard payload. It is replaced wholesale on
// every refresh and must not be mutated once published; use Clone.
type Snapshot struct {
	Project          *Project         `json:"project"`
	Rooms            []Room           `json:"rooms"`
	Tasks            []Task           `json:"tasks"`
	Phases           []Phase          `json:"phases"`
	Expenses         []Expense        `json:"expenses"`
	Materials        []Material       `json:"materials"`
	Contractors      []Contractor     `json:"contractors"`
	BudgetCategories []BudgetCategory `json:"budgetCategories"`
	Suppliers        []Supplier       `json:"suppliers"`
	Floors           []Floor          `json:"floors"`
	PermitSteps      []PermitStep     `json:"permitSteps"`
	Funding          []FundingSource  `json:"funding"`
	Transactions     []Transaction    `json:"transactions"`
}

// Empty returns the baseline snapshot: no project and every collection empty.
func Empty() Snapshot {
	var s Snapshot
	s.Normalize()
	return s
}

// Normalize replaces nil collections with empty ones.
func (s *Snapshot) Normalize() {
	if s.Rooms == nil {
		s.Rooms = []Room{}
	}
	if s.Tasks == nil {
		s.Tasks = []Task{}
	}
	if s.Phases == nil {
		s.Phases = []Phase{}
	}
	if s.Expenses == nil {
		s.Expenses = []Expense{}
	}
	if s.Materials == nil {
		s.Materials = []Material{}
	}
	if s.Contractors == nil {
		s.Contractors = []Contractor{}
	}
	if s.BudgetCategories == nil {
		s.BudgetCategories = []BudgetCategory{}
	}
	if s.Suppliers == nil {
		s.Suppliers = []Supplier{}
	}
	if s.Floors == nil {
		s.Floors = []Floor{}
	}
	if s.PermitSteps == nil {
		s.PermitSteps = []PermitStep{}
	}
	if s.Funding == nil {
		s.Funding = []FundingSource{}
	}
	if s.Transactions == nil {
		s.Transactions = []Transaction{}
	}
}

// IsEmpty reports whether the snapshot holds no project and no entities.
func (s Snapshot) IsEmpty() bool {
	return s.Project == nil &&
		len(s.Rooms) == 0 &&
		len(s.Tasks) == 0 &&
		len(s.Phases) == 0 &&
		len(s.Expenses) == 0 &&
		len(s.Materials) == 0 &&
		len(s.Contractors) == 0 &&
		len(s.BudgetCategories) == 0 &&
		len(s.Suppliers) == 0 &&
		len(s.Floors) == 0 &&
		len(s.PermitSteps) == 0 &&
		len(s.Funding) == 0 &&
		len(s.Transactions) == 0
}

// Clone returns a deep copy. Entities hold only value fields, so copying each
// slice is enough.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Rooms:            cloneSlice(s.Rooms),
		Tasks:            cloneSlice(s.Tasks),
		Phases:           cloneSlice(s.Phases),
		Expenses:         cloneSlice(s.Expenses),
		Materials:        cloneSlice(s.Materials),
		Contractors:      cloneSlice(s.Contractors),
		BudgetCategories: cloneSlice(s.BudgetCategories),
		Suppliers:        cloneSlice(s.Suppliers),
		Floors:           cloneSlice(s.Floors),
		PermitSteps:      cloneSlice(s.PermitSteps),
		Funding:          cloneSlice(s.Funding),
		Transactions:     cloneSlice(s.Transactions),
	}
	if s.Project != nil {
		p := *s.Project
		out.Project = &p
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
