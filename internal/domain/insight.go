package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Severity of an insight.
type Severity string

const (
	SeverityAlert   Severity = "alert"
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
)

// Insight is recomputed on every read and never persisted. ID is stable for
// a given triggering condition so callers can deduplicate.
type Insight struct {
	ID       string    `json:"id"`
	Severity Severity  `json:"type"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Metric   string    `json:"metric,omitempty"`
	Date     time.Time `json:"date"`
}

// Stats aggregates all transactions regardless of date.
type Stats struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// BudgetStatus classifies current-month consumption of a budget.
type BudgetStatus string

const (
	BudgetOK      BudgetStatus = "ok"
	BudgetWarning BudgetStatus = "warning"
	BudgetOver    BudgetStatus = "over"
)

// BudgetUsage is a budget with its derived figures for the current month.
// Pct is Spent/Limit, or 0 when Limit is 0.
type BudgetUsage struct {
	Category  string          `json:"category"`
	Limit     decimal.Decimal `json:"limit"`
	Spent     decimal.Decimal `json:"spent"`
	Pct       float64         `json:"pct"`
	Projected decimal.Decimal `json:"projected"`
	Status    BudgetStatus    `json:"status"`
}
