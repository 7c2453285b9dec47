// Package analytics derives stats, budget consumption and insights from the
// in-memory collections. Every function is pure; nothing is cached.
package analytics

import (
	"time"

	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/shopspring/decimal"
)

// Input is the current state of a user's collections.
type Input struct {
	Transactions []domain.Transaction
	Budgets      []domain.Budget
	Goals        []domain.SavingsGoal
}

// GoalProgress pairs a goal with its completion ratio.
type GoalProgress struct {
	Goal     domain.SavingsGoal `json:"goal"`
	Progress float64            `json:"progress"`
}

// Derived is everything computed from an Input at one instant.
type Derived struct {
	Stats      domain.Stats         `json:"stats"`
	Budgets    []domain.BudgetUsage `json:"budgets"`
	Insights   []domain.Insight     `json:"insights"`
	Breakdown  []CategoryTotal      `json:"breakdown"`
	Comparison MonthComparison      `json:"comparison"`
	Goals      []GoalProgress       `json:"goals"`
}

// Compute runs every derivation for now. Calendar months are taken in now's
// location.
func Compute(in Input, now time.Time) Derived {
	budgets := ComputeBudgets(in.Transactions, in.Budgets, now)

	goals := make([]GoalProgress, 0, len(in.Goals))
	for _, g := range in.Goals {
		goals = append(goals, GoalProgress{Goal: g, Progress: g.Progress()})
	}

	return Derived{
		Stats:      ComputeStats(in.Transactions),
		Budgets:    budgets,
		Insights:   GenerateInsights(in.Transactions, budgets, now),
		Breakdown:  CategoryBreakdown(in.Transactions, now),
		Comparison: MonthOverMonth(in.Transactions, now),
		Goals:      goals,
	}
}

// ComputeStats sums every transaction regardless of date.
func ComputeStats(txns []domain.Transaction) domain.Stats {
	income, expense := decimal.Zero, decimal.Zero
	for _, t := range txns {
		switch t.Kind {
		case domain.KindIncome:
			income = income.Add(t.Amount)
		case domain.KindExpense:
			expense = expense.Add(t.Amount)
		}
	}
	return domain.Stats{Income: income, Expense: expense, Balance: income.Sub(expense)}
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// monthsAgo returns the first instant of the calendar month offset months
// before ref's month.
func monthsAgo(ref time.Time, offset int) time.Time {
	return monthStart(ref).AddDate(0, -offset, 0)
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// monthExpenses is the expense total of ref's calendar month.
func monthExpenses(txns []domain.Transaction, ref time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		if t.Kind == domain.KindExpense && t.InMonth(ref) {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// spentByCategory sums current-month expenses per category.
func spentByCategory(txns []domain.Transaction, now time.Time) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, t := range txns {
		if t.Kind != domain.KindExpense || !t.InMonth(now) {
			continue
		}
		out[t.Category] = out[t.Category].Add(t.Amount)
	}
	return out
}

// ComputeBudgets derives spent, pct, a linear end-of-month projection and a
// status for every budget.
func ComputeBudgets(txns []domain.Transaction, budgets []domain.Budget, now time.Time) []domain.BudgetUsage {
	spent := spentByCategory(txns, now)
	day := decimal.NewFromInt(int64(max(1, now.Day())))
	dim := decimal.NewFromInt(int64(daysInMonth(now)))

	out := make([]domain.BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		s := spent[b.Category]
		u := domain.BudgetUsage{
			Category:  b.Category,
			Limit:     b.Limit,
			Spent:     s,
			Projected: s.Div(day).Mul(dim),
		}
		if b.Limit.IsPositive() {
			u.Pct = s.Div(b.Limit).InexactFloat64()
		}
		u.Status = budgetStatus(u)
		out = append(out, u)
	}
	return out
}

func budgetStatus(u domain.BudgetUsage) domain.BudgetStatus {
	switch {
	case u.Spent.GreaterThan(u.Limit):
		return domain.BudgetOver
	case u.Pct > 0.85, u.Pct > 0.5 && u.Projected.GreaterThan(u.Limit):
		return domain.BudgetWarning
	}
	return domain.BudgetOK
}
