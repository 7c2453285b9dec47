package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SavingsGoal tracks progress toward a target. CurrentAmount only grows, by
// explicit contributions.
type SavingsGoal struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Icon          string          `json:"icon"`
	Color         string          `json:"color"`
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if !g.TargetAmount.IsPositive() {
		return ErrInvalidTarget
	}
	if g.CurrentAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Contribute returns a copy of g with amount added to CurrentAmount.
func (g SavingsGoal) Contribute(amount decimal.Decimal) (SavingsGoal, error) {
	if !amount.IsPositive() {
		return g, ErrInvalidContribution
	}
	g.CurrentAmount = g.CurrentAmount.Add(amount)
	return g, nil
}

// Progress is CurrentAmount/TargetAmount, 0 when the target is not positive.
func (g SavingsGoal) Progress() float64 {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	f, _ := g.CurrentAmount.Div(g.TargetAmount).Float64()
	return f
}
