package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BudgetDeleteSentinel is the limit value that requests deletion of a budget
// on the write path. It is never stored as a real limit.
var BudgetDeleteSentinel = decimal.NewFromInt(-1)

// Budget is a monthly spending limit for one category, keyed by category name.
type Budget struct {
	Category string          `json:"category"`
	Limit    decimal.Decimal `json:"limit"`
}

// IsDeleteRequest reports whether the budget carries the delete sentinel.
func (b Budget) IsDeleteRequest() bool {
	return b.Limit.Equal(BudgetDeleteSentinel)
}

// Validate accepts a real limit (>= 0) or the delete sentinel.
func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyName
	}
	if b.IsDeleteRequest() {
		return nil
	}
	if b.Limit.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidLimit, b.Limit.String())
	}
	return nil
}

// DefaultBudgets are written once for a new account.
func DefaultBudgets() []Budget {
	return []Budget{
		{Category: "Food", Limit: decimal.NewFromInt(400)},
		{Category: "Leisure", Limit: decimal.NewFromInt(150)},
		{Category: "Transport", Limit: decimal.NewFromInt(100)},
		{Category: "Shopping", Limit: decimal.NewFromInt(200)},
	}
}
