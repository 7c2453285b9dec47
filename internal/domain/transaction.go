package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the direction of a transaction.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

// Transaction is a single income or expense record owned by one user.
// Amount is never negative; Kind decides the sign in every aggregation.
type Transaction struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Kind     Kind            `json:"type"`
	Category string          `json:"category"`
	Date     time.Time       `json:"date"`
	Title    string          `json:"title"`
}

// Validate checks the invariants that must hold before a transaction is written.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrMissingID
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, t.Amount.String())
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)
	}
	if t.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// Signed returns the amount with the sign implied by Kind.
func (t Transaction) Signed() decimal.Decimal {
	if t.Kind == KindIncome {
		return t.Amount
	}
	return t.Amount.Neg()
}

// InMonth reports whether the transaction falls in the calendar month of ref,
// using ref's location for the wall clock.
func (t Transaction) InMonth(ref time.Time) bool {
	d := t.Date.In(ref.Location())
	return d.Year() == ref.Year() && d.Month() == ref.Month()
}
