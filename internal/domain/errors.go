package domain

import "errors"

var (
	ErrMissingID           = errors.New("id is required")
	ErrMissingDate         = errors.New("date is required")
	ErrInvalidAmount       = errors.New("amount must not be negative")
	ErrInvalidKind         = errors.New("kind must be expense or income")
	ErrInvalidLimit        = errors.New("budget limit must not be negative")
	ErrInvalidTarget       = errors.New("target amount must be greater than zero")
	ErrInvalidContribution = errors.New("contribution must be greater than zero")
	ErrEmptyName           = errors.New("name is required")
	ErrDuplicateCategory   = errors.New("category already exists")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrGoalNotFound        = errors.New("savings goal not found")
)
