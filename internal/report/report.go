// Package report produces AI financial reports from a pseudonymized monthly
// payload and keeps a per-user history of them.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/budgetsync/internal/analytics"
	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrConsentRequired = errors.New("consent to AI financial analysis is required")
	ErrEmptyResponse   = errors.New("empty response from model")
	ErrInvalidReport   = errors.New("invalid report")
)

// Payload is what leaves the device. Transactions carry no title or id.
type Payload struct {
	Month        string               `json:"month"`
	Transactions []PayloadTransaction `json:"transactions"`
	Budgets      []PayloadBudget      `json:"budgets"`
	Goals        []PayloadGoal        `json:"goals"`
}

type PayloadTransaction struct {
	Amount   decimal.Decimal `json:"amount"`
	Type     domain.Kind     `json:"type"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
}

type PayloadBudget struct {
	Category string          `json:"category"`
	Limit    decimal.Decimal `json:"limit"`
}

type PayloadGoal struct {
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
}

// BuildPayload keeps the current calendar month's transactions and every
// budget and goal.
func BuildPayload(in analytics.Input, now time.Time) Payload {
	p := Payload{
		Month:        fmt.Sprintf("%d/%d", int(now.Month()), now.Year()),
		Transactions: make([]PayloadTransaction, 0),
		Budgets:      make([]PayloadBudget, 0, len(in.Budgets)),
		Goals:        make([]PayloadGoal, 0, len(in.Goals)),
	}
	for _, t := range in.Transactions {
		if !t.InMonth(now) {
			continue
		}
		p.Transactions = append(p.Transactions, PayloadTransaction{
			Amount:   t.Amount,
			Type:     t.Kind,
			Category: t.Category,
			Date:     t.Date.In(now.Location()).Format(time.DateOnly),
		})
	}
	for _, b := range in.Budgets {
		p.Budgets = append(p.Budgets, PayloadBudget{Category: b.Category, Limit: b.Limit})
	}
	for _, g := range in.Goals {
		p.Goals = append(p.Goals, PayloadGoal{Name: g.Name, TargetAmount: g.TargetAmount, CurrentAmount: g.CurrentAmount})
	}
	return p
}

// Report is the structured result of one analysis.
type Report struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Summary       string            `json:"summary"`
	Watch         []string          `json:"watch"`
	Problems      []string          `json:"problems"`
	Opportunities []string          `json:"opportunities"`
	Projection    string            `json:"projection"`
	Budgets       map[string]string `json:"budgets"`
	Goals         map[string]string `json:"goals"`
	Advice        []string          `json:"advice"`
	Score         int               `json:"score"`
}

func (r Report) Validate() error {
	if r.Summary == "" {
		return fmt.Errorf("%w: missing summary", ErrInvalidReport)
	}
	if r.Score < 0 || r.Score > 100 {
		return fmt.Errorf("%w: score %d outside 0-100", ErrInvalidReport, r.Score)
	}
	return nil
}
