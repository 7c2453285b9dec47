package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/shopspring/decimal"
)

// CategoryTotal is one slice of the current-month expense breakdown.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// CategoryBreakdown returns current-month expenses per category, largest
// first. Ties are ordered by name.
func CategoryBreakdown(txns []domain.Transaction, now time.Time) []CategoryTotal {
	spent := spentByCategory(txns, now)
	out := make([]CategoryTotal, 0, len(spent))
	for cat, total := range spent {
		out = append(out, CategoryTotal{Category: cat, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// MonthComparison compares this month's expenses with last month's.
type MonthComparison struct {
	Current  decimal.Decimal `json:"current"`
	Previous decimal.Decimal `json:"previous"`

	// DiffPercent is the rounded change versus Previous, 0 without history.
	DiffPercent int64 `json:"diffPercent"`

	// Projected extends the current total by the average daily spend of the
	// last seven days over the days left in the month.
	Projected decimal.Decimal `json:"projected"`

	// Cumulative holds the running expense total for each day up to today.
	Cumulative []decimal.Decimal `json:"cumulative"`
}

func MonthOverMonth(txns []domain.Transaction, now time.Time) MonthComparison {
	cur := monthExpenses(txns, now)
	prev := monthExpenses(txns, monthsAgo(now, 1))

	mc := MonthComparison{Current: cur, Previous: prev}
	if prev.IsPositive() {
		mc.DiffPercent = int64(math.Round(cur.Sub(prev).Div(prev).InexactFloat64() * 100))
	}

	weekAgo := now.AddDate(0, 0, -7)
	lastWeek := decimal.Zero
	daily := make([]decimal.Decimal, now.Day())
	for i := range daily {
		daily[i] = decimal.Zero
	}
	for _, t := range txns {
		if t.Kind != domain.KindExpense {
			continue
		}
		if !t.Date.Before(weekAgo) && !t.Date.After(now) {
			lastWeek = lastWeek.Add(t.Amount)
		}
		if t.InMonth(now) {
			if d := t.Date.In(now.Location()).Day(); d <= len(daily) {
				daily[d-1] = daily[d-1].Add(t.Amount)
			}
		}
	}

	remaining := int64(daysInMonth(now) - now.Day())
	mc.Projected = cur.Add(lastWeek.Div(decimal.NewFromInt(7)).Mul(decimal.NewFromInt(remaining)))

	running := decimal.Zero
	mc.Cumulative = make([]decimal.Decimal, len(daily))
	for i, v := range daily {
		running = running.Add(v)
		mc.Cumulative[i] = running
	}
	return mc
}
