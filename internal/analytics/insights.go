package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	warnRatio   = 0.8
	trendMinDay = 5
)

var (
	highTrend = decimal.RequireFromString("1.2")
	lowTrend  = decimal.RequireFromString("0.8")
	three     = decimal.NewFromInt(3)
)

// GenerateInsights evaluates the budget rules for each usage in order, then
// the spending trend rule. At most one trend insight is produced.
func GenerateInsights(txns []domain.Transaction, usage []domain.BudgetUsage, now time.Time) []domain.Insight {
	var out []domain.Insight

	for _, u := range usage {
		if in, ok := budgetInsight(u, now); ok {
			out = append(out, in)
		}
	}
	if in, ok := trendInsight(txns, now); ok {
		out = append(out, in)
	}
	return out
}

func budgetInsight(u domain.BudgetUsage, now time.Time) (domain.Insight, bool) {
	if u.Spent.GreaterThan(u.Limit) {
		return domain.Insight{
			ID:       "budget-over-" + u.Category,
			Severity: domain.SeverityAlert,
			Title:    "Budget exceeded",
			Message:  fmt.Sprintf("You are over your %s budget by %s.", u.Category, u.Spent.Sub(u.Limit).StringFixed(0)),
			Metric:   fmt.Sprintf("%d%%", int64(math.Round(u.Pct*100))),
			Date:     now,
		}, true
	}
	if u.Pct > warnRatio {
		return domain.Insight{
			ID:       "budget-warn-" + u.Category,
			Severity: domain.SeverityInfo,
			Title:    "Budget warning",
			Message:  fmt.Sprintf("You have used 80%% of your %s budget.", u.Category),
			Metric:   fmt.Sprintf("%s remaining", u.Limit.Sub(u.Spent).StringFixed(0)),
			Date:     now,
		}, true
	}
	return domain.Insight{}, false
}

// trendInsight compares the projected month total with the average of the
// three previous calendar months.
func trendInsight(txns []domain.Transaction, now time.Time) (domain.Insight, bool) {
	day := now.Day()
	if day <= trendMinDay {
		return domain.Insight{}, false
	}

	sum := decimal.Zero
	for offset := 1; offset <= 3; offset++ {
		sum = sum.Add(monthExpenses(txns, monthsAgo(now, offset)))
	}
	avg := sum.Div(three)
	if !avg.IsPositive() {
		return domain.Insight{}, false
	}

	current := monthExpenses(txns, now)
	projection := current.Div(decimal.NewFromInt(int64(day))).Mul(decimal.NewFromInt(int64(daysInMonth(now))))

	switch {
	case projection.GreaterThan(avg.Mul(highTrend)):
		over := projection.Sub(avg).Div(avg).InexactFloat64()
		return domain.Insight{
			ID:       "high-spending",
			Severity: domain.SeverityAlert,
			Title:    "High spending",
			Message:  fmt.Sprintf("Projected spending (%s) is more than 20%% above your usual average.", projection.StringFixed(0)),
			Metric:   fmt.Sprintf("+%d%%", int64(math.Round(over*100))),
			Date:     now,
		}, true
	case projection.LessThan(avg.Mul(lowTrend)):
		under := decimal.NewFromInt(1).Sub(projection.Div(avg)).InexactFloat64()
		return domain.Insight{
			ID:       "good-saving",
			Severity: domain.SeveritySuccess,
			Title:    "Good saving",
			Message:  "Keep it up! You are spending less than usual.",
			Metric:   fmt.Sprintf("-%d%%", int64(math.Round(under*100))),
			Date:     now,
		}, true
	}
	return domain.Insight{}, false
}
