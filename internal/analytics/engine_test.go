package analytics

import (
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/shopspring/decimal"
)

var june15 = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

func expense(cat string, amount int64, date time.Time) domain.Transaction {
	return domain.Transaction{
		ID:       gofakeit.UUID(),
		Amount:   decimal.NewFromInt(amount),
		Kind:     domain.KindExpense,
		Category: cat,
		Date:     date,
	}
}

func income(amount int64, date time.Time) domain.Transaction {
	t := expense("Salary", amount, date)
	t.Kind = domain.KindIncome
	return t
}

func budget(cat string, limit int64) domain.Budget {
	return domain.Budget{Category: cat, Limit: decimal.NewFromInt(limit)}
}

func findInsight(list []domain.Insight, id string) (domain.Insight, bool) {
	for _, in := range list {
		if in.ID == id {
			return in, true
		}
	}
	return domain.Insight{}, false
}

func TestCompute_FoodOverrun(t *testing.T) {
	txns := []domain.Transaction{
		expense("Food", 50, june15.AddDate(0, 0, -3)),
		expense("Food", 30, june15.AddDate(0, 0, -2)),
		expense("Food", 20, june15),
	}
	d := Compute(Input{Transactions: txns, Budgets: []domain.Budget{budget("Food", 80)}}, june15)

	if len(d.Budgets) != 1 {
		t.Fatalf("budgets = %d, want 1", len(d.Budgets))
	}
	u := d.Budgets[0]
	if !u.Spent.Equal(decimal.NewFromInt(100)) || u.Pct != 1.25 || u.Status != domain.BudgetOver {
		t.Errorf("usage = %+v, want spent 100 pct 1.25 over", u)
	}

	in, ok := findInsight(d.Insights, "budget-over-Food")
	if !ok {
		t.Fatalf("overrun insight missing: %+v", d.Insights)
	}
	if in.Severity != domain.SeverityAlert || !strings.Contains(in.Message, "by 20") || in.Metric != "125%" {
		t.Errorf("insight = %+v", in)
	}
	if _, ok := findInsight(d.Insights, "budget-warn-Food"); ok {
		t.Error("warning fired alongside overrun")
	}
}

func TestComputeBudgets(t *testing.T) {
	tests := []struct {
		name       string
		txns       []domain.Transaction
		budget     domain.Budget
		now        time.Time
		wantSpent  int64
		wantPct    float64
		wantStatus domain.BudgetStatus
	}{
		{
			name:       "zero limit never divides",
			txns:       []domain.Transaction{expense("Gifts", 40, june15)},
			budget:     budget("Gifts", 0),
			now:        june15,
			wantSpent:  40,
			wantPct:    0,
			wantStatus: domain.BudgetOver,
		},
		{
			name:       "previous month and income ignored",
			txns:       []domain.Transaction{expense("Food", 70, june15.AddDate(0, -1, 0)), income(500, june15), expense("Transport", 9, june15)},
			budget:     budget("Food", 100),
			now:        june15,
			wantSpent:  0,
			wantPct:    0,
			wantStatus: domain.BudgetOK,
		},
		{
			name:       "projection over limit with more than half spent",
			txns:       []domain.Transaction{expense("Food", 60, time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC))},
			budget:     budget("Food", 100),
			now:        time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC),
			wantSpent:  60,
			wantPct:    0.6,
			wantStatus: domain.BudgetWarning,
		},
		{
			name:       "on track late in the month",
			txns:       []domain.Transaction{expense("Food", 40, time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC))},
			budget:     budget("Food", 100),
			now:        time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC),
			wantSpent:  40,
			wantPct:    0.4,
			wantStatus: domain.BudgetOK,
		},
		{
			name:       "above 85 percent",
			txns:       []domain.Transaction{expense("Food", 90, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))},
			budget:     budget("Food", 100),
			now:        time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC),
			wantSpent:  90,
			wantPct:    0.9,
			wantStatus: domain.BudgetWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBudgets(tt.txns, []domain.Budget{tt.budget}, tt.now)[0]
			if !got.Spent.Equal(decimal.NewFromInt(tt.wantSpent)) {
				t.Errorf("Spent = %s, want %d", got.Spent, tt.wantSpent)
			}
			if got.Pct != tt.wantPct {
				t.Errorf("Pct = %v, want %v", got.Pct, tt.wantPct)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", got.Status, tt.wantStatus)
			}
		})
	}
}

func TestGenerateInsights_BudgetWarning(t *testing.T) {
	usage := ComputeBudgets([]domain.Transaction{expense("Leisure", 85, june15)}, []domain.Budget{budget("Leisure", 100)}, june15)
	got := GenerateInsights(nil, usage, june15)

	if len(got) != 1 {
		t.Fatalf("insights = %+v, want one", got)
	}
	if got[0].ID != "budget-warn-Leisure" || got[0].Severity != domain.SeverityInfo || got[0].Metric != "15 remaining" {
		t.Errorf("insight = %+v", got[0])
	}
}

func TestGenerateInsights_Trend(t *testing.T) {
	history := []domain.Transaction{
		expense("Food", 100, time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)),
		expense("Food", 100, time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)),
		expense("Food", 100, time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC)),
		// four months back, outside the window
		expense("Food", 5000, time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC)),
	}

	tests := []struct {
		name       string
		current    int64
		now        time.Time
		wantID     string
		wantMetric string
	}{
		{"projected double the average", 100, june15, "high-spending", "+100%"},
		{"projected well below average", 10, june15, "good-saving", "-80%"},
		{"within band", 50, june15, "", ""},
		{"too early in the month", 100, time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC), "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txns := append([]domain.Transaction{expense("Food", tt.current, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))}, history...)
			got := GenerateInsights(txns, nil, tt.now)

			if tt.wantID == "" {
				if len(got) != 0 {
					t.Errorf("insights = %+v, want none", got)
				}
				return
			}
			if len(got) != 1 || got[0].ID != tt.wantID || got[0].Metric != tt.wantMetric {
				t.Errorf("insights = %+v, want %s %s", got, tt.wantID, tt.wantMetric)
			}
		})
	}
}

func TestGenerateInsights_NoHistoryNoTrend(t *testing.T) {
	got := GenerateInsights([]domain.Transaction{expense("Food", 900, june15)}, nil, june15)
	if len(got) != 0 {
		t.Errorf("insights = %+v, want none without history", got)
	}
}

func randomTransactions(f *gofakeit.Faker, n int) []domain.Transaction {
	start := june15.AddDate(0, -5, 0)
	out := make([]domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		kind := domain.KindExpense
		if f.Bool() {
			kind = domain.KindIncome
		}
		out = append(out, domain.Transaction{
			ID:       f.UUID(),
			Amount:   decimal.NewFromFloat(f.Price(0, 1000)).Round(2),
			Kind:     kind,
			Category: f.RandomString([]string{"Food", "Leisure", "Transport", "Shopping"}),
			Date:     f.DateRange(start, june15),
			Title:    f.Word(),
		})
	}
	return out
}

func TestProperties_RandomTransactionSets(t *testing.T) {
	f := gofakeit.New(20250615)

	for i := 0; i < 200; i++ {
		txns := randomTransactions(f, f.Number(0, 60))
		now := june15.AddDate(0, 0, f.Number(-14, 15))

		stats := ComputeStats(txns)
		inc, exp := decimal.Zero, decimal.Zero
		for _, tr := range txns {
			if tr.Kind == domain.KindIncome {
				inc = inc.Add(tr.Amount)
			} else {
				exp = exp.Add(tr.Amount)
			}
		}
		if !stats.Income.Equal(inc) || !stats.Expense.Equal(exp) || !stats.Balance.Equal(stats.Income.Sub(stats.Expense)) {
			t.Fatalf("iteration %d: stats = %+v, want income %s expense %s", i, stats, inc, exp)
		}

		budgets := []domain.Budget{budget("Food", 0), budget("Leisure", int64(f.Number(0, 500)))}
		d := Compute(Input{Transactions: txns, Budgets: budgets}, now)
		if d.Budgets[0].Pct != 0 {
			t.Fatalf("iteration %d: zero-limit pct = %v", i, d.Budgets[0].Pct)
		}

		_, high := findInsight(d.Insights, "high-spending")
		_, good := findInsight(d.Insights, "good-saving")
		if high && good {
			t.Fatalf("iteration %d: both trend insights fired", i)
		}
	}
}

func TestCategoryBreakdown(t *testing.T) {
	txns := []domain.Transaction{
		expense("Food", 10, june15),
		expense("Transport", 40, june15),
		expense("Food", 35, june15),
		expense("Leisure", 45, june15),
		expense("Food", 500, june15.AddDate(0, -1, 0)),
		income(1000, june15),
	}
	got := CategoryBreakdown(txns, june15)

	want := []string{"Food", "Leisure", "Transport"}
	if len(got) != len(want) {
		t.Fatalf("breakdown = %+v", got)
	}
	for i, cat := range want {
		if got[i].Category != cat {
			t.Errorf("position %d = %s, want %s", i, got[i].Category, cat)
		}
	}
	if !got[0].Total.Equal(decimal.NewFromInt(45)) {
		t.Errorf("Food total = %s, want 45", got[0].Total)
	}
}

func TestMonthOverMonth(t *testing.T) {
	txns := []domain.Transaction{
		expense("Food", 150, time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)),
		expense("Food", 70, time.Date(2025, time.June, 14, 0, 0, 0, 0, time.UTC)),
		expense("Food", 200, time.Date(2025, time.May, 20, 0, 0, 0, 0, time.UTC)),
	}
	got := MonthOverMonth(txns, june15)

	if !got.Current.Equal(decimal.NewFromInt(220)) || !got.Previous.Equal(decimal.NewFromInt(200)) {
		t.Errorf("totals = %s / %s, want 220 / 200", got.Current, got.Previous)
	}
	if got.DiffPercent != 10 {
		t.Errorf("DiffPercent = %d, want 10", got.DiffPercent)
	}
	// 70 over the last week, 15 days left
	if !got.Projected.Equal(decimal.NewFromInt(370)) {
		t.Errorf("Projected = %s, want 370", got.Projected)
	}
	if len(got.Cumulative) != 15 || !got.Cumulative[1].Equal(decimal.NewFromInt(150)) || !got.Cumulative[14].Equal(decimal.NewFromInt(220)) {
		t.Errorf("Cumulative = %v", got.Cumulative)
	}
}

func TestMonthOverMonth_NoHistory(t *testing.T) {
	got := MonthOverMonth([]domain.Transaction{expense("Food", 10, june15)}, june15)
	if got.DiffPercent != 0 {
		t.Errorf("DiffPercent = %d, want 0", got.DiffPercent)
	}
}
