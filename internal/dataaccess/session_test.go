package dataaccess

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/budgetsync/internal/config"
	"github.com/dvloznov/budgetsync/internal/connectivity"
	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/dvloznov/budgetsync/internal/localstore"
	"github.com/dvloznov/budgetsync/internal/remote"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const testUser = "user-1"

func newSession(t *testing.T, mode Mode, online bool) (*Session, *remote.MemoryStore) {
	t.Helper()
	rs := remote.NewMemoryStore()
	rs.SetOnline(online)
	s, err := NewSession(Options{UserID: testUser, Mode: mode}, Deps{
		Local:   localstore.NewMemoryStore(),
		Remote:  rs,
		Monitor: connectivity.NewMonitor(online, nil, zerolog.Nop()),
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, rs
}

func txn(id string, amount int64) domain.Transaction {
	return domain.Transaction{
		ID:       id,
		Amount:   decimal.NewFromInt(amount),
		Kind:     domain.KindExpense,
		Category: "Food",
		Date:     time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
		Title:    "market",
	}
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		mode      string
		installed bool
		want      Mode
	}{
		{"cache", false, ModeCacheThrough},
		{"direct", true, ModeDirect},
		{"auto", true, ModeCacheThrough},
		{"auto", false, ModeDirect},
		{"", false, ModeDirect},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got := SelectMode(&config.Config{Mode: tt.mode, Installed: tt.installed})
			if got != tt.want {
				t.Errorf("SelectMode(%q, installed=%v) = %s, want %s", tt.mode, tt.installed, got, tt.want)
			}
		})
	}
}

func script(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	steps := []func() error{
		func() error { _, err := s.AddTransaction(ctx, txn("t1", 10)); return err },
		func() error { _, err := s.AddTransaction(ctx, txn("t2", 20)); return err },
		func() error { return s.UpdateTransaction(ctx, txn("t1", 12)) },
		func() error { return s.DeleteTransaction(ctx, "t2") },
		func() error {
			_, err := s.AddSavingsGoal(ctx, domain.SavingsGoal{ID: "g1", Name: "Bike", TargetAmount: decimal.NewFromInt(800)})
			return err
		},
		func() error { _, err := s.AddToSavings(ctx, "g1", decimal.NewFromInt(50)); return err },
		func() error { return s.UpdateBudget(ctx, "Food", decimal.NewFromInt(300)) },
		func() error { return s.UpdateBudget(ctx, "Leisure", decimal.NewFromInt(100)) },
		func() error { return s.DeleteBudget(ctx, "Leisure") },
		func() error { _, err := s.AddCategory(ctx, "Pets", "paw", "brown"); return err },
		func() error { _, err := s.AddCategory(ctx, "Food", "utensils", "orange"); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d error = %v", i, err)
		}
	}
}

func collections(t *testing.T, s *Session) string {
	t.Helper()
	ctx := context.Background()
	txns, err := s.Transactions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	budgets, _ := s.Budgets(ctx)
	goals, _ := s.Goals(ctx)
	cats, _ := s.Categories(ctx)
	data, err := json.Marshal(map[string]any{"t": txns, "b": budgets, "g": goals, "c": cats})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestModes_ProduceIdenticalCollections(t *testing.T) {
	cached, cachedRemote := newSession(t, ModeCacheThrough, true)
	direct, directRemote := newSession(t, ModeDirect, true)

	script(t, cached)
	script(t, direct)

	if got, want := collections(t, cached), collections(t, direct); got != want {
		t.Errorf("collections differ\ncache:  %s\ndirect: %s", got, want)
	}

	ctx := context.Background()
	for _, coll := range []string{remote.Transactions, remote.Budgets, remote.SavingsGoals, remote.Settings} {
		a, _ := cachedRemote.List(ctx, testUser, coll)
		b, _ := directRemote.List(ctx, testUser, coll)
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		if string(ja) != string(jb) {
			t.Errorf("remote %s differs: %s vs %s", coll, ja, jb)
		}
	}

	goals, _ := cached.Goals(ctx)
	if len(goals) != 1 || !goals[0].CurrentAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("goals = %+v, want one with 50 saved", goals)
	}
	budgets, _ := cached.Budgets(ctx)
	if len(budgets) != 1 || budgets[0].Category != "Food" {
		t.Errorf("budgets = %+v, want only Food", budgets)
	}
}

func TestCacheThrough_OfflineWriteIsImmediate(t *testing.T) {
	ctx := context.Background()
	s, rs := newSession(t, ModeCacheThrough, false)

	if _, err := s.AddTransaction(ctx, txn("t1", 10)); err != nil {
		t.Fatalf("AddTransaction() offline error = %v", err)
	}
	txns, _ := s.Transactions(ctx)
	if len(txns) != 1 {
		t.Errorf("local transactions = %d, want 1", len(txns))
	}
	if len(rs.Ops()) != 0 {
		t.Error("remote written while offline")
	}
	st, _ := s.Manager().Status(ctx)
	if st.Pending != 1 {
		t.Errorf("pending = %d, want 1", st.Pending)
	}
}

func TestDirect_OfflineWriteFails(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, ModeDirect, false)

	_, err := s.AddTransaction(ctx, txn("t1", 10))
	if !remote.IsTransient(err) {
		t.Fatalf("AddTransaction() error = %v, want transient remote error", err)
	}
	txns, _ := s.Transactions(ctx)
	if len(txns) != 0 {
		t.Errorf("transactions = %d, want 0", len(txns))
	}
}

func TestCacheThrough_RemoteRejectionSurfaces(t *testing.T) {
	ctx := context.Background()
	s, rs := newSession(t, ModeCacheThrough, true)
	rs.FailNext(remote.ErrPermissionDenied)

	_, err := s.AddTransaction(ctx, txn("t1", 10))
	if !errors.Is(err, remote.ErrPermissionDenied) {
		t.Fatalf("AddTransaction() error = %v, want permission denied", err)
	}
}

func TestSession_Validation(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, ModeCacheThrough, true)
	bad := txn("t1", 10)
	bad.Amount = decimal.NewFromInt(-1)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"negative amount", func() error { _, err := s.AddTransaction(ctx, bad); return err }, domain.ErrInvalidAmount},
		{"update unknown transaction", func() error { return s.UpdateTransaction(ctx, txn("nope", 1)) }, domain.ErrTransactionNotFound},
		{"goal without target", func() error {
			_, err := s.AddSavingsGoal(ctx, domain.SavingsGoal{Name: "x"})
			return err
		}, domain.ErrInvalidTarget},
		{"contribution to unknown goal", func() error {
			_, err := s.AddToSavings(ctx, "nope", decimal.NewFromInt(5))
			return err
		}, domain.ErrGoalNotFound},
		{"negative budget", func() error { return s.UpdateBudget(ctx, "Food", decimal.NewFromInt(-5)) }, domain.ErrInvalidLimit},
		{"empty category", func() error { _, err := s.AddCategory(ctx, " ", "", ""); return err }, domain.ErrEmptyName},
		{"unknown category", func() error { return s.DeleteCategory(ctx, "nope") }, domain.ErrCategoryNotFound},
		{"duplicate in list", func() error {
			return s.ReplaceCategories(ctx, []domain.Category{{Name: "Food"}, {Name: "food"}})
		}, domain.ErrDuplicateCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAddToSavings_RejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, ModeCacheThrough, true)
	g, err := s.AddSavingsGoal(ctx, domain.SavingsGoal{Name: "Trip", TargetAmount: decimal.NewFromInt(100)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddToSavings(ctx, g.ID, decimal.Zero); !errors.Is(err, domain.ErrInvalidContribution) {
		t.Errorf("AddToSavings(0) error = %v, want ErrInvalidContribution", err)
	}
}

func TestDeleteCategory_DoesNotCascade(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, ModeCacheThrough, true)

	c, err := s.AddCategory(ctx, "Food", "utensils", "orange")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = s.AddTransaction(ctx, txn("t1", 10))
	_ = s.UpdateBudget(ctx, "Food", decimal.NewFromInt(100))

	if err := s.DeleteCategory(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}
	cats, _ := s.Categories(ctx)
	txns, _ := s.Transactions(ctx)
	budgets, _ := s.Budgets(ctx)
	if len(cats) != 0 || len(txns) != 1 || len(budgets) != 1 {
		t.Errorf("after delete: %d categories, %d transactions, %d budgets", len(cats), len(txns), len(budgets))
	}
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, ModeCacheThrough, true)
	for i, amt := range []int64{50, 30, 20} {
		tr := txn("", amt)
		tr.Date = tr.Date.Add(time.Duration(i) * time.Hour)
		if _, err := s.AddTransaction(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.UpdateBudget(ctx, "Food", decimal.NewFromInt(80))

	d, err := s.Dashboard(ctx, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if !d.Stats.Expense.Equal(decimal.NewFromInt(100)) || len(d.Budgets) != 1 || d.Budgets[0].Pct != 1.25 {
		t.Errorf("dashboard = %+v", d)
	}
	if len(d.Insights) == 0 || d.Insights[0].ID != "budget-over-Food" {
		t.Errorf("insights = %+v", d.Insights)
	}
}

func TestSession_MirrorsRemoteChanges(t *testing.T) {
	for _, mode := range []Mode{ModeCacheThrough, ModeDirect} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			s, rs := newSession(t, mode, true)
			s.Start(ctx)

			// another device writes
			data, _ := json.Marshal(txn("other", 7))
			if err := rs.Put(ctx, testUser, remote.Transactions, "other", data); err != nil {
				t.Fatal(err)
			}

			deadline := time.Now().Add(2 * time.Second)
			for {
				txns, _ := s.Transactions(ctx)
				if len(txns) == 1 && txns[0].ID == "other" {
					break
				}
				if time.Now().After(deadline) {
					t.Fatalf("remote change not mirrored: %+v", txns)
				}
				time.Sleep(10 * time.Millisecond)
			}

			if err := s.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}
