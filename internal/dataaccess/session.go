package dataaccess

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/budgetsync/internal/analytics"
	"github.com/dvloznov/budgetsync/internal/connectivity"
	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/dvloznov/budgetsync/internal/localstore"
	"github.com/dvloznov/budgetsync/internal/logger"
	"github.com/dvloznov/budgetsync/internal/pending"
	"github.com/dvloznov/budgetsync/internal/remote"
	"github.com/dvloznov/budgetsync/internal/syncer"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Options configures a Session.
type Options struct {
	UserID       string
	Mode         Mode
	SeedDefaults bool
}

// Deps are the collaborators a Session is built from. Local is only used in
// cache-through mode.
type Deps struct {
	Local   localstore.Store
	Remote  remote.DocumentStore
	Monitor *connectivity.Monitor
	Logger  zerolog.Logger
}

// Session is one signed-in user's view of their data.
type Session struct {
	opts Options
	repo Repository
	mgr  *syncer.Manager
	log  zerolog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

// NewSession wires the repository for opts.Mode. Call Start to begin
// mirroring and Close to release subscriptions.
func NewSession(opts Options, deps Deps) (*Session, error) {
	if strings.TrimSpace(opts.UserID) == "" {
		return nil, fmt.Errorf("NewSession: %w", domain.ErrMissingID)
	}
	log := logger.ForUser(deps.Logger, "dataaccess", opts.UserID)
	cfg := syncer.Config{UserID: opts.UserID, SeedDefaults: opts.SeedDefaults}

	s := &Session{opts: opts, log: log}
	switch opts.Mode {
	case ModeCacheThrough:
		if deps.Local == nil {
			return nil, fmt.Errorf("NewSession: cache-through mode needs a local store")
		}
		s.mgr = syncer.NewManager(cfg, deps.Local, pending.NewQueue(deps.Local), deps.Remote, deps.Monitor, deps.Logger)
		s.repo = cachedRepository{mirrorReader{s.mgr}}
	case ModeDirect:
		mem := localstore.NewMemoryStore()
		s.mgr = syncer.NewManager(cfg, mem, pending.NewQueue(mem), deps.Remote, deps.Monitor, deps.Logger)
		s.repo = directRepository{mirrorReader{s.mgr}}
	default:
		return nil, fmt.Errorf("NewSession: unknown mode %q", opts.Mode)
	}
	return s, nil
}

func (s *Session) Mode() Mode { return s.opts.Mode }

func (s *Session) UserID() string { return s.opts.UserID }

// Manager exposes sync controls such as Status and DropHead.
func (s *Session) Manager() *syncer.Manager { return s.mgr }

// Start runs the sync manager loop until Close.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan error, 1)
	go func() { s.done <- s.mgr.Run(ctx) }()
	s.log.Info().Str("mode", string(s.opts.Mode)).Msg("session started")
}

// Close stops mirroring and releases the remote subscriptions. A drain in
// progress finishes its current action first.
func (s *Session) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	err := <-done
	s.log.Info().Msg("session closed")
	return err
}

// Transactions returns all transactions, newest first.
func (s *Session) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	txns, err := s.repo.Transactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("Transactions: %w", err)
	}
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].Date.After(txns[j].Date) })
	return txns, nil
}

func (s *Session) Budgets(ctx context.Context) ([]domain.Budget, error) {
	b, err := s.repo.Budgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("Budgets: %w", err)
	}
	return b, nil
}

func (s *Session) Goals(ctx context.Context) ([]domain.SavingsGoal, error) {
	g, err := s.repo.Goals(ctx)
	if err != nil {
		return nil, fmt.Errorf("Goals: %w", err)
	}
	return g, nil
}

// Categories returns the category list ordered by name.
func (s *Session) Categories(ctx context.Context) ([]domain.Category, error) {
	c, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("Categories: %w", err)
	}
	sort.SliceStable(c, func(i, j int) bool { return strings.ToLower(c[i].Name) < strings.ToLower(c[j].Name) })
	return c, nil
}

// Snapshot reads every collection for the derived-state engine.
func (s *Session) Snapshot(ctx context.Context) (analytics.Input, error) {
	var in analytics.Input
	var err error
	if in.Transactions, err = s.Transactions(ctx); err != nil {
		return in, err
	}
	if in.Budgets, err = s.Budgets(ctx); err != nil {
		return in, err
	}
	if in.Goals, err = s.Goals(ctx); err != nil {
		return in, err
	}
	return in, nil
}

// Dashboard computes derived state from the current collections.
func (s *Session) Dashboard(ctx context.Context, now time.Time) (analytics.Derived, error) {
	in, err := s.Snapshot(ctx)
	if err != nil {
		return analytics.Derived{}, fmt.Errorf("Dashboard: %w", err)
	}
	return analytics.Compute(in, now), nil
}

func (s *Session) apply(ctx context.Context, kind pending.Kind, payload any) error {
	a, err := pending.NewAction(kind, s.opts.UserID, payload)
	if err != nil {
		return err
	}
	return s.repo.Apply(ctx, a)
}

// AddTransaction stores a new transaction, assigning an id when missing.
func (s *Session) AddTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := t.Validate(); err != nil {
		return domain.Transaction{}, fmt.Errorf("AddTransaction: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.apply(ctx, pending.AddTransaction, t); err != nil {
		return domain.Transaction{}, fmt.Errorf("AddTransaction: %w", err)
	}
	return t, nil
}

// UpdateTransaction replaces an existing transaction.
func (s *Session) UpdateTransaction(ctx context.Context, t domain.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("UpdateTransaction: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.findTransaction(ctx, t.ID); err != nil {
		return fmt.Errorf("UpdateTransaction: %w", err)
	}
	if err := s.apply(ctx, pending.UpdateTransaction, t); err != nil {
		return fmt.Errorf("UpdateTransaction: %w", err)
	}
	return nil
}

// DeleteTransaction removes a transaction. Unknown ids are deleted anyway so
// a stale client view cannot resurrect a record.
func (s *Session) DeleteTransaction(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("DeleteTransaction: %w", domain.ErrMissingID)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	t, err := s.findTransaction(ctx, id)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		t = domain.Transaction{ID: id}
	} else if err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	if err := s.apply(ctx, pending.DeleteTransaction, t); err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	return nil
}

func (s *Session) findTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	txns, err := s.repo.Transactions(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	for _, t := range txns {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
}

// AddSavingsGoal creates a goal with no progress.
func (s *Session) AddSavingsGoal(ctx context.Context, g domain.SavingsGoal) (domain.SavingsGoal, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CurrentAmount = decimal.Zero
	if err := g.Validate(); err != nil {
		return domain.SavingsGoal{}, fmt.Errorf("AddSavingsGoal: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.apply(ctx, pending.AddGoal, g); err != nil {
		return domain.SavingsGoal{}, fmt.Errorf("AddSavingsGoal: %w", err)
	}
	return g, nil
}

// AddToSavings contributes a positive amount to a goal.
func (s *Session) AddToSavings(ctx context.Context, id string, amount decimal.Decimal) (domain.SavingsGoal, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	g, err := s.findGoal(ctx, id)
	if err != nil {
		return domain.SavingsGoal{}, fmt.Errorf("AddToSavings: %w", err)
	}
	updated, err := g.Contribute(amount)
	if err != nil {
		return domain.SavingsGoal{}, fmt.Errorf("AddToSavings: %w", err)
	}
	if err := s.apply(ctx, pending.UpdateGoal, updated); err != nil {
		return domain.SavingsGoal{}, fmt.Errorf("AddToSavings: %w", err)
	}
	return updated, nil
}

func (s *Session) DeleteSavingsGoal(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("DeleteSavingsGoal: %w", domain.ErrMissingID)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	g, err := s.findGoal(ctx, id)
	if errors.Is(err, domain.ErrGoalNotFound) {
		g = domain.SavingsGoal{ID: id}
	} else if err != nil {
		return fmt.Errorf("DeleteSavingsGoal: %w", err)
	}
	if err := s.apply(ctx, pending.DeleteGoal, g); err != nil {
		return fmt.Errorf("DeleteSavingsGoal: %w", err)
	}
	return nil
}

func (s *Session) findGoal(ctx context.Context, id string) (domain.SavingsGoal, error) {
	goals, err := s.repo.Goals(ctx)
	if err != nil {
		return domain.SavingsGoal{}, err
	}
	for _, g := range goals {
		if g.ID == id {
			return g, nil
		}
	}
	return domain.SavingsGoal{}, fmt.Errorf("%w: %s", domain.ErrGoalNotFound, id)
}

// UpdateBudget sets the monthly limit of a category. A limit of -1 deletes
// the budget.
func (s *Session) UpdateBudget(ctx context.Context, category string, limit decimal.Decimal) error {
	b := domain.Budget{Category: strings.TrimSpace(category), Limit: limit}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("UpdateBudget: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.apply(ctx, pending.UpdateBudget, b); err != nil {
		return fmt.Errorf("UpdateBudget: %w", err)
	}
	return nil
}

func (s *Session) DeleteBudget(ctx context.Context, category string) error {
	return s.UpdateBudget(ctx, category, domain.BudgetDeleteSentinel)
}

// AddCategory appends a category with a unique name.
func (s *Session) AddCategory(ctx context.Context, name, icon, color string) (domain.Category, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Category{}, fmt.Errorf("AddCategory: %w", domain.ErrEmptyName)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	list, err := s.repo.Categories(ctx)
	if err != nil {
		return domain.Category{}, fmt.Errorf("AddCategory: %w", err)
	}
	if domain.HasCategory(list, name) {
		return domain.Category{}, fmt.Errorf("AddCategory: %w: %s", domain.ErrDuplicateCategory, name)
	}
	c := domain.NewCategory(name, icon, color)
	if err := s.apply(ctx, pending.ReplaceCategories, append(list, c)); err != nil {
		return domain.Category{}, fmt.Errorf("AddCategory: %w", err)
	}
	return c, nil
}

// DeleteCategory removes a category from the list. Transactions and budgets
// that name it are left untouched.
func (s *Session) DeleteCategory(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	list, err := s.repo.Categories(ctx)
	if err != nil {
		return fmt.Errorf("DeleteCategory: %w", err)
	}
	kept := make([]domain.Category, 0, len(list))
	for _, c := range list {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(list) {
		return fmt.Errorf("DeleteCategory: %w: %s", domain.ErrCategoryNotFound, id)
	}
	if err := s.apply(ctx, pending.ReplaceCategories, kept); err != nil {
		return fmt.Errorf("DeleteCategory: %w", err)
	}
	return nil
}

// ReplaceCategories swaps the whole list. Names must be unique.
func (s *Session) ReplaceCategories(ctx context.Context, list []domain.Category) error {
	seen := make([]domain.Category, 0, len(list))
	for _, c := range list {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("ReplaceCategories: %w", domain.ErrEmptyName)
		}
		if domain.HasCategory(seen, c.Name) {
			return fmt.Errorf("ReplaceCategories: %w: %s", domain.ErrDuplicateCategory, c.Name)
		}
		if c.ID == "" {
			c.ID = domain.CategoryID(c.Name)
		}
		seen = append(seen, c)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.apply(ctx, pending.ReplaceCategories, seen); err != nil {
		return fmt.Errorf("ReplaceCategories: %w", err)
	}
	return nil
}
