// Package dataaccess is the facade the presentation layer talks to. It
// picks, once per session, whether reads come from the local durable store
// and writes go through the pending queue (cache-through), or everything goes
// straight to the remote store (direct).
package dataaccess

import (
	"context"
	"fmt"

	"github.com/dvloznov/budgetsync/internal/config"
	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/dvloznov/budgetsync/internal/pending"
	"github.com/dvloznov/budgetsync/internal/syncer"
)

type Mode string

const (
	ModeCacheThrough Mode = "cache"
	ModeDirect       Mode = "direct"
)

// SelectMode resolves the configured mode. "auto" picks cache-through for an
// installed app and direct for a browser tab.
func SelectMode(cfg *config.Config) Mode {
	switch cfg.Mode {
	case string(ModeCacheThrough):
		return ModeCacheThrough
	case string(ModeDirect):
		return ModeDirect
	}
	if cfg.Installed {
		return ModeCacheThrough
	}
	return ModeDirect
}

// Repository serves entity collections and accepts mutations. Both
// implementations read through the same keyed collections, so callers see
// identical data in either mode.
type Repository interface {
	Transactions(ctx context.Context) ([]domain.Transaction, error)
	Budgets(ctx context.Context) ([]domain.Budget, error)
	Goals(ctx context.Context) ([]domain.SavingsGoal, error)
	Categories(ctx context.Context) ([]domain.Category, error)

	// Apply performs a mutation described as a full-state action.
	Apply(ctx context.Context, a *pending.Action) error
}

// mirrorReader reads the collections a sync manager mirrors into.
type mirrorReader struct {
	mgr *syncer.Manager
}

func (r mirrorReader) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	return r.mgr.Entities().Transactions.GetAll(ctx)
}

func (r mirrorReader) Budgets(ctx context.Context) ([]domain.Budget, error) {
	return r.mgr.Entities().Budgets.GetAll(ctx)
}

func (r mirrorReader) Goals(ctx context.Context) ([]domain.SavingsGoal, error) {
	return r.mgr.Entities().Goals.GetAll(ctx)
}

func (r mirrorReader) Categories(ctx context.Context) ([]domain.Category, error) {
	return r.mgr.Entities().Categories.GetAll(ctx)
}

// cachedRepository writes optimistically: the local store and the queue are
// updated before the remote store is contacted.
type cachedRepository struct {
	mirrorReader
}

func (r cachedRepository) Apply(ctx context.Context, a *pending.Action) error {
	return r.mgr.Submit(ctx, a)
}

// directRepository resolves writes only after the remote store acknowledged
// them. Its mirror is an in-memory store fed by live subscriptions.
type directRepository struct {
	mirrorReader
}

func (r directRepository) Apply(ctx context.Context, a *pending.Action) error {
	if err := r.mgr.Execute(ctx, a); err != nil {
		return fmt.Errorf("direct write: %w", err)
	}
	return nil
}
