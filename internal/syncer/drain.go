package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/dvloznov/budgetsync/internal/pending"
	"github.com/dvloznov/budgetsync/internal/remote"
	"github.com/rs/zerolog"
)

// actionTimeout bounds one remote write. It is detached from the caller's
// context so a started action always completes.
const actionTimeout = 30 * time.Second

// DrainResult summarizes one pass over the queue.
type DrainResult struct {
	Applied      int     `json:"applied"`
	DeadLettered []int64 `json:"deadLettered,omitempty"`

	// Blocked is the action the drain stopped at, if any. Remaining counts
	// it and everything behind it.
	Blocked   *pending.Action `json:"blocked,omitempty"`
	Remaining int             `json:"remaining"`

	// Rejected is set when the remote store refused Blocked. A network
	// failure leaves it false.
	Rejected bool `json:"rejected,omitempty"`
}

func (r DrainResult) rejected(id int64) bool {
	for _, d := range r.DeadLettered {
		if d == id {
			return true
		}
	}
	return r.Rejected && r.Blocked != nil && r.Blocked.ID == id
}

// Drain processes the queue strictly in order and stops at the first action
// the remote store does not acknowledge. Actions whose payload can never be
// applied are dead-lettered and skipped. The returned error is the failure
// of the blocking action.
func (m *Manager) Drain(ctx context.Context) (DrainResult, error) {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	res, err := m.drain(ctx)

	m.mu.Lock()
	m.lastDrain = time.Now()
	m.lastError = ""
	if err != nil {
		m.lastError = err.Error()
	}
	m.mu.Unlock()
	return res, err
}

func (m *Manager) drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult

	actions, err := m.queue.PeekAllOrdered(ctx)
	if err != nil {
		return res, fmt.Errorf("Drain: %w", err)
	}

	for i, a := range actions {
		if ctx.Err() != nil {
			// stop between actions, never during one
			res.Remaining = len(actions) - i
			return res, nil
		}
		log := m.log.With().Int64("action_id", a.ID).Str("type", string(a.Kind)).Logger()

		// The remote write and its queue bookkeeping share one detached
		// context: once started, an action is acknowledged or recorded.
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), actionTimeout)
		stop, err := m.settle(opCtx, a, &res, len(actions)-i, log)
		cancel()
		if stop {
			return res, err
		}
	}
	return res, nil
}

// settle applies one action remotely and updates the queue to match. It
// reports whether the drain must stop, and why.
func (m *Manager) settle(ctx context.Context, a pending.Action, res *DrainResult, remaining int, log zerolog.Logger) (bool, error) {
	err := m.applyRemote(ctx, a)
	switch {
	case err == nil:
		if err := m.queue.Remove(ctx, a.ID); err != nil {
			// the action is replayed later; full-state writes make that harmless
			return true, fmt.Errorf("Drain: remove acknowledged action %d: %w", a.ID, err)
		}
		res.Applied++
		log.Debug().Msg("action acknowledged")
		return false, nil

	case errors.Is(err, pending.ErrMalformed):
		if _, derr := m.queue.DeadLetter(ctx, a.ID, err.Error()); derr != nil {
			return true, fmt.Errorf("Drain: dead-letter action %d: %w", a.ID, derr)
		}
		res.DeadLettered = append(res.DeadLettered, a.ID)
		log.Error().Err(err).Msg("malformed action moved to dead letters")
		return false, nil
	}

	if merr := m.queue.MarkFailed(ctx, a.ID, err); merr != nil {
		log.Warn().Err(merr).Msg("record failed attempt")
	}
	blocked := a
	res.Blocked = &blocked
	res.Remaining = remaining
	if remote.IsTransient(err) {
		log.Warn().Err(err).Int("remaining", remaining).Msg("remote unavailable, drain paused")
	} else {
		res.Rejected = true
		log.Error().Err(err).Int("remaining", remaining).Msg("remote rejected action, queue blocked")
	}
	return true, fmt.Errorf("Drain: action %d: %w", a.ID, err)
}

// applyRemote performs the remote write an action stands for. Payload
// problems are reported as pending.ErrMalformed.
func (m *Manager) applyRemote(ctx context.Context, a pending.Action) error {
	user := a.UserID
	if user == "" {
		user = m.cfg.UserID
	}

	switch a.Kind {
	case pending.AddTransaction, pending.UpdateTransaction, pending.DeleteTransaction:
		var t domain.Transaction
		if err := a.Decode(&t); err != nil {
			return err
		}
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("%w: %v", pending.ErrMalformed, domain.ErrMissingID)
		}
		if a.Kind == pending.DeleteTransaction {
			return m.remote.Delete(ctx, user, remote.Transactions, t.ID)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: %v", pending.ErrMalformed, err)
		}
		if a.Kind == pending.UpdateTransaction {
			return m.remote.Update(ctx, user, remote.Transactions, t.ID, a.Payload)
		}
		return m.remote.Put(ctx, user, remote.Transactions, t.ID, a.Payload)

	case pending.AddGoal, pending.UpdateGoal, pending.DeleteGoal:
		var g domain.SavingsGoal
		if err := a.Decode(&g); err != nil {
			return err
		}
		if strings.TrimSpace(g.ID) == "" {
			return fmt.Errorf("%w: %v", pending.ErrMalformed, domain.ErrMissingID)
		}
		if a.Kind == pending.DeleteGoal {
			return m.remote.Delete(ctx, user, remote.SavingsGoals, g.ID)
		}
		if err := g.Validate(); err != nil {
			return fmt.Errorf("%w: %v", pending.ErrMalformed, err)
		}
		if a.Kind == pending.UpdateGoal {
			return m.remote.Update(ctx, user, remote.SavingsGoals, g.ID, a.Payload)
		}
		return m.remote.Put(ctx, user, remote.SavingsGoals, g.ID, a.Payload)

	case pending.UpdateBudget:
		var b domain.Budget
		if err := a.Decode(&b); err != nil {
			return err
		}
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%w: %v", pending.ErrMalformed, err)
		}
		if b.IsDeleteRequest() {
			return m.remote.Delete(ctx, user, remote.Budgets, b.Category)
		}
		return m.remote.Put(ctx, user, remote.Budgets, b.Category, a.Payload)

	case pending.ReplaceCategories:
		var list []domain.Category
		if err := a.Decode(&list); err != nil {
			return err
		}
		data, err := json.Marshal(remote.CategoryList[domain.Category]{List: list})
		if err != nil {
			return fmt.Errorf("%w: %v", pending.ErrMalformed, err)
		}
		return m.remote.Put(ctx, user, remote.Settings, remote.CategoriesDoc, data)
	}
	return fmt.Errorf("%w: unknown action type %q", pending.ErrMalformed, a.Kind)
}
