package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/dvloznov/budgetsync/internal/localstore"
	"github.com/dvloznov/budgetsync/internal/pending"
	"github.com/dvloznov/budgetsync/internal/remote"
	"github.com/rs/zerolog"
)

// Collections lists the remote collections a session subscribes to.
var Collections = []string{remote.Transactions, remote.Budgets, remote.SavingsGoals, remote.Settings}

// localCollection maps a remote collection to its local mirror.
func localCollection(remoteColl string) (string, error) {
	switch remoteColl {
	case remote.Transactions:
		return localstore.Transactions, nil
	case remote.Budgets:
		return localstore.Budgets, nil
	case remote.SavingsGoals:
		return localstore.SavingsGoals, nil
	case remote.Settings:
		return localstore.Categories, nil
	}
	return "", fmt.Errorf("%w: remote %q", localstore.ErrUnknownCollection, remoteColl)
}

// applyLocal applies the effect of a to the local store. Caller holds drainMu.
func (m *Manager) applyLocal(ctx context.Context, a pending.Action) error {
	coll, key, err := a.Target()
	if err != nil {
		return err
	}
	if key == "" {
		var list []domain.Category
		if err := a.Decode(&list); err != nil {
			return err
		}
		return m.entities.Categories.ReplaceAll(ctx, list)
	}
	if a.IsDelete() {
		return m.local.Delete(ctx, coll, key)
	}
	return m.local.Put(ctx, coll, localstore.Record{Key: key, Data: a.Payload})
}

// Mirror replaces the local collection with snap. Entities that still have
// pending actions keep their optimistic state: the queued actions are
// replayed over the snapshot before it is written.
func (m *Manager) Mirror(ctx context.Context, snap remote.Snapshot) error {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	return m.mirror(ctx, snap)
}

func (m *Manager) mirror(ctx context.Context, snap remote.Snapshot) error {
	coll, err := localCollection(snap.Collection)
	if err != nil {
		return fmt.Errorf("Mirror: %w", err)
	}

	recs := m.snapshotRecords(snap)

	actions, err := m.queue.PeekAllOrdered(ctx)
	if err != nil {
		return fmt.Errorf("Mirror: %w", err)
	}
	overlaid := 0
	for _, a := range actions {
		target, key, err := a.Target()
		if err != nil || target != coll {
			continue
		}
		overlaid++
		switch {
		case key == "":
			var list []domain.Category
			if err := a.Decode(&list); err != nil {
				continue
			}
			recs = encodeAll(m.entities.Categories, list)
		case a.IsDelete():
			delete(recs, key)
		default:
			recs[key] = a.Payload
		}
	}

	out := make([]localstore.Record, 0, len(recs))
	for k, v := range recs {
		out = append(out, localstore.Record{Key: k, Data: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	if err := m.local.ReplaceAll(ctx, coll, out); err != nil {
		return fmt.Errorf("Mirror: replace %s: %w", coll, err)
	}
	m.log.Debug().Str("collection", coll).Int("records", len(out)).Int("overlaid", overlaid).Msg("mirrored snapshot")
	return nil
}

// snapshotRecords decodes remote documents and re-keys them with the local
// keying scheme. Undecodable documents are skipped.
func (m *Manager) snapshotRecords(snap remote.Snapshot) map[string][]byte {
	log := m.log.With().Str("collection", snap.Collection).Logger()
	switch snap.Collection {
	case remote.Transactions:
		return decodeDocs(m.entities.Transactions, snap.Docs, log)
	case remote.Budgets:
		return decodeDocs(m.entities.Budgets, snap.Docs, log)
	case remote.SavingsGoals:
		return decodeDocs(m.entities.Goals, snap.Docs, log)
	case remote.Settings:
		for _, d := range snap.Docs {
			if d.Key != remote.CategoriesDoc {
				continue
			}
			var doc remote.CategoryList[domain.Category]
			if err := json.Unmarshal(d.Data, &doc); err != nil {
				log.Warn().Err(err).Msg("skip undecodable category list")
				break
			}
			return encodeAll(m.entities.Categories, doc.List)
		}
	}
	return make(map[string][]byte)
}

func decodeDocs[T any](c *localstore.Collection[T], docs []remote.Document, log zerolog.Logger) map[string][]byte {
	out := make(map[string][]byte, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Data, &v); err != nil {
			log.Warn().Err(err).Str("key", d.Key).Msg("skip undecodable document")
			continue
		}
		rec, err := c.Encode(v)
		if err != nil || rec.Key == "" {
			log.Warn().Err(err).Str("key", d.Key).Msg("skip document without key")
			continue
		}
		out[rec.Key] = rec.Data
	}
	return out
}

func encodeAll[T any](c *localstore.Collection[T], items []T) map[string][]byte {
	out := make(map[string][]byte, len(items))
	for _, v := range items {
		rec, err := c.Encode(v)
		if err != nil {
			continue
		}
		out[rec.Key] = rec.Data
	}
	return out
}

// Refresh lists every remote collection once and mirrors it. It is the bulk
// load for one-shot callers that do not run subscriptions.
func (m *Manager) Refresh(ctx context.Context) error {
	for _, coll := range Collections {
		docs, err := m.remote.List(ctx, m.cfg.UserID, coll)
		if err != nil {
			return fmt.Errorf("Refresh: %w", err)
		}
		if err := m.handleSnapshot(ctx, remote.Snapshot{Collection: coll, Docs: docs}); err != nil {
			return fmt.Errorf("Refresh: %w", err)
		}
	}
	return nil
}

// handleSnapshot seeds defaults on the first empty snapshot of an account,
// then mirrors.
func (m *Manager) handleSnapshot(ctx context.Context, snap remote.Snapshot) error {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	seeded, err := m.seedIfEmpty(ctx, snap)
	if err != nil {
		m.log.Warn().Err(err).Str("collection", snap.Collection).Msg("seed defaults failed")
	}
	if err := m.mirror(ctx, snap); err != nil {
		return err
	}
	if seeded {
		m.RequestDrain()
	}
	return nil
}

// seedIfEmpty queues the default budgets or categories the first time an
// empty snapshot arrives, unless local writes to that collection are
// already pending. Caller holds drainMu.
func (m *Manager) seedIfEmpty(ctx context.Context, snap remote.Snapshot) (bool, error) {
	if !m.cfg.SeedDefaults {
		return false, nil
	}
	if snap.Collection != remote.Budgets && snap.Collection != remote.Settings {
		return false, nil
	}

	m.mu.Lock()
	first := !m.seen[snap.Collection]
	m.seen[snap.Collection] = true
	m.mu.Unlock()
	if !first || len(m.snapshotRecords(snap)) > 0 {
		return false, nil
	}

	coll, _ := localCollection(snap.Collection)
	actions, err := m.queue.PeekAllOrdered(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range actions {
		if target, _, err := a.Target(); err == nil && target == coll {
			return false, nil
		}
	}

	var seeds []*pending.Action
	if snap.Collection == remote.Budgets {
		for _, b := range domain.DefaultBudgets() {
			a, err := pending.NewAction(pending.UpdateBudget, m.cfg.UserID, b)
			if err != nil {
				return false, err
			}
			seeds = append(seeds, a)
		}
	} else {
		a, err := pending.NewAction(pending.ReplaceCategories, m.cfg.UserID, domain.DefaultCategories())
		if err != nil {
			return false, err
		}
		seeds = append(seeds, a)
	}

	for _, a := range seeds {
		if err := m.queue.Enqueue(ctx, a); err != nil {
			return false, err
		}
	}
	m.log.Info().Str("collection", snap.Collection).Int("actions", len(seeds)).Msg("seeded defaults for new account")
	return true, nil
}
