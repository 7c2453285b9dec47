// Package syncer replays the pending action queue against the remote store
// and mirrors remote snapshots into the local store.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/budgetsync/internal/connectivity"
	"github.com/dvloznov/budgetsync/internal/localstore"
	"github.com/dvloznov/budgetsync/internal/pending"
	"github.com/dvloznov/budgetsync/internal/remote"
	"github.com/rs/zerolog"
)

// Config holds per-session settings of a Manager.
type Config struct {
	UserID string

	// SeedDefaults writes the default categories and budgets when the first
	// snapshot of an account shows none.
	SeedDefaults bool
}

// Manager coordinates one user's local store, pending queue and remote
// store. Drains, local applies and mirroring are serialized by drainMu.
type Manager struct {
	cfg      Config
	local    localstore.Store
	entities *localstore.Entities
	queue    *pending.Queue
	remote   remote.DocumentStore
	monitor  *connectivity.Monitor
	log      zerolog.Logger

	drainMu  sync.Mutex
	drainReq chan struct{}

	mu        sync.Mutex
	seen      map[string]bool
	lastDrain time.Time
	lastError string
}

func NewManager(cfg Config, local localstore.Store, queue *pending.Queue, rs remote.DocumentStore, mon *connectivity.Monitor, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		local:    local,
		entities: localstore.NewEntities(local),
		queue:    queue,
		remote:   rs,
		monitor:  mon,
		log:      log.With().Str("component", "syncer").Str("user_id", cfg.UserID).Logger(),
		drainReq: make(chan struct{}, 1),
		seen:     make(map[string]bool),
	}
}

// Entities exposes the typed local collections the manager mirrors into.
func (m *Manager) Entities() *localstore.Entities { return m.entities }

// Queue returns the pending action queue.
func (m *Manager) Queue() *pending.Queue { return m.queue }

// Submit records an optimistic mutation: the action is persisted in the
// queue, applied to the local store, and drained right away when online.
//
// Network failures are never returned; the action stays queued for the
// next trigger. If the remote store rejects this action, Submit returns a
// *RejectedError. The local state keeps the optimistic write either way.
func (m *Manager) Submit(ctx context.Context, a *pending.Action) error {
	if a.UserID == "" {
		a.UserID = m.cfg.UserID
	}
	if _, _, err := a.Target(); err != nil {
		return fmt.Errorf("Submit: %w", err)
	}

	if err := m.record(ctx, a); err != nil {
		return fmt.Errorf("Submit: %w", err)
	}

	if !m.monitor.Online() {
		m.log.Debug().Int64("action_id", a.ID).Str("type", string(a.Kind)).Msg("offline, action queued")
		return nil
	}

	res, err := m.Drain(ctx)
	if err == nil {
		return nil
	}
	if res.rejected(a.ID) {
		return &RejectedError{Action: *a, Err: err}
	}
	return nil
}

// record enqueues a and applies it locally as one step with respect to
// mirroring.
func (m *Manager) record(ctx context.Context, a *pending.Action) error {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	if err := m.queue.Enqueue(ctx, a); err != nil {
		return err
	}
	if err := m.applyLocal(ctx, *a); err != nil {
		// the overlay on the next snapshot restores the optimistic state
		m.log.Warn().Err(err).Int64("action_id", a.ID).Msg("apply action to local store failed")
	}
	return nil
}

// Execute applies a to the remote store without queueing and mirrors the
// result locally once the remote store acknowledged it. Direct mode uses
// this path.
func (m *Manager) Execute(ctx context.Context, a *pending.Action) error {
	if a.UserID == "" {
		a.UserID = m.cfg.UserID
	}
	if err := m.applyRemote(ctx, *a); err != nil {
		return fmt.Errorf("Execute: %w", err)
	}

	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	if err := m.applyLocal(ctx, *a); err != nil {
		return fmt.Errorf("Execute: %w", err)
	}
	return nil
}

// RequestDrain asks the Run loop for a drain. Requests coalesce.
func (m *Manager) RequestDrain() {
	select {
	case m.drainReq <- struct{}{}:
	default:
	}
}

// Status is a point-in-time view of sync health.
type Status struct {
	UserID      string          `json:"userId"`
	Online      bool            `json:"online"`
	Pending     int             `json:"pending"`
	Head        *pending.Action `json:"head,omitempty"`
	DeadLetters int             `json:"deadLetters"`
	LastDrain   time.Time       `json:"lastDrain,omitzero"`
	LastError   string          `json:"lastError,omitempty"`
}

func (m *Manager) Status(ctx context.Context) (Status, error) {
	actions, err := m.queue.PeekAllOrdered(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("Status: %w", err)
	}
	dead, err := m.queue.ListDeadLetters(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("Status: %w", err)
	}

	st := Status{
		UserID:      m.cfg.UserID,
		Online:      m.monitor.Online(),
		Pending:     len(actions),
		DeadLetters: len(dead),
	}
	if len(actions) > 0 {
		head := actions[0]
		st.Head = &head
	}

	m.mu.Lock()
	st.LastDrain = m.lastDrain
	st.LastError = m.lastError
	m.mu.Unlock()
	return st, nil
}

// DropHead dead-letters the head of a stuck queue and schedules a drain of
// the rest.
func (m *Manager) DropHead(ctx context.Context, reason string) (pending.DeadLetter, error) {
	m.drainMu.Lock()
	dl, err := m.queue.DropHead(ctx, reason)
	m.drainMu.Unlock()
	if err != nil {
		return pending.DeadLetter{}, fmt.Errorf("DropHead: %w", err)
	}
	m.log.Warn().Int64("action_id", dl.Action.ID).Str("type", string(dl.Action.Kind)).Str("reason", reason).Msg("dropped head of queue")
	m.RequestDrain()
	return dl, nil
}

// Requeue appends a dead-lettered action to the tail of the queue.
func (m *Manager) Requeue(ctx context.Context, deadID string) (pending.Action, error) {
	m.drainMu.Lock()
	a, err := m.queue.Requeue(ctx, deadID)
	if err == nil {
		if lerr := m.applyLocal(ctx, a); lerr != nil {
			m.log.Warn().Err(lerr).Int64("action_id", a.ID).Msg("apply requeued action to local store failed")
		}
	}
	m.drainMu.Unlock()
	if err != nil {
		return pending.Action{}, fmt.Errorf("Requeue: %w", err)
	}
	m.RequestDrain()
	return a, nil
}

func (m *Manager) DeadLetters(ctx context.Context) ([]pending.DeadLetter, error) {
	return m.queue.ListDeadLetters(ctx)
}
