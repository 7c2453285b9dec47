// Package pending implements the persisted FIFO log of mutations that the
// remote store has not yet acknowledged.
package pending

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/budgetsync/internal/localstore"
	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("pending action not found")
	ErrEmpty     = errors.New("pending queue is empty")
	ErrMalformed = errors.New("malformed pending action")
)

// Queue is built on the local durable store: pending actions live in the
// pending_actions collection and dead letters in dead_letters.
type Queue struct {
	actions *localstore.Collection[Action]
	dead    *localstore.Collection[DeadLetter]

	mu          sync.Mutex
	loaded      bool
	lastID      int64
	lastCreated time.Time
	now         func() time.Time
}

// NewQueue creates a queue backed by store.
func NewQueue(store localstore.Store) *Queue {
	return &Queue{
		actions: localstore.NewCollection(store, localstore.PendingActions, func(a Action) string { return actionKey(a.ID) }),
		dead:    localstore.NewCollection(store, localstore.DeadLetters, func(d DeadLetter) string { return d.DeadID }),
		now:     time.Now,
	}
}

// keys sort lexically in ID order
func actionKey(id int64) string {
	return fmt.Sprintf("%020d", id)
}

// load recovers the last assigned id and timestamp after a restart.
func (q *Queue) load(ctx context.Context) error {
	if q.loaded {
		return nil
	}
	all, err := q.actions.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	for _, a := range all {
		if a.ID > q.lastID {
			q.lastID = a.ID
		}
		if a.CreatedAt.After(q.lastCreated) {
			q.lastCreated = a.CreatedAt
		}
	}
	q.loaded = true
	return nil
}

// Enqueue assigns an id and creation time to a and persists it. It returns
// once the action is durable. Creation times never go backwards, so FIFO
// order holds even if the wall clock is adjusted.
func (q *Queue) Enqueue(ctx context.Context, a *Action) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.load(ctx); err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}

	created := q.now()
	if !created.After(q.lastCreated) {
		created = q.lastCreated.Add(time.Nanosecond)
	}

	a.ID = q.lastID + 1
	a.CreatedAt = created
	if err := q.actions.Put(ctx, *a); err != nil {
		return fmt.Errorf("Enqueue: persist action: %w", err)
	}
	q.lastID = a.ID
	q.lastCreated = created
	return nil
}

// PeekAllOrdered returns all pending actions, oldest first.
func (q *Queue) PeekAllOrdered(ctx context.Context) ([]Action, error) {
	all, err := q.actions.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("PeekAllOrdered: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all, nil
}

// Head returns the oldest pending action or ErrEmpty.
func (q *Queue) Head(ctx context.Context) (Action, error) {
	all, err := q.PeekAllOrdered(ctx)
	if err != nil {
		return Action{}, err
	}
	if len(all) == 0 {
		return Action{}, ErrEmpty
	}
	return all[0], nil
}

// Len returns the number of pending actions.
func (q *Queue) Len(ctx context.Context) (int, error) {
	all, err := q.actions.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("Len: %w", err)
	}
	return len(all), nil
}

// Remove deletes an acknowledged action.
func (q *Queue) Remove(ctx context.Context, id int64) error {
	if err := q.actions.Delete(ctx, actionKey(id)); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	return nil
}

func (q *Queue) find(ctx context.Context, id int64) (Action, error) {
	all, err := q.actions.GetAll(ctx)
	if err != nil {
		return Action{}, err
	}
	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}
	return Action{}, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// MarkFailed records a failed attempt on the action without moving it.
func (q *Queue) MarkFailed(ctx context.Context, id int64, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, err := q.find(ctx, id)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	a.Attempts++
	if cause != nil {
		a.LastError = cause.Error()
	}
	if err := q.actions.Put(ctx, a); err != nil {
		return fmt.Errorf("MarkFailed: persist: %w", err)
	}
	return nil
}

// DeadLetter moves the action out of the queue so later actions can proceed.
func (q *Queue) DeadLetter(ctx context.Context, id int64, reason string) (DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, err := q.find(ctx, id)
	if err != nil {
		return DeadLetter{}, fmt.Errorf("DeadLetter: %w", err)
	}
	dl := DeadLetter{
		DeadID: uuid.New().String(),
		Action: a,
		Reason: reason,
		DeadAt: q.now(),
	}
	if err := q.dead.Put(ctx, dl); err != nil {
		return DeadLetter{}, fmt.Errorf("DeadLetter: persist dead letter: %w", err)
	}
	if err := q.actions.Delete(ctx, actionKey(id)); err != nil {
		return DeadLetter{}, fmt.Errorf("DeadLetter: remove action: %w", err)
	}
	return dl, nil
}

// DropHead dead-letters the oldest pending action. This is the manual
// recovery path for a stuck queue.
func (q *Queue) DropHead(ctx context.Context, reason string) (DeadLetter, error) {
	head, err := q.Head(ctx)
	if err != nil {
		return DeadLetter{}, fmt.Errorf("DropHead: %w", err)
	}
	return q.DeadLetter(ctx, head.ID, reason)
}

// ListDeadLetters returns dead letters, oldest first.
func (q *Queue) ListDeadLetters(ctx context.Context) ([]DeadLetter, error) {
	all, err := q.dead.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListDeadLetters: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].DeadAt.Before(all[j].DeadAt) })
	return all, nil
}

func (q *Queue) findDead(ctx context.Context, deadID string) (DeadLetter, error) {
	all, err := q.dead.GetAll(ctx)
	if err != nil {
		return DeadLetter{}, err
	}
	for _, d := range all {
		if d.DeadID == deadID {
			return d, nil
		}
	}
	return DeadLetter{}, fmt.Errorf("%w: dead letter %s", ErrNotFound, deadID)
}

// Requeue appends a dead-lettered action to the tail of the queue with a new
// id and creation time, then removes the dead letter.
func (q *Queue) Requeue(ctx context.Context, deadID string) (Action, error) {
	dl, err := q.findDead(ctx, deadID)
	if err != nil {
		return Action{}, fmt.Errorf("Requeue: %w", err)
	}

	a := dl.Action
	a.Attempts = 0
	a.LastError = ""
	if err := q.Enqueue(ctx, &a); err != nil {
		return Action{}, fmt.Errorf("Requeue: %w", err)
	}
	if err := q.dead.Delete(ctx, deadID); err != nil {
		return Action{}, fmt.Errorf("Requeue: remove dead letter: %w", err)
	}
	return a, nil
}

// PurgeDeadLetter permanently discards a dead letter.
func (q *Queue) PurgeDeadLetter(ctx context.Context, deadID string) error {
	if _, err := q.findDead(ctx, deadID); err != nil {
		return fmt.Errorf("PurgeDeadLetter: %w", err)
	}
	if err := q.dead.Delete(ctx, deadID); err != nil {
		return fmt.Errorf("PurgeDeadLetter: %w", err)
	}
	return nil
}
