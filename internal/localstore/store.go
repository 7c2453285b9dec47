// Package localstore is the on-device, per-collection key/value store that
// backs cache-through mode and the pending action queue.
package localstore

import (
	"context"
	"errors"
)

// Collection names. Each maps to one table on disk.
const (
	Transactions   = "transactions"
	Budgets        = "budgets"
	SavingsGoals   = "savings_goals"
	Categories     = "categories"
	PendingActions = "pending_actions"
	DeadLetters    = "dead_letters"
)

// AllCollections lists every collection the store knows about.
var AllCollections = []string{Transactions, Budgets, SavingsGoals, Categories, PendingActions, DeadLetters}

var ErrUnknownCollection = errors.New("unknown collection")

// Record is one keyed entry. Data holds the JSON encoding of the entity.
type Record struct {
	Key  string
	Data []byte
}

// Store is a keyed persistent store with one namespace per collection.
//
// Operations issued before the store is ready block until it is ready or the
// context is done.
type Store interface {
	// GetAll returns every record of the collection ordered by key.
	GetAll(ctx context.Context, collection string) ([]Record, error)

	// Put inserts or replaces the record with rec.Key.
	Put(ctx context.Context, collection string, rec Record) error

	// Delete removes the record with key. Missing keys are not an error.
	Delete(ctx context.Context, collection, key string) error

	// Clear removes every record of the collection.
	Clear(ctx context.Context, collection string) error

	// ReplaceAll clears the collection and writes recs in one step; readers
	// never observe the cleared intermediate state.
	ReplaceAll(ctx context.Context, collection string, recs []Record) error

	// Ready is closed once the store can serve requests.
	Ready() <-chan struct{}

	Close() error
}

func knownCollection(name string) bool {
	for _, c := range AllCollections {
		if c == name {
			return true
		}
	}
	return false
}
