// Package remote defines the authoritative per-user document store the sync
// manager replays pending actions against, with in-memory and Cloud Storage
// backends.
package remote

import (
	"context"
	"encoding/json"
	"errors"
)

// Remote collections. Budgets are keyed by category name; the category list
// lives in a single settings document.
const (
	Transactions = "transactions"
	Budgets      = "budgets"
	SavingsGoals = "savings_goals"
	Settings     = "settings"

	CategoriesDoc = "categories"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("document changed concurrently")
	ErrRejected         = errors.New("request rejected by remote store")
	ErrUnavailable      = errors.New("remote store unavailable")
)

// IsTransient reports whether err is a network-class failure that the next
// drain trigger should retry. Everything else is a rejection.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// Document is one keyed JSON document.
type Document struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// Snapshot is the full current contents of one collection.
type Snapshot struct {
	Collection string
	Docs       []Document
}

// CategoryList is the body of the settings/categories document.
type CategoryList[T any] struct {
	List []T `json:"list"`
}

// DocumentStore is the remote collaborator. All documents are scoped by the
// owning user id.
type DocumentStore interface {
	// Put creates or replaces the document.
	Put(ctx context.Context, user, collection, key string, data []byte) error

	// Update replaces an existing document and fails with ErrNotFound when
	// there is nothing to replace.
	Update(ctx context.Context, user, collection, key string, data []byte) error

	// Delete removes the document. Deleting a missing document succeeds.
	Delete(ctx context.Context, user, collection, key string) error

	Get(ctx context.Context, user, collection, key string) ([]byte, error)
	List(ctx context.Context, user, collection string) ([]Document, error)

	// Subscribe emits the full snapshot once and again after every change.
	// Only the latest snapshot is buffered. The channel is closed when ctx
	// is done.
	Subscribe(ctx context.Context, user, collection string) (<-chan Snapshot, error)
}

// offer replaces any unread snapshot with snap. Callers serialize sends per
// channel.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
