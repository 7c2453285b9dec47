package localstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection is a typed view over one named collection. The key function is
// the single keying scheme for that collection; the read path and the sync
// mirror both go through it.
type Collection[T any] struct {
	store Store
	name  string
	key   func(T) string
}

// NewCollection binds a store, a collection name and a key function.
func NewCollection[T any](store Store, name string, key func(T) string) *Collection[T] {
	return &Collection[T]{store: store, name: name, key: key}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Key returns the key of v.
func (c *Collection[T]) Key(v T) string { return c.key(v) }

// Encode turns v into a record.
func (c *Collection[T]) Encode(v T) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s: %w", c.name, err)
	}
	return Record{Key: c.key(v), Data: data}, nil
}

// GetAll decodes every record of the collection.
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	recs, err := c.store.GetAll(ctx, c.name)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		var v T
		if err := json.Unmarshal(r.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", c.name, r.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Collection[T]) Put(ctx context.Context, v T) error {
	rec, err := c.Encode(v)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, c.name, rec)
}

func (c *Collection[T]) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.name, key)
}

func (c *Collection[T]) Clear(ctx context.Context) error {
	return c.store.Clear(ctx, c.name)
}

// ReplaceAll swaps the whole collection for items.
func (c *Collection[T]) ReplaceAll(ctx context.Context, items []T) error {
	recs := make([]Record, 0, len(items))
	for _, v := range items {
		rec, err := c.Encode(v)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	return c.store.ReplaceAll(ctx, c.name, recs)
}
