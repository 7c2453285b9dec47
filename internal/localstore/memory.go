package localstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps everything in process memory. It is the fallback when no
// persistent storage is available and the store used by direct mode.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]map[string][]byte
	ready chan struct{}
}

// NewMemoryStore returns a store that is ready immediately.
func NewMemoryStore() *MemoryStore {
	ready := make(chan struct{})
	close(ready)
	return &MemoryStore{
		data:  make(map[string]map[string][]byte),
		ready: ready,
	}
}

func (m *MemoryStore) GetAll(ctx context.Context, collection string) ([]Record, error) {
	if !knownCollection(collection) {
		return nil, fmt.Errorf("GetAll: %w: %s", ErrUnknownCollection, collection)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	coll := m.data[collection]
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, Record{Key: k, Data: append([]byte(nil), coll[k]...)})
	}
	return out, nil
}

func (m *MemoryStore) Put(ctx context.Context, collection string, rec Record) error {
	if !knownCollection(collection) {
		return fmt.Errorf("Put: %w: %s", ErrUnknownCollection, collection)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.data[collection]
	if !ok {
		coll = make(map[string][]byte)
		m.data[collection] = coll
	}
	coll[rec.Key] = append([]byte(nil), rec.Data...)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	if !knownCollection(collection) {
		return fmt.Errorf("Delete: %w: %s", ErrUnknownCollection, collection)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data[collection], key)
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context, collection string) error {
	if !knownCollection(collection) {
		return fmt.Errorf("Clear: %w: %s", ErrUnknownCollection, collection)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, collection)
	return nil
}

func (m *MemoryStore) ReplaceAll(ctx context.Context, collection string, recs []Record) error {
	if !knownCollection(collection) {
		return fmt.Errorf("ReplaceAll: %w: %s", ErrUnknownCollection, collection)
	}
	fresh := make(map[string][]byte, len(recs))
	for _, r := range recs {
		fresh[r.Key] = append([]byte(nil), r.Data...)
	}

	m.mu.Lock()
	m.data[collection] = fresh
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Ready() <-chan struct{} { return m.ready }

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
