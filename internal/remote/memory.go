package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Op records one applied mutation of a MemoryStore.
type Op struct {
	Kind       string
	User       string
	Collection string
	Key        string
}

type subscription struct {
	user       string
	collection string
	ch         chan Snapshot
}

// MemoryStore is an in-process DocumentStore. It supports fault injection so
// tests can simulate going offline or a remote rejection.
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string]map[string]map[string][]byte
	online   bool
	failNext []error
	ops      []Op
	subs     map[*subscription]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]map[string]map[string][]byte),
		online: true,
		subs:   make(map[*subscription]struct{}),
	}
}

// SetOnline toggles reachability. While offline every call except Subscribe
// fails with ErrUnavailable.
func (m *MemoryStore) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = online
}

// FailNext makes the next mutating calls fail with errs, in order.
func (m *MemoryStore) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, errs...)
}

// Ops returns the mutations applied so far, in order.
func (m *MemoryStore) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Op, len(m.ops))
	copy(out, m.ops)
	return out
}

func (m *MemoryStore) check() error {
	if !m.online {
		return ErrUnavailable
	}
	return nil
}

func (m *MemoryStore) checkMutation() error {
	if err := m.check(); err != nil {
		return err
	}
	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		return err
	}
	return nil
}

func (m *MemoryStore) collection(user, coll string, create bool) map[string][]byte {
	byColl, ok := m.docs[user]
	if !ok {
		if !create {
			return nil
		}
		byColl = make(map[string]map[string][]byte)
		m.docs[user] = byColl
	}
	docs, ok := byColl[coll]
	if !ok && create {
		docs = make(map[string][]byte)
		byColl[coll] = docs
	}
	return docs
}

func (m *MemoryStore) Put(_ context.Context, user, coll, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutation(); err != nil {
		return fmt.Errorf("Put %s/%s: %w", coll, key, err)
	}
	m.collection(user, coll, true)[key] = append([]byte(nil), data...)
	m.ops = append(m.ops, Op{Kind: "put", User: user, Collection: coll, Key: key})
	m.notify(user, coll)
	return nil
}

func (m *MemoryStore) Update(_ context.Context, user, coll, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutation(); err != nil {
		return fmt.Errorf("Update %s/%s: %w", coll, key, err)
	}
	docs := m.collection(user, coll, false)
	if _, ok := docs[key]; !ok {
		return fmt.Errorf("Update %s/%s: %w", coll, key, ErrNotFound)
	}
	docs[key] = append([]byte(nil), data...)
	m.ops = append(m.ops, Op{Kind: "update", User: user, Collection: coll, Key: key})
	m.notify(user, coll)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, user, coll, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutation(); err != nil {
		return fmt.Errorf("Delete %s/%s: %w", coll, key, err)
	}
	if docs := m.collection(user, coll, false); docs != nil {
		delete(docs, key)
	}
	m.ops = append(m.ops, Op{Kind: "delete", User: user, Collection: coll, Key: key})
	m.notify(user, coll)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, user, coll, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, fmt.Errorf("Get %s/%s: %w", coll, key, err)
	}
	data, ok := m.collection(user, coll, false)[key]
	if !ok {
		return nil, fmt.Errorf("Get %s/%s: %w", coll, key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) List(_ context.Context, user, coll string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, fmt.Errorf("List %s: %w", coll, err)
	}
	return m.snapshot(user, coll).Docs, nil
}

// snapshot must be called with mu held.
func (m *MemoryStore) snapshot(user, coll string) Snapshot {
	docs := m.collection(user, coll, false)
	out := make([]Document, 0, len(docs))
	for k, v := range docs {
		out = append(out, Document{Key: k, Data: append([]byte(nil), v...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return Snapshot{Collection: coll, Docs: out}
}

// notify must be called with mu held.
func (m *MemoryStore) notify(user, coll string) {
	for s := range m.subs {
		if s.user == user && s.collection == coll {
			offer(s.ch, m.snapshot(user, coll))
		}
	}
}

func (m *MemoryStore) Subscribe(ctx context.Context, user, coll string) (<-chan Snapshot, error) {
	s := &subscription{user: user, collection: coll, ch: make(chan Snapshot, 1)}

	m.mu.Lock()
	m.subs[s] = struct{}{}
	offer(s.ch, m.snapshot(user, coll))
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, s)
		close(s.ch)
		m.mu.Unlock()
	}()
	return s.ch, nil
}

// Subscribers returns the number of live subscriptions.
func (m *MemoryStore) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
