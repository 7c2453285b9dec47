package localstore

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Durable opens its backing store in the background and holds callers until
// it is available. If persistent storage cannot be opened it falls back to a
// MemoryStore so the rest of the system keeps working without persistence.
type Durable struct {
	ready    chan struct{}
	once     sync.Once
	inner    Store
	degraded bool
}

// Open starts opening the SQLite database at path. An empty path selects
// memory-only operation immediately.
func Open(path string, log zerolog.Logger) *Durable {
	d := &Durable{ready: make(chan struct{})}

	if path == "" {
		d.finish(NewMemoryStore(), true)
		return d
	}

	go func() {
		s, err := OpenSQLite(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Local storage unavailable, continuing in memory-only mode")
			d.finish(NewMemoryStore(), true)
			return
		}
		log.Debug().Str("path", path).Msg("Local storage opened")
		d.finish(s, false)
	}()
	return d
}

func (d *Durable) finish(s Store, degraded bool) {
	d.once.Do(func() {
		d.inner = s
		d.degraded = degraded
		close(d.ready)
	})
}

// Degraded reports whether the store runs without persistence. It blocks
// until the store is ready.
func (d *Durable) Degraded() bool {
	<-d.ready
	return d.degraded
}

func (d *Durable) wait(ctx context.Context) (Store, error) {
	select {
	case <-d.ready:
		return d.inner, nil
	default:
	}
	select {
	case <-d.ready:
		return d.inner, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Durable) GetAll(ctx context.Context, collection string) ([]Record, error) {
	s, err := d.wait(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetAll(ctx, collection)
}

func (d *Durable) Put(ctx context.Context, collection string, rec Record) error {
	s, err := d.wait(ctx)
	if err != nil {
		return err
	}
	return s.Put(ctx, collection, rec)
}

func (d *Durable) Delete(ctx context.Context, collection, key string) error {
	s, err := d.wait(ctx)
	if err != nil {
		return err
	}
	return s.Delete(ctx, collection, key)
}

func (d *Durable) Clear(ctx context.Context, collection string) error {
	s, err := d.wait(ctx)
	if err != nil {
		return err
	}
	return s.Clear(ctx, collection)
}

func (d *Durable) ReplaceAll(ctx context.Context, collection string, recs []Record) error {
	s, err := d.wait(ctx)
	if err != nil {
		return err
	}
	return s.ReplaceAll(ctx, collection, recs)
}

func (d *Durable) Ready() <-chan struct{} { return d.ready }

// Close waits for the open to finish and closes the backing store.
func (d *Durable) Close() error {
	<-d.ready
	return d.inner.Close()
}

var _ Store = (*Durable)(nil)
