package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSStore keeps each document as one JSON object under
// users/{uid}/{collection}/{key}.json. Subscriptions poll the prefix and emit
// a snapshot whenever the set of object generations changes.
type GCSStore struct {
	client *storage.Client
	bucket string
	poll   time.Duration
	log    zerolog.Logger
}

// NewGCSStore creates a store using Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket string, poll time.Duration, log zerolog.Logger) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	if poll <= 0 {
		poll = 10 * time.Second
	}
	return &GCSStore{client: client, bucket: bucket, poll: poll, log: log}, nil
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}

func collectionPrefix(user, coll string) string {
	return path.Join("users", url.PathEscape(user), coll) + "/"
}

// ObjectName returns the object path of a document. Keys are escaped because
// budget keys are free-text category names.
func ObjectName(user, coll, key string) string {
	return collectionPrefix(user, coll) + url.PathEscape(key) + ".json"
}

// keyFromObject reverses ObjectName for an object under prefix.
func keyFromObject(prefix, name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok || strings.Contains(rest, "/") || !strings.HasSuffix(rest, ".json") {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(rest, ".json"))
	if err != nil {
		return "", false
	}
	return key, true
}

func (g *GCSStore) object(user, coll, key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(ObjectName(user, coll, key))
}

func (g *GCSStore) write(ctx context.Context, obj *storage.ObjectHandle, data []byte) error {
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (g *GCSStore) Put(ctx context.Context, user, coll, key string, data []byte) error {
	if err := g.write(ctx, g.object(user, coll, key), data); err != nil {
		return fmt.Errorf("Put %s/%s: %w", coll, key, mapError(err))
	}
	return nil
}

// Update writes only if the object still has the generation observed by
// Attrs, so a concurrent delete turns into a rejection instead of a
// resurrection.
func (g *GCSStore) Update(ctx context.Context, user, coll, key string, data []byte) error {
	obj := g.object(user, coll, key)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return fmt.Errorf("Update %s/%s: read attrs: %w", coll, key, mapError(err))
	}
	cond := obj.If(storage.Conditions{GenerationMatch: attrs.Generation})
	if err := g.write(ctx, cond, data); err != nil {
		return fmt.Errorf("Update %s/%s: %w", coll, key, mapError(err))
	}
	return nil
}

func (g *GCSStore) Delete(ctx context.Context, user, coll, key string) error {
	err := g.object(user, coll, key).Delete(ctx)
	if err != nil && !errors.Is(mapError(err), ErrNotFound) {
		return fmt.Errorf("Delete %s/%s: %w", coll, key, mapError(err))
	}
	return nil
}

func (g *GCSStore) Get(ctx context.Context, user, coll, key string) ([]byte, error) {
	data, err := g.read(ctx, g.object(user, coll, key))
	if err != nil {
		return nil, fmt.Errorf("Get %s/%s: %w", coll, key, mapError(err))
	}
	return data, nil
}

func (g *GCSStore) read(ctx context.Context, obj *storage.ObjectHandle) ([]byte, error) {
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type objectRef struct {
	key        string
	name       string
	generation int64
}

func (g *GCSStore) listObjects(ctx context.Context, user, coll string) ([]objectRef, error) {
	prefix := collectionPrefix(user, coll)
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var refs []objectRef
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError(err)
		}
		key, ok := keyFromObject(prefix, attrs.Name)
		if !ok {
			continue
		}
		refs = append(refs, objectRef{key: key, name: attrs.Name, generation: attrs.Generation})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].key < refs[j].key })
	return refs, nil
}

func (g *GCSStore) List(ctx context.Context, user, coll string) ([]Document, error) {
	refs, err := g.listObjects(ctx, user, coll)
	if err != nil {
		return nil, fmt.Errorf("List %s: %w", coll, err)
	}
	docs, err := g.fetch(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("List %s: %w", coll, err)
	}
	return docs, nil
}

func (g *GCSStore) fetch(ctx context.Context, refs []objectRef) ([]Document, error) {
	bkt := g.client.Bucket(g.bucket)
	docs := make([]Document, 0, len(refs))
	for _, ref := range refs {
		data, err := g.read(ctx, bkt.Object(ref.name).Generation(ref.generation))
		if err != nil {
			if errors.Is(mapError(err), ErrNotFound) {
				// deleted between list and read
				continue
			}
			return nil, mapError(err)
		}
		docs = append(docs, Document{Key: ref.key, Data: data})
	}
	return docs, nil
}

func fingerprint(refs []objectRef) string {
	var b strings.Builder
	for _, r := range refs {
		b.WriteString(r.name)
		b.WriteByte('@')
		b.WriteString(strconv.FormatInt(r.generation, 10))
		b.WriteByte(';')
	}
	return b.String()
}

// Subscribe polls the collection prefix. Poll failures are logged and retried
// on the next tick; the subscription itself never fails.
func (g *GCSStore) Subscribe(ctx context.Context, user, coll string) (<-chan Snapshot, error) {
	ch := make(chan Snapshot, 1)
	log := g.log.With().Str("collection", coll).Logger()

	go func() {
		defer close(ch)
		ticker := time.NewTicker(g.poll)
		defer ticker.Stop()

		last := ""
		first := true
		for {
			refs, err := g.listObjects(ctx, user, coll)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Warn().Err(err).Msg("poll collection failed")
			} else if fp := fingerprint(refs); first || fp != last {
				docs, err := g.fetch(ctx, refs)
				if err != nil {
					log.Warn().Err(err).Msg("fetch snapshot failed")
				} else {
					offer(ch, Snapshot{Collection: coll, Docs: docs})
					last, first = fp, false
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch, nil
}

// mapError translates storage errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case http.StatusPreconditionFailed, http.StatusConflict:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if gerr.Code >= 400 && gerr.Code < 500 {
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
