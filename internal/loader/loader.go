// Package loader is the request-scoped batching layer between field resolvers
// and the entity store.
//
// Resolvers register keys with a Loader and receive a Thunk. Registrations
// made before the next Dispatch are fetched together with one store call per
// loader. Results, including failures, are memoized for the life of the
// Registry, which must not outlive the query execution it was created for.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hanpama/socialgraph/internal/apperr"
	"github.com/hanpama/socialgraph/internal/eventbus"
	"github.com/hanpama/socialgraph/internal/events"
)

// Key identifies a loader within a Registry: the child entity kind, the field
// the bulk fetch filters on, and the resolver site that asked for it.
type Key struct {
	Kind  string
	Field string
	Site  string
}

func (k Key) String() string { return k.Site + "(" + k.Kind + "." + k.Field + ")" }

// Fetch loads every row matching any of keys in one call.
type Fetch[T any] func(ctx context.Context, keys []string) ([]T, error)

// KeyFunc returns the keys a fetched row answers. Array-valued foreign keys
// return several.
type KeyFunc[T any] func(row T) []string

// Thunk is a deferred result. Calling it before its loader was dispatched
// dispatches that loader.
type Thunk[V any] func(ctx context.Context) (V, error)

type entry[T any] struct {
	ready chan struct{}
	rows  []T
	err   error
}

// Loader batches and memoizes lookups for one Key.
type Loader[T any] struct {
	key    Key
	fetch  Fetch[T]
	keysOf KeyFunc[T]

	mu      sync.Mutex
	entries map[string]*entry[T]
	pending []string
}

// Load registers id and returns the rows matching it. A key with no rows
// resolves to an empty, non-nil slice.
func (l *Loader[T]) Load(id string) Thunk[[]T] {
	e := l.register(id)
	return func(ctx context.Context) ([]T, error) {
		l.await(ctx, e)
		return e.rows, e.err
	}
}

// LoadMany registers ids and returns their rows concatenated in id order.
func (l *Loader[T]) LoadMany(ids []string) Thunk[[]T] {
	es := make([]*entry[T], len(ids))
	for i, id := range ids {
		es[i] = l.register(id)
	}
	return func(ctx context.Context) ([]T, error) {
		out := []T{}
		for _, e := range es {
			l.await(ctx, e)
			if e.err != nil {
				return nil, e.err
			}
			out = append(out, e.rows...)
		}
		return out, nil
	}
}

func (l *Loader[T]) register(id string) *entry[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[id]; ok {
		return e
	}
	e := &entry[T]{ready: make(chan struct{})}
	l.entries[id] = e
	l.pending = append(l.pending, id)
	return e
}

func (l *Loader[T]) await(ctx context.Context, e *entry[T]) {
	select {
	case <-e.ready:
		return
	default:
	}
	l.dispatch(ctx)
	<-e.ready
}

// Pending reports the number of registered keys not yet fetched.
func (l *Loader[T]) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// dispatch fetches every pending key with one call. Keys registered while the
// fetch runs wait for the next dispatch.
func (l *Loader[T]) dispatch(ctx context.Context) {
	l.mu.Lock()
	keys := l.pending
	l.pending = nil
	batch := make(map[string]*entry[T], len(keys))
	for _, k := range keys {
		batch[k] = l.entries[k]
	}
	l.mu.Unlock()
	if len(keys) == 0 {
		return
	}

	start := time.Now()
	rows, err := l.fetch(ctx, keys)
	if err != nil {
		err = apperr.BatchFailure("load "+l.key.String(), err)
		rows = nil
	}

	grouped := make(map[string][]T, len(keys))
	for _, row := range rows {
		for _, k := range l.keysOf(row) {
			if _, ok := batch[k]; ok {
				grouped[k] = append(grouped[k], row)
			}
		}
	}
	for _, k := range keys {
		e := batch[k]
		if err != nil {
			e.err = err
		} else if e.rows = grouped[k]; e.rows == nil {
			e.rows = []T{}
		}
		close(e.ready)
	}

	eventbus.Publish(ctx, events.LoaderBatch{
		Kind:     l.key.Kind,
		Field:    l.key.Field,
		Site:     l.key.Site,
		Keys:     len(keys),
		Rows:     len(rows),
		Err:      err,
		Duration: time.Since(start),
	})
}

type dispatcher interface {
	dispatch(ctx context.Context)
	Pending() int
}

// Registry owns the loaders of one query execution.
type Registry struct {
	mu      sync.Mutex
	loaders map[Key]dispatcher
	order   []Key
}

func NewRegistry() *Registry {
	return &Registry{loaders: make(map[Key]dispatcher)}
}

// Get returns the loader for key, creating it with fetch and keysOf on first
// use. Asking for an existing key with a different row type panics.
func Get[T any](r *Registry, key Key, fetch Fetch[T], keysOf KeyFunc[T]) *Loader[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.loaders[key]; ok {
		l, ok := d.(*Loader[T])
		if !ok {
			panic(fmt.Sprintf("loader %s registered with row type %T", key, d))
		}
		return l
	}
	l := &Loader[T]{key: key, fetch: fetch, keysOf: keysOf, entries: make(map[string]*entry[T])}
	r.loaders[key] = l
	r.order = append(r.order, key)
	return l
}

// Dispatch flushes every loader with pending keys. Loaders are fetched
// concurrently; Dispatch returns when all of them have resolved.
func (r *Registry) Dispatch(ctx context.Context) {
	r.mu.Lock()
	ready := make([]dispatcher, 0, len(r.order))
	for _, k := range r.order {
		if d := r.loaders[k]; d.Pending() > 0 {
			ready = append(ready, d)
		}
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, d := range ready {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.dispatch(ctx)
		}()
	}
	wg.Wait()
}

// Clear drops every loader and its memoized results. Thunks issued before
// the call still resolve. Writes call it so that later reads in the same
// document observe them.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders = make(map[Key]dispatcher)
	r.order = nil
}

// size reports the number of loaders created so far.
func (r *Registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loaders)
}

type ctxKey struct{}

// NewContext returns a copy of parent carrying a fresh Registry.
func NewContext(parent context.Context) (context.Context, *Registry) {
	r := NewRegistry()
	return context.WithValue(parent, ctxKey{}, r), r
}

// FromContext returns the Registry stored in ctx, or nil.
func FromContext(ctx context.Context) *Registry {
	r, _ := ctx.Value(ctxKey{}).(*Registry)
	return r
}
