// Package store implements keyed in-memory collections with predicate
// lookups. A Collection owns its rows: values are copied on the way in and on
// the way out, and all access goes through its methods.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/hanpama/socialgraph/internal/apperr"
)

// Row is implemented by every entity kind stored in a Collection.
type Row[T any] interface {
	RowID() string
	WithID(id string) T
	Clone() T
}

// Patch is a partial update. Apply returns row with the supplied fields
// overwritten and every other field unchanged.
type Patch[T any] interface {
	Apply(row T) T
}

// Fields maps predicate keys to accessors. Accessors return a comparable
// scalar or a []string for array-valued fields.
type Fields[T any] map[string]func(T) any

// Observer is notified of every FindMany call with the predicate used.
type Observer func(kind string, p Predicate)

type config struct {
	observer Observer
	newID    func() string
}

type Option func(*config)

// WithObserver installs an observer for FindMany calls.
func WithObserver(o Observer) Option { return func(c *config) { c.observer = o } }

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(f func() string) Option { return func(c *config) { c.newID = f } }

// Collection is the storage for one entity kind.
type Collection[T Row[T]] struct {
	kind   string
	fields Fields[T]
	cfg    config

	mu    sync.RWMutex
	order []string
	rows  map[string]T
}

// New creates an empty collection for the given entity kind.
func New[T Row[T]](kind string, fields Fields[T], opts ...Option) *Collection[T] {
	cfg := config{newID: uuid.NewString}
	for _, o := range opts {
		o(&cfg)
	}
	return &Collection[T]{kind: kind, fields: fields, cfg: cfg, rows: make(map[string]T)}
}

// Kind returns the entity kind name, e.g. "users".
func (c *Collection[T]) Kind() string { return c.kind }

// FindMany returns every row matching p in insertion order. It never fails
// for "no match"; an empty result is a nil slice.
func (c *Collection[T]) FindMany(ctx context.Context, p Predicate) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.cfg.observer != nil {
		c.cfg.observer(c.kind, p)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []T
	for _, id := range c.order {
		row := c.rows[id]
		if c.matches(row, p) {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

// FindOne returns the first row matching p. ok is false when nothing matches.
func (c *Collection[T]) FindOne(ctx context.Context, p Predicate) (row T, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return row, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	// fast path for the primary key
	if p.op == opEquals && p.key == "id" {
		if id, isStr := p.value.(string); isStr {
			if r, hit := c.rows[id]; hit {
				return r.Clone(), true, nil
			}
			return row, false, nil
		}
	}
	for _, id := range c.order {
		r := c.rows[id]
		if c.matches(r, p) {
			return r.Clone(), true, nil
		}
	}
	return row, false, nil
}

// Get is FindOne by id, reporting NotFound for a missing row.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	row, ok, err := c.FindOne(ctx, Equals("id", id))
	if err != nil {
		return row, err
	}
	if !ok {
		return row, apperr.NotFound(c.kind+".get", c.kind, id)
	}
	return row, nil
}

// Create stores row under a freshly assigned id and returns the stored copy.
// It performs no cross-collection validation.
func (c *Collection[T]) Create(ctx context.Context, row T) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	row = row.WithID(c.cfg.newID()).Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[row.RowID()] = row
	c.order = append(c.order, row.RowID())
	return row.Clone(), nil
}

// Insert stores row under its own id. It is used for fixed identifiers such
// as member type tiers and fails with Conflict when the id is taken.
func (c *Collection[T]) Insert(ctx context.Context, row T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	id := row.RowID()
	if id == "" {
		return zero, apperr.Validation(c.kind+".insert", "id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rows[id]; ok {
		return zero, apperr.Conflict(c.kind+".insert", "id "+id+" already exists")
	}
	c.rows[id] = row.Clone()
	c.order = append(c.order, id)
	return row.Clone(), nil
}

// Change merges patch into the row with the given id.
func (c *Collection[T]) Change(ctx context.Context, id string, patch Patch[T]) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.rows[id]
	if !ok {
		return zero, apperr.NotFound(c.kind+".change", c.kind, id)
	}
	// the id is not patchable
	next := patch.Apply(cur.Clone()).WithID(id)
	c.rows[id] = next
	return next.Clone(), nil
}

// Delete removes and returns the row with the given id.
func (c *Collection[T]) Delete(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.rows[id]
	if !ok {
		return zero, apperr.NotFound(c.kind+".delete", c.kind, id)
	}
	delete(c.rows, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return cur, nil
}

// Len returns the number of stored rows.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

func (c *Collection[T]) matches(row T, p Predicate) bool {
	if p.op == opAll {
		return true
	}
	get, ok := c.fields[p.key]
	if !ok {
		return false
	}
	return p.match(get(row))
}
