// Package resolver is the executor runtime of the social graph. Root query
// fields read the store, mutations go through the integrity manager, and
// relationship fields are answered by request-scoped batch loaders.
package resolver

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hanpama/socialgraph/internal/entity"
	"github.com/hanpama/socialgraph/internal/executor"
	"github.com/hanpama/socialgraph/internal/integrity"
	"github.com/hanpama/socialgraph/internal/loader"
	"github.com/hanpama/socialgraph/internal/schema"
)

//go:embed schema.graphql
var SDL string

var buildSchema = sync.OnceValues(func() (*schema.Schema, error) {
	return schema.BuildFromSDL("schema.graphql", SDL, schema.AsyncObjects)
})

// Schema returns the executable social graph schema.
func Schema() (*schema.Schema, error) { return buildSchema() }

// Runtime implements executor.Runtime.
type Runtime struct {
	m      *integrity.Manager
	logger *slog.Logger
}

type Option func(*Runtime)

func WithLogger(l *slog.Logger) Option { return func(r *Runtime) { r.logger = l } }

func New(m *integrity.Manager, opts ...Option) *Runtime {
	r := &Runtime{m: m, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

var _ executor.Runtime = (*Runtime)(nil)

// deferred completes a task after the registry was dispatched.
type deferred func(ctx context.Context) (any, error)

// BatchResolveAsync resolves one depth. Root fields run immediately, in task
// order. Relationship fields first register with their loaders; the registry
// is then dispatched once, so each relationship costs one store call for the
// whole depth, and the thunks are collected.
func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	reg := loader.FromContext(ctx)
	if reg == nil {
		r.logger.Debug("no loader registry in context; batching within one depth only")
		reg = loader.NewRegistry()
	}

	results := make([]executor.AsyncResolveResult, len(tasks))
	pending := make([]deferred, len(tasks))
	for i, t := range tasks {
		var (
			v   any
			err error
		)
		switch t.ObjectType {
		case "Query":
			v, err = r.query(ctx, t.Field, t.Args)
		case "Mutation":
			v, err = r.mutate(ctx, t.Field, t.Args)
			// Reads later in the document must observe the write.
			reg.Clear()
		default:
			pending[i], err = r.relation(reg, t)
			if err == nil {
				continue
			}
		}
		results[i] = executor.AsyncResolveResult{Value: v, Error: err}
	}

	reg.Dispatch(ctx)
	for i, d := range pending {
		if d == nil {
			continue
		}
		v, err := d(ctx)
		results[i] = executor.AsyncResolveResult{Value: v, Error: err}
	}
	return results
}

// ResolveSync projects scalar fields of a row.
func (r *Runtime) ResolveSync(_ context.Context, objectType, field string, source any, _ map[string]any) (any, error) {
	var (
		v  any
		ok bool
	)
	switch src := source.(type) {
	case entity.User:
		v, ok = projectUser(src, field)
	case entity.Post:
		v, ok = projectPost(src, field)
	case entity.Profile:
		v, ok = projectProfile(src, field)
	case entity.MemberType:
		v, ok = projectMemberType(src, field)
	}
	if !ok {
		return nil, fmt.Errorf("no projection for %s.%s on %T", objectType, field, source)
	}
	return v, nil
}

func (r *Runtime) SerializeLeafValue(_ context.Context, typeName string, value any) (any, error) {
	switch typeName {
	case "String", "ID":
		if s, ok := value.(string); ok {
			return s, nil
		}
	case "Int":
		if n, ok := value.(int); ok {
			return n, nil
		}
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot serialize %T as %s", value, typeName)
}

func projectUser(u entity.User, field string) (any, bool) {
	switch field {
	case "id":
		return u.ID, true
	case "firstName":
		return u.FirstName, true
	case "lastName":
		return u.LastName, true
	case "email":
		return u.Email, true
	case "subscribedToUserIds":
		return u.SubscribedToUserIDs, true
	}
	return nil, false
}

func projectPost(p entity.Post, field string) (any, bool) {
	switch field {
	case "id":
		return p.ID, true
	case "title":
		return p.Title, true
	case "content":
		return p.Content, true
	case "userId":
		return p.UserID, true
	}
	return nil, false
}

func projectProfile(p entity.Profile, field string) (any, bool) {
	switch field {
	case "id":
		return p.ID, true
	case "avatar":
		return p.Avatar, true
	case "sex":
		return p.Sex, true
	case "birthday":
		return p.Birthday, true
	case "country":
		return p.Country, true
	case "street":
		return p.Street, true
	case "city":
		return p.City, true
	case "memberTypeId":
		return p.MemberTypeID, true
	case "userId":
		return p.UserID, true
	}
	return nil, false
}

func projectMemberType(m entity.MemberType, field string) (any, bool) {
	switch field {
	case "id":
		return m.ID, true
	case "discount":
		return m.Discount, true
	case "monthPostsLimit":
		return m.MonthPostsLimit, true
	}
	return nil, false
}
