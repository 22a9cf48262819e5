package executor_test

import (
	"context"
	"sync"
	"testing"

	"github.com/hanpama/socialgraph/internal/executor"
	"github.com/hanpama/socialgraph/internal/language"
	"github.com/hanpama/socialgraph/internal/schema"
	"github.com/stretchr/testify/require"
)

// mockResolver resolves a single item; mockRuntime adapts it for batched calls.
type mockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

func value(v any) mockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return v, nil }
}

func failing(err error) mockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return nil, err }
}

// field projects a key of a map source.
func field(name string) mockResolver {
	return func(_ context.Context, source any, _ map[string]any) (any, error) {
		return source.(map[string]any)[name], nil
	}
}

// call records one task-level invocation. Async calls of one flush share a
// Batch number; sync calls have Batch 0.
type call struct {
	Batch int
	Field string
	Args  map[string]any
}

type mockRuntime struct {
	mu        sync.Mutex
	resolvers map[string]mockResolver
	calls     []call
	batches   int
}

func newMockRuntime(resolvers map[string]mockResolver) *mockRuntime {
	return &mockRuntime{resolvers: resolvers}
}

func (m *mockRuntime) resolve(ctx context.Context, batch int, objectType, fieldName string, source any, args map[string]any) (any, error) {
	key := objectType + "." + fieldName
	m.mu.Lock()
	r := m.resolvers[key]
	m.calls = append(m.calls, call{Batch: batch, Field: key, Args: args})
	m.mu.Unlock()
	if r == nil {
		return nil, nil
	}
	return r(ctx, source, args)
}

func (m *mockRuntime) ResolveSync(ctx context.Context, objectType, fieldName string, source any, args map[string]any) (any, error) {
	return m.resolve(ctx, 0, objectType, fieldName, source, args)
}

func (m *mockRuntime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	m.mu.Lock()
	m.batches++
	batch := m.batches
	m.mu.Unlock()

	out := make([]executor.AsyncResolveResult, len(tasks))
	for i, t := range tasks {
		v, err := m.resolve(ctx, batch, t.ObjectType, t.Field, t.Source, t.Args)
		out[i] = executor.AsyncResolveResult{Value: v, Error: err}
	}
	return out
}

func (m *mockRuntime) SerializeLeafValue(_ context.Context, _ string, v any) (any, error) {
	return v, nil
}

func (m *mockRuntime) asyncCalls() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []call
	for _, c := range m.calls {
		if c.Batch > 0 {
			out = append(out, c)
		}
	}
	return out
}

func mustSchema(t *testing.T, sdl string) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL("test.graphql", sdl, schema.AsyncObjects)
	require.NoError(t, err)
	return s
}

// run validates query against s and executes it.
func run(t *testing.T, s *schema.Schema, rt executor.Runtime, query string, vars map[string]any, opts ...executor.Option) *executor.ExecutionResult {
	t.Helper()
	doc, errs := language.ParseAndValidate(s.Source, query)
	require.Empty(t, errs)
	return executor.NewExecutor(rt, s, opts...).ExecuteRequest(context.Background(), doc, "", vars, nil)
}
