package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/hanpama/socialgraph/internal/language"
	"github.com/hanpama/socialgraph/internal/schema"
)

// ErrNoResult is reported for a task the runtime returned no result for.
var ErrNoResult = errors.New("runtime returned no result for field")

type Executor struct {
	runtime Runtime
	schema  *schema.Schema
	present ErrorPresenter
}

type Option func(*Executor)

// WithErrorPresenter replaces the default conversion of resolver errors.
func WithErrorPresenter(p ErrorPresenter) Option {
	return func(e *Executor) { e.present = p }
}

func NewExecutor(runtime Runtime, s *schema.Schema, opts ...Option) *Executor {
	e := &Executor{runtime: runtime, schema: s, present: defaultPresenter}
	for _, o := range opts {
		o(e)
	}
	return e
}

// executionState holds the state of one operation.
type executionState struct {
	ctx       context.Context
	runtime   Runtime
	schema    *schema.Schema
	document  *language.QueryDocument
	variables map[string]any
	present   ErrorPresenter

	root    map[string]any
	pending []asyncTask
	errors  []GraphQLError

	errored    map[string]struct{} // paths that already carry an error
	nonNull    map[string]struct{} // slots whose type is Non-Null
	nulled     map[string]struct{} // slots nullified by propagation
	rootNulled bool
}

// asyncTask represents a pending async field resolution
type asyncTask struct {
	Task      AsyncResolveTask
	Path      Path
	FieldType *schema.TypeRef
	Fields    []*language.Field
}

func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	operation, err := getOperation(document, operationName)
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error()}}}
	}

	var rootType *schema.Type
	switch operation.Operation {
	case language.Query:
		rootType = e.schema.GetQueryType()
	case language.Mutation:
		rootType = e.schema.GetMutationType()
	default:
		return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf("unsupported operation type: %s", operation.Operation)}}}
	}
	if rootType == nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf("root type not found for %s operation", operation.Operation)}}}
	}

	coerced, err := coerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error()}}}
	}

	state := &executionState{
		ctx:       ctx,
		runtime:   e.runtime,
		schema:    e.schema,
		document:  document,
		variables: coerced,
		present:   e.present,
		root:      make(map[string]any),
		errors:    []GraphQLError{},
		errored:   make(map[string]struct{}),
		nonNull:   make(map[string]struct{}),
		nulled:    make(map[string]struct{}),
	}

	fields := state.collectFields(rootType, operation.SelectionSet).orderedFields()
	if operation.Operation == language.Mutation {
		for _, f := range fields {
			if !state.executeFields(rootType, []collectedField{f}, initialValue, Path{}, state.root) {
				break
			}
			state.drain()
			if state.rootNulled {
				break
			}
		}
	} else if state.executeFields(rootType, fields, initialValue, Path{}, state.root) {
		state.drain()
	}

	if state.rootNulled {
		return &ExecutionResult{Data: nil, Errors: state.errors}
	}
	return &ExecutionResult{Data: state.root, Errors: state.errors}
}

// drain flushes queued async tasks depth by depth until none are left.
func (s *executionState) drain() {
	for len(s.pending) > 0 && !s.rootNulled {
		live := make([]asyncTask, 0, len(s.pending))
		for _, at := range s.pending {
			if !s.isNulled(at.Path) {
				live = append(live, at)
			}
		}
		s.pending = nil
		if len(live) == 0 {
			return
		}

		tasks := make([]AsyncResolveTask, len(live))
		for i, at := range live {
			tasks[i] = at.Task
		}
		results := s.runtime.BatchResolveAsync(s.ctx, tasks)

		for i, at := range live {
			if s.rootNulled {
				return
			}
			if s.isNulled(at.Path) {
				continue
			}
			res := AsyncResolveResult{Error: ErrNoResult}
			if i < len(results) {
				res = results[i]
			}
			v := s.completeField(at.FieldType, at.Fields, res.Value, res.Error, at.Path)
			if v == nil && at.FieldType.IsNonNull() {
				s.propagate(at.Path)
				continue
			}
			setValueAtPath(s.root, at.Path, v)
		}
	}
}

// propagate nullifies the nearest nullable ancestor of path, whose own slot
// just became null in a Non-Null position.
func (s *executionState) propagate(path Path) {
	for p := path[:len(path)-1]; ; p = p[:len(p)-1] {
		if len(p) == 0 {
			s.rootNulled = true
			return
		}
		if _, nn := s.nonNull[p.String()]; !nn {
			setValueAtPath(s.root, p, nil)
			s.nullify(p)
			return
		}
	}
}

func (s *executionState) nullify(p Path) {
	if len(p) == 0 {
		s.rootNulled = true
		return
	}
	s.nulled[p.String()] = struct{}{}
}

func (s *executionState) isNulled(p Path) bool {
	if len(s.nulled) == 0 {
		return false
	}
	for i := 1; i <= len(p); i++ {
		if _, ok := s.nulled[p[:i].String()]; ok {
			return true
		}
	}
	return false
}

func (s *executionState) addError(message string, path Path) {
	s.errors = append(s.errors, GraphQLError{Message: message, Path: path})
	s.errored[path.String()] = struct{}{}
}

func (s *executionState) fieldError(err error, path Path) {
	s.errors = append(s.errors, s.present(err, path))
	s.errored[path.String()] = struct{}{}
}

// getOperation retrieves the operation from the document
func getOperation(document *language.QueryDocument, operationName string) (*language.OperationDefinition, error) {
	if operationName == "" {
		switch len(document.Operations) {
		case 0:
			return nil, errors.New("document contains no operation")
		case 1:
			return document.Operations[0], nil
		default:
			return nil, errors.New("operation name is required when the document contains several operations")
		}
	}
	if op := document.Operations.ForName(operationName); op != nil {
		return op, nil
	}
	return nil, fmt.Errorf("unknown operation %q", operationName)
}
