// Package introspection answers __schema and __type queries from the
// executable schema. It wraps another runtime and forwards everything else.
package introspection

import (
	"context"
	"fmt"
	"sort"

	executor "github.com/hanpama/socialgraph/internal/executor"
	schema "github.com/hanpama/socialgraph/internal/schema"
)

// Wrapped holds the runtime and the schema extended with introspection
// fields. Both must be handed to the executor together.
type Wrapped struct {
	Runtime executor.Runtime
	Schema  *schema.Schema
}

// Wrap returns a runtime that resolves introspection fields against sch and
// delegates the rest to base.
func Wrap(base executor.Runtime, sch *schema.Schema) *Wrapped {
	return &Wrapped{
		Runtime: &runtime{base: base, schema: sch},
		Schema:  extend(sch),
	}
}

type runtime struct {
	base   executor.Runtime
	schema *schema.Schema // answers are given about the unextended schema
}

var _ executor.Runtime = (*runtime)(nil)

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	switch src := source.(type) {
	case *schema.Schema:
		return resolveSchemaField(src, field), nil
	case *schema.Type:
		return resolveTypeField(r.schema, src, field, args), nil
	case *schema.TypeRef:
		return resolveTypeRefField(r.schema, src, field, args), nil
	case *schema.Field:
		return resolveFieldField(src, field), nil
	case *schema.InputValue:
		return resolveInputValueField(src, field), nil
	case *schema.EnumValue:
		return resolveEnumValueField(src, field), nil
	case *schema.Directive:
		return resolveDirectiveField(src, field), nil
	}

	if objectType == r.schema.QueryType {
		switch field {
		case "__schema":
			return r.schema, nil
		case "__type":
			name, _ := args["name"].(string)
			if t := r.schema.Types[name]; t != nil {
				return t, nil
			}
			return nil, nil
		}
	}
	return r.base.ResolveSync(ctx, objectType, field, source, args)
}

func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return r.base.BatchResolveAsync(ctx, tasks)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	switch typ {
	case "__TypeKind", "__DirectiveLocation":
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("cannot serialize %T as %s", value, typ)
	}
	return r.base.SerializeLeafValue(ctx, typ, value)
}

// --- helpers ---

func resolveSchemaField(sch *schema.Schema, field string) any {
	switch field {
	case "types":
		out := make([]*schema.Type, 0, len(sch.Types))
		for _, t := range sch.Types {
			out = append(out, t)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out
	case "queryType":
		return nonNil(sch.GetQueryType())
	case "mutationType":
		return nonNil(sch.GetMutationType())
	case "directives":
		out := make([]*schema.Directive, 0, len(sch.Directives))
		for _, d := range sch.Directives {
			out = append(out, d)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out
	case "description":
		return optional(sch.Description)
	}
	// subscriptionType and anything newer than this server
	return nil
}

func resolveTypeField(sch *schema.Schema, t *schema.Type, field string, args map[string]any) any {
	switch field {
	case "kind":
		return string(t.Kind)
	case "name":
		return t.Name
	case "description":
		return optional(t.Description)
	case "fields":
		if t.Kind != schema.TypeKindObject {
			return nil
		}
		includeDeprecated := boolArg(args, "includeDeprecated")
		out := []*schema.Field{}
		for _, f := range t.Fields {
			if includeDeprecated || !f.IsDeprecated {
				out = append(out, f)
			}
		}
		return out
	case "interfaces":
		if t.Kind != schema.TypeKindObject {
			return nil
		}
		return []*schema.Type{}
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil
		}
		includeDeprecated := boolArg(args, "includeDeprecated")
		out := []*schema.EnumValue{}
		for _, ev := range t.EnumValues {
			if includeDeprecated || !ev.IsDeprecated {
				out = append(out, ev)
			}
		}
		return out
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil
		}
		return append([]*schema.InputValue{}, t.InputFields...)
	case "isOneOf":
		if t.Kind != schema.TypeKindInputObject {
			return nil
		}
		return false
	}
	// possibleTypes, ofType and specifiedByURL are null for the kinds in use
	return nil
}

// resolveTypeRefField answers for a field's declared type. Wrappers report
// their own kind and ofType; a named reference answers as its definition.
func resolveTypeRefField(sch *schema.Schema, tr *schema.TypeRef, field string, args map[string]any) any {
	if tr.Kind == schema.TypeRefKindNonNull || tr.Kind == schema.TypeRefKindList {
		switch field {
		case "kind":
			return string(tr.Kind)
		case "ofType":
			return tr.OfType
		}
		return nil
	}
	def := sch.Types[tr.Named]
	if def == nil {
		if field == "name" {
			return tr.Named
		}
		return nil
	}
	return resolveTypeField(sch, def, field, args)
}

func resolveFieldField(f *schema.Field, field string) any {
	switch field {
	case "name":
		return f.Name
	case "description":
		return optional(f.Description)
	case "args":
		return append([]*schema.InputValue{}, f.Arguments...)
	case "type":
		return f.Type
	case "isDeprecated":
		return f.IsDeprecated
	case "deprecationReason":
		if f.IsDeprecated {
			return f.DeprecationReason
		}
	}
	return nil
}

func resolveInputValueField(a *schema.InputValue, field string) any {
	switch field {
	case "name":
		return a.Name
	case "description":
		return optional(a.Description)
	case "type":
		return a.Type
	case "defaultValue":
		if a.DefaultLiteral != "" {
			return a.DefaultLiteral
		}
	case "isDeprecated":
		return false
	}
	return nil
}

func resolveEnumValueField(ev *schema.EnumValue, field string) any {
	switch field {
	case "name":
		return ev.Name
	case "description":
		return optional(ev.Description)
	case "isDeprecated":
		return ev.IsDeprecated
	case "deprecationReason":
		if ev.IsDeprecated {
			return ev.DeprecationReason
		}
	}
	return nil
}

func resolveDirectiveField(d *schema.Directive, field string) any {
	switch field {
	case "name":
		return d.Name
	case "description":
		return optional(d.Description)
	case "isRepeatable":
		return d.IsRepeatable
	case "locations":
		return append([]string{}, d.Locations...)
	case "args":
		return append([]*schema.InputValue{}, d.Arguments...)
	}
	return nil
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nonNil keeps a missing root type from reaching the executor as a typed nil.
func nonNil(t *schema.Type) any {
	if t == nil {
		return nil
	}
	return t
}

func boolArg(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}
