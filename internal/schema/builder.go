package schema

import (
	"fmt"
	"strings"

	"github.com/hanpama/socialgraph/internal/language"
	"github.com/vektah/gqlparser/v2/ast"
)

// Classifier reports whether field f of parent is resolved through the
// batched async path.
type Classifier func(src *ast.Schema, parent *ast.Definition, f *ast.FieldDefinition) bool

// AsyncObjects classifies every root field, and every field whose named type
// is an object, as async. Scalar and enum fields are plain projections of the
// parent value.
func AsyncObjects(src *ast.Schema, parent *ast.Definition, f *ast.FieldDefinition) bool {
	if strings.HasPrefix(parent.Name, "__") {
		return false
	}
	if isRoot(src, parent.Name) {
		return true
	}
	def := src.Types[f.Type.Name()]
	return def != nil && def.Kind == ast.Object
}

func isRoot(src *ast.Schema, name string) bool {
	return (src.Query != nil && src.Query.Name == name) || (src.Mutation != nil && src.Mutation.Name == name)
}

// BuildFromSDL loads sdl with gqlparser and builds the executable schema.
func BuildFromSDL(name, sdl string, classify Classifier) (*Schema, error) {
	src, err := language.LoadSchema(name, sdl)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", name, err)
	}
	return Build(src, classify)
}

// Build converts a validated gqlparser schema. Interfaces and unions are
// rejected: the executor only completes concrete object types.
func Build(src *ast.Schema, classify Classifier) (*Schema, error) {
	if classify == nil {
		classify = AsyncObjects
	}
	if src.Subscription != nil {
		return nil, fmt.Errorf("subscription type %s is not supported", src.Subscription.Name)
	}
	s := &Schema{
		Types:      make(map[string]*Type, len(src.Types)),
		Directives: make(map[string]*Directive, len(src.Directives)),
		Source:     src,
	}
	if src.Query != nil {
		s.QueryType = src.Query.Name
	}
	if src.Mutation != nil {
		s.MutationType = src.Mutation.Name
	}
	for name, def := range src.Types {
		t := &Type{Name: name, Kind: TypeKind(def.Kind), Description: def.Description, BuiltIn: def.BuiltIn}
		switch def.Kind {
		case ast.Object:
			for _, f := range def.Fields {
				if strings.HasPrefix(f.Name, "__") {
					continue
				}
				t.Fields = append(t.Fields, buildField(src, def, f, classify))
			}
		case ast.InputObject:
			for _, f := range def.Fields {
				t.InputFields = append(t.InputFields, buildInputValue(f.Name, f.Description, f.Type, f.DefaultValue))
			}
		case ast.Enum:
			for _, v := range def.EnumValues {
				ev := &EnumValue{Name: v.Name, Description: v.Description}
				ev.IsDeprecated, ev.DeprecationReason = deprecation(v.Directives)
				t.EnumValues = append(t.EnumValues, ev)
			}
		case ast.Scalar:
		default:
			if def.BuiltIn {
				continue
			}
			return nil, fmt.Errorf("type %s: %s types are not supported", name, def.Kind)
		}
		s.Types[name] = t
	}
	for name, def := range src.Directives {
		d := &Directive{Name: name, Description: def.Description, IsRepeatable: def.IsRepeatable}
		for _, loc := range def.Locations {
			d.Locations = append(d.Locations, string(loc))
		}
		for _, a := range def.Arguments {
			d.Arguments = append(d.Arguments, buildInputValue(a.Name, a.Description, a.Type, a.DefaultValue))
		}
		s.Directives[name] = d
	}
	return s, nil
}

func buildField(src *ast.Schema, parent *ast.Definition, f *ast.FieldDefinition, classify Classifier) *Field {
	field := &Field{
		Name:        f.Name,
		Description: f.Description,
		Type:        typeRef(f.Type),
		Async:       classify(src, parent, f),
	}
	for _, a := range f.Arguments {
		field.Arguments = append(field.Arguments, buildInputValue(a.Name, a.Description, a.Type, a.DefaultValue))
	}
	field.IsDeprecated, field.DeprecationReason = deprecation(f.Directives)
	return field
}

func buildInputValue(name, desc string, t *ast.Type, def *ast.Value) *InputValue {
	iv := &InputValue{Name: name, Description: desc, Type: typeRef(t)}
	if def != nil {
		iv.DefaultValue = language.ValueToGo(def, nil)
		iv.DefaultLiteral = def.String()
	}
	return iv
}

func deprecation(dirs ast.DirectiveList) (bool, string) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return false, ""
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return true, arg.Value.Raw
	}
	return true, ""
}

func typeRef(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var inner *TypeRef
	if t.Elem != nil {
		inner = ListType(typeRef(t.Elem))
	} else {
		inner = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(inner)
	}
	return inner
}
