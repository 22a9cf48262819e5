package language

import (
	"strconv"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

// LoadSchema parses and validates SDL, adding the GraphQL prelude (built-in
// scalars, directives and introspection types).
func LoadSchema(name, sdl string) (*Schema, error) {
	s, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ParseQuery parses a query document without validating it.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseAndValidate parses a query document and validates it against s.
func ParseAndValidate(s *Schema, source string) (*QueryDocument, ErrorList) {
	doc, errs := gqlparser.LoadQuery(s, source)
	if len(errs) > 0 {
		return nil, errs
	}
	return doc, nil
}

// NewError creates a located-less GraphQL error.
func NewError(message string) *Error { return &gqlerror.Error{Message: message} }

// ValueToGo converts a literal AST value to a Go value. Variables resolve
// through vars; a missing variable is nil.
func ValueToGo(v *Value, vars map[string]any) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case Variable:
		return vars[v.Raw]
	case IntValue:
		if n, err := strconv.Atoi(v.Raw); err == nil {
			return n
		}
		return nil
	case FloatValue:
		f, _ := strconv.ParseFloat(v.Raw, 64)
		return f
	case StringValue, BlockValue, EnumValue:
		return v.Raw
	case BooleanValue:
		return v.Raw == "true"
	case ListValue:
		out := make([]any, len(v.Children))
		for i, c := range v.Children {
			out[i] = ValueToGo(c.Value, vars)
		}
		return out
	case ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			out[c.Name] = ValueToGo(c.Value, vars)
		}
		return out
	}
	return nil
}
