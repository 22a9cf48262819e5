package executor

import (
	"fmt"
	"math"
	"strconv"

	"github.com/hanpama/socialgraph/internal/language"
	"github.com/hanpama/socialgraph/internal/schema"
)

// coerceVariableValues coerces variable values according to their types
func coerceVariableValues(
	sch *schema.Schema,
	operation *language.OperationDefinition,
	variableValues map[string]any,
) (map[string]any, error) {
	coerced := make(map[string]any)
	for _, varDef := range operation.VariableDefinitions {
		name := varDef.Variable
		t := varDef.Type
		val, ok := variableValues[name]
		if !ok {
			switch {
			case varDef.DefaultValue != nil:
				val = language.ValueToGo(varDef.DefaultValue, nil)
			case t.NonNull:
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, t.String())
			default:
				continue
			}
		}
		cv, err := coerceValue(sch, val, typeRefFromAST(t))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %w", name, t.String(), err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// coerceArgumentValues coerces argument values for a field
func (s *executionState) coerceArgumentValues(fieldDef *schema.Field, arguments language.ArgumentList) (map[string]any, error) {
	coerced := make(map[string]any)
	for _, argDef := range fieldDef.Arguments {
		arg := arguments.ForName(argDef.Name)
		if arg == nil || (arg.Value.Kind == language.Variable && !hasKey(s.variables, arg.Value.Raw)) {
			if argDef.DefaultValue != nil {
				coerced[argDef.Name] = argDef.DefaultValue
			} else if argDef.Type.IsNonNull() {
				return nil, fmt.Errorf("argument %q of required type %s was not provided", argDef.Name, argDef.Type)
			}
			continue
		}
		cv, err := coerceValue(s.schema, language.ValueToGo(arg.Value, s.variables), argDef.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %q cannot be coerced: %w", argDef.Name, err)
		}
		coerced[argDef.Name] = cv
	}
	return coerced, nil
}

func hasKey(m map[string]any, k string) bool {
	_, ok := m[k]
	return ok
}

// coerceValue coerces a value to the specified GraphQL input type
func coerceValue(sch *schema.Schema, value any, targetType *schema.TypeRef) (any, error) {
	if targetType.IsNonNull() {
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type %s", targetType)
		}
		return coerceValue(sch, value, targetType.Unwrap())
	}
	if value == nil {
		return nil, nil
	}

	if targetType.Kind == schema.TypeRefKindList {
		inner := targetType.Unwrap()
		slice, ok := value.([]any)
		if !ok {
			// A single value becomes a list of one.
			item, err := coerceValue(sch, value, inner)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, len(slice))
		for i, item := range slice {
			cv, err := coerceValue(sch, item, inner)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = cv
		}
		return out, nil
	}

	named := targetType.GetNamedType()
	switch named {
	case "Int":
		return coerceToInt(value)
	case "Float":
		return coerceToFloat(value)
	case "String":
		return coerceToString(value)
	case "Boolean":
		return coerceToBoolean(value)
	case "ID":
		return coerceToID(value)
	}

	typ := sch.Types[named]
	if typ == nil {
		return value, nil
	}
	switch typ.Kind {
	case schema.TypeKindInputObject:
		return coerceInputObject(sch, value, typ)
	case schema.TypeKindEnum:
		str, ok := value.(string)
		if ok {
			for _, ev := range typ.EnumValues {
				if ev.Name == str {
					return str, nil
				}
			}
		}
		return nil, fmt.Errorf("%v is not a value of enum %s", value, named)
	}
	return value, nil
}

func coerceInputObject(sch *schema.Schema, value any, typ *schema.Type) (any, error) {
	in, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object for %s, got %T", typ.Name, value)
	}
	for name := range in {
		if typ.InputField(name) == nil {
			return nil, fmt.Errorf("field %q is not defined by %s", name, typ.Name)
		}
	}
	out := make(map[string]any, len(typ.InputFields))
	for _, f := range typ.InputFields {
		v, present := in[f.Name]
		if !present {
			if f.DefaultValue != nil {
				out[f.Name] = f.DefaultValue
			} else if f.Type.IsNonNull() {
				return nil, fmt.Errorf("field %s.%s of required type %s was not provided", typ.Name, f.Name, f.Type)
			}
			continue
		}
		cv, err := coerceValue(sch, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", typ.Name, f.Name, err)
		}
		out[f.Name] = cv
	}
	return out, nil
}

func typeRefFromAST(t *language.Type) *schema.TypeRef {
	if t == nil {
		return nil
	}
	var inner *schema.TypeRef
	if t.Elem != nil {
		inner = schema.ListType(typeRefFromAST(t.Elem))
	} else {
		inner = schema.NamedType(t.NamedType)
	}
	if t.NonNull {
		return schema.NonNullType(inner)
	}
	return inner
}

func coerceToInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) <= math.MaxInt32 {
			return int(v), nil
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to Int", value, value)
}

func coerceToFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to Float", value, value)
}

func coerceToString(value any) (any, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to String", value, value)
}

func coerceToBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to Boolean", value, value)
}

func coerceToID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to ID", value, value)
}
