package executor

import (
	"fmt"
	"reflect"

	"github.com/hanpama/socialgraph/internal/language"
	"github.com/hanpama/socialgraph/internal/schema"
)

// executeSelectionSet executes a selection set without flushing. It returns
// nil when a Non-Null child came back null.
func (s *executionState) executeSelectionSet(objectType *schema.Type, selectionSet language.SelectionSet, objectValue any, path Path) map[string]any {
	result := make(map[string]any)
	if !s.executeFields(objectType, s.collectFields(objectType, selectionSet).orderedFields(), objectValue, path, result) {
		return nil
	}
	return result
}

// executeFields writes each collected field into result. Async fields are
// queued and hold a nil placeholder until their depth is flushed.
func (s *executionState) executeFields(objectType *schema.Type, fields []collectedField, objectValue any, path Path, result map[string]any) bool {
	for _, cf := range fields {
		fieldPath := appendPath(path, cf.ResponseName)
		value, done := s.executeField(objectType, objectValue, cf.Fields, fieldPath)
		result[cf.ResponseName] = value
		if !done {
			continue
		}
		if value == nil {
			if _, nn := s.nonNull[fieldPath.String()]; nn {
				s.nullify(path)
				return false
			}
		}
	}
	return true
}

// executeField resolves a sync field in place, or queues an async one and
// reports done == false.
func (s *executionState) executeField(objectType *schema.Type, objectValue any, fields []*language.Field, path Path) (value any, done bool) {
	field := fields[0]
	if field.Name == "__typename" {
		return objectType.Name, true
	}

	fieldDef := objectType.Field(field.Name)
	if fieldDef == nil {
		s.addError(fmt.Sprintf("Cannot query field %q on type %q", field.Name, objectType.Name), path)
		return nil, true
	}
	if fieldDef.Type.IsNonNull() {
		s.nonNull[path.String()] = struct{}{}
	}

	args, err := s.coerceArgumentValues(fieldDef, field.Arguments)
	if err != nil {
		s.addError(err.Error(), path)
		return nil, true
	}

	if fieldDef.Async {
		s.pending = append(s.pending, asyncTask{
			Task: AsyncResolveTask{
				ObjectType: objectType.Name,
				Field:      field.Name,
				Source:     objectValue,
				Args:       args,
				Path:       path,
			},
			Path:      path,
			FieldType: fieldDef.Type,
			Fields:    fields,
		})
		return nil, false
	}

	resolved, err := s.runtime.ResolveSync(s.ctx, objectType.Name, field.Name, objectValue, args)
	return s.completeField(fieldDef.Type, fields, resolved, err, path), true
}

func (s *executionState) completeField(fieldType *schema.TypeRef, fields []*language.Field, resolved any, err error, path Path) any {
	if err != nil {
		s.fieldError(err, path)
		return nil
	}
	return s.completeValue(fieldType, fields, resolved, path)
}

// completeValue completes a value. A nil return is a GraphQL null.
func (s *executionState) completeValue(fieldType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	if fieldType.IsNonNull() {
		if isNullish(result) {
			if _, ok := s.errored[path.String()]; !ok {
				s.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", path), path)
			}
			return nil
		}
		return s.completeValue(fieldType.Unwrap(), fields, result, path)
	}

	if isNullish(result) {
		return nil
	}

	if fieldType.Kind == schema.TypeRefKindList {
		return s.completeListValue(fieldType, fields, result, path)
	}

	namedType := fieldType.GetNamedType()
	typeObj := s.schema.Types[namedType]
	if typeObj == nil {
		s.addError(fmt.Sprintf("Unknown type: %s", namedType), path)
		return nil
	}

	switch typeObj.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		serialized, err := s.runtime.SerializeLeafValue(s.ctx, namedType, result)
		if err != nil {
			s.fieldError(err, path)
			return nil
		}
		if isNullish(serialized) {
			return nil
		}
		return serialized
	case schema.TypeKindObject:
		obj := s.executeSelectionSet(typeObj, mergeSelectionSets(fields), result, path)
		if obj == nil {
			return nil
		}
		return obj
	default:
		s.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", typeObj.Kind), path)
		return nil
	}
}

// completeListValue completes a list value
func (s *executionState) completeListValue(listType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	var items []any
	if direct, ok := result.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			s.addError(fmt.Sprintf("Expected list value, got %T", result), path)
			return nil
		}
		items = make([]any, rv.Len())
		for i := range rv.Len() {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := listType.Unwrap()
	completed := make([]any, len(items))
	for i, item := range items {
		itemPath := appendPath(path, i)
		if inner.IsNonNull() {
			s.nonNull[itemPath.String()] = struct{}{}
		}
		v := s.completeValue(inner, fields, item, itemPath)
		if v == nil && inner.IsNonNull() {
			s.nullify(path)
			return nil
		}
		completed[i] = v
	}
	return completed
}

// mergeSelectionSets merges selection sets from multiple fields
func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
