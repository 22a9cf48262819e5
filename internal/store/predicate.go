package store

import (
	"fmt"
	"slices"
)

type predicateOp int

const (
	opAll predicateOp = iota
	opEquals
	opEqualsAnyOf
	opInArray
	opInArrayAnyOf
)

// Predicate selects rows by the value of one field. The zero value selects
// every row.
type Predicate struct {
	op    predicateOp
	key   string
	value any
	set   map[any]struct{}
	// values keeps the caller's order for String and for callers that need it back
	values []any
}

// All selects every row.
func All() Predicate { return Predicate{op: opAll} }

// Equals selects rows where row[key] == v.
func Equals(key string, v any) Predicate {
	return Predicate{op: opEquals, key: key, value: v}
}

// EqualsAnyOf selects rows where row[key] is one of vs.
func EqualsAnyOf[V comparable](key string, vs []V) Predicate {
	p := Predicate{op: opEqualsAnyOf, key: key, set: make(map[any]struct{}, len(vs))}
	for _, v := range vs {
		p.set[v] = struct{}{}
		p.values = append(p.values, v)
	}
	return p
}

// InArray selects rows whose array-valued row[key] contains v.
func InArray(key string, v string) Predicate {
	return Predicate{op: opInArray, key: key, value: v}
}

// InArrayAnyOf selects rows whose array-valued row[key] contains at least one of vs.
func InArrayAnyOf(key string, vs []string) Predicate {
	p := Predicate{op: opInArrayAnyOf, key: key, set: make(map[any]struct{}, len(vs))}
	for _, v := range vs {
		p.set[v] = struct{}{}
		p.values = append(p.values, v)
	}
	return p
}

// Key is the field the predicate inspects; empty for All.
func (p Predicate) Key() string { return p.key }

func (p Predicate) String() string {
	switch p.op {
	case opEquals:
		return fmt.Sprintf("%s = %v", p.key, p.value)
	case opEqualsAnyOf:
		return fmt.Sprintf("%s in %v", p.key, p.values)
	case opInArray:
		return fmt.Sprintf("%s contains %v", p.key, p.value)
	case opInArrayAnyOf:
		return fmt.Sprintf("%s contains any of %v", p.key, p.values)
	default:
		return "all"
	}
}

// match evaluates p against the field value fv.
func (p Predicate) match(fv any) bool {
	if p.op == opAll {
		return true
	}
	list, isList := fv.([]string)
	switch p.op {
	case opEquals:
		return !isList && fv == p.value
	case opEqualsAnyOf:
		if isList {
			return false
		}
		_, hit := p.set[fv]
		return hit
	case opInArray:
		s, _ := p.value.(string)
		return isList && slices.Contains(list, s)
	case opInArrayAnyOf:
		if !isList {
			return false
		}
		for _, v := range list {
			if _, hit := p.set[v]; hit {
				return true
			}
		}
	}
	return false
}
