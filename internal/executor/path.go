package executor

import (
	"strconv"
	"strings"
)

type Path []PathElement

// PathElement is a response name (string) or a list index (int).
type PathElement any

func (p Path) String() string {
	var b strings.Builder
	for i, elem := range p {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		case int:
			b.WriteString("[" + strconv.Itoa(v) + "]")
		}
	}
	return b.String()
}

func appendPath(path Path, elem PathElement) Path {
	out := make(Path, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

// lookup walks the response tree. It does not create missing entries.
func lookup(root map[string]any, path Path) (any, bool) {
	var cur any = root
	for _, elem := range path {
		switch e := elem.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			if cur, ok = m[e]; !ok {
				return nil, false
			}
		case int:
			l, ok := cur.([]any)
			if !ok || e >= len(l) {
				return nil, false
			}
			cur = l[e]
		}
	}
	return cur, true
}

// setValueAtPath writes value into an existing slot of the response tree.
func setValueAtPath(root map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	parent, ok := lookup(root, path[:len(path)-1])
	if !ok {
		return
	}
	switch e := path[len(path)-1].(type) {
	case string:
		if m, ok := parent.(map[string]any); ok {
			m[e] = value
		}
	case int:
		if l, ok := parent.([]any); ok && e < len(l) {
			l[e] = value
		}
	}
}
