package executor

import (
	"github.com/hanpama/socialgraph/internal/language"
	"github.com/hanpama/socialgraph/internal/schema"
)

// collectedFieldMap preserves field order from the original query
type collectedFieldMap struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

func (cfm *collectedFieldMap) add(responseName string, field *language.Field) {
	if idx, exists := cfm.index[responseName]; exists {
		cfm.fields[idx].Fields = append(cfm.fields[idx].Fields, field)
		return
	}
	cfm.index[responseName] = len(cfm.fields)
	cfm.fields = append(cfm.fields, collectedField{ResponseName: responseName, Fields: []*language.Field{field}})
}

func (cfm *collectedFieldMap) orderedFields() []collectedField {
	return cfm.fields
}

// collectFields groups the selections that apply to objectType by response name.
func (s *executionState) collectFields(objectType *schema.Type, selectionSet language.SelectionSet) *collectedFieldMap {
	grouped := &collectedFieldMap{index: make(map[string]int)}
	s.collectFieldsImpl(objectType, selectionSet, grouped, make(map[string]bool))
	return grouped
}

func (s *executionState) collectFieldsImpl(objectType *schema.Type, selectionSet language.SelectionSet, grouped *collectedFieldMap, visitedFragments map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !s.shouldIncludeNode(sel.Directives) {
				continue
			}
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			grouped.add(responseName, sel)

		case *language.InlineFragment:
			if !s.shouldIncludeNode(sel.Directives) {
				continue
			}
			if sel.TypeCondition != "" && sel.TypeCondition != objectType.Name {
				continue
			}
			s.collectFieldsImpl(objectType, sel.SelectionSet, grouped, visitedFragments)

		case *language.FragmentSpread:
			if !s.shouldIncludeNode(sel.Directives) || visitedFragments[sel.Name] {
				continue
			}
			visitedFragments[sel.Name] = true

			fragment := s.document.Fragments.ForName(sel.Name)
			if fragment == nil {
				continue
			}
			if fragment.TypeCondition != "" && fragment.TypeCondition != objectType.Name {
				continue
			}
			s.collectFieldsImpl(objectType, fragment.SelectionSet, grouped, visitedFragments)
		}
	}
}

// shouldIncludeNode applies @skip and @include.
func (s *executionState) shouldIncludeNode(directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := s.directiveArg(skip, "if").(bool); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := s.directiveArg(include, "if").(bool); ok && !v {
			return false
		}
	}
	return true
}

func (s *executionState) directiveArg(directive *language.Directive, name string) any {
	if arg := directive.Arguments.ForName(name); arg != nil {
		return language.ValueToGo(arg.Value, s.variables)
	}
	return nil
}
