package executor

import (
	"github.com/samber/lo"

	language "github.com/hanpama/gqlbind/internal/language"
	schema "github.com/hanpama/gqlbind/internal/schema"
)

// fieldGroup is every selection of one response name.
type fieldGroup struct {
	name   string
	fields []*language.Field
}

// collect flattens the selection set for obj, following fragments whose type
// condition applies. Groups come in the order their response name first
// appears; each named fragment is visited once.
func (x *execution) collect(obj *schema.Type, set language.SelectionSet) []fieldGroup {
	var groups []fieldGroup
	index := map[string]int{}
	visited := map[string]bool{}

	var walk func(language.SelectionSet)
	walk = func(set language.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *language.Field:
				if !x.included(s.Directives) {
					continue
				}
				name := s.Alias
				if name == "" {
					name = s.Name
				}
				if i, ok := index[name]; ok {
					groups[i].fields = append(groups[i].fields, s)
					continue
				}
				index[name] = len(groups)
				groups = append(groups, fieldGroup{name: name, fields: []*language.Field{s}})
			case *language.InlineFragment:
				if x.included(s.Directives) && x.applies(obj, s.TypeCondition) {
					walk(s.SelectionSet)
				}
			case *language.FragmentSpread:
				if !x.included(s.Directives) || visited[s.Name] {
					continue
				}
				visited[s.Name] = true
				frag := x.doc.Fragments.ForName(s.Name)
				if frag != nil && x.applies(obj, frag.TypeCondition) && x.included(frag.Directives) {
					walk(frag.SelectionSet)
				}
			}
		}
	}
	walk(set)
	return groups
}

// applies matches a type condition against the object type itself, the
// interfaces it implements and the unions containing it.
func (x *execution) applies(obj *schema.Type, condition string) bool {
	if condition == "" || condition == obj.Name || lo.Contains(obj.Interfaces, condition) {
		return true
	}
	t := x.schema.Types[condition]
	return t != nil && t.Kind == schema.TypeKindUnion && lo.Contains(t.PossibleTypes, obj.Name)
}

// included applies @skip and @include. A condition that is not a boolean is
// ignored.
func (x *execution) included(directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil {
		if skip, ok := x.condition(d); ok && skip {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if include, ok := x.condition(d); ok && !include {
			return false
		}
	}
	return true
}

func (x *execution) condition(d *language.Directive) (bool, bool) {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false, false
	}
	b, ok := literalValue(arg.Value, x.vars).(bool)
	return b, ok
}
