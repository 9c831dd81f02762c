package introspection

import (
	"maps"
	"slices"

	schema "github.com/hanpama/gqlbind/internal/schema"
)

// extend copies sch and adds the meta types along with the __schema and
// __type fields of its query root. sch is left untouched.
func extend(sch *schema.Schema) *schema.Schema {
	out := *sch
	out.Types = maps.Clone(sch.Types)
	if out.Types == nil {
		out.Types = map[string]*schema.Type{}
	}
	for _, mt := range schema.MetaTypes() {
		out.Types[mt.Name] = mt
	}
	if q := sch.GetQueryType(); q != nil {
		root := *q
		root.Fields = append(slices.Clip(q.Fields), entryFields()...)
		out.Types[sch.QueryType] = &root
	}
	return &out
}

func entryFields() []*schema.Field {
	return []*schema.Field{
		schema.NewField("__schema", "Access the current type schema of this server.",
			schema.NonNullType(schema.NamedType("__Schema"))),
		schema.NewField("__type", "Request the type information of a single type.",
			schema.NamedType("__Type")).
			AddArgument(schema.NewInputValue("name", "The name of the type to look up.",
				schema.NonNullType(schema.NamedType("String")))),
	}
}
