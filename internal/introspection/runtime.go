package introspection

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/samber/lo"

	executor "github.com/hanpama/gqlbind/internal/executor"
	schema "github.com/hanpama/gqlbind/internal/schema"
)

// Extension is a runtime answering introspection together with the schema it
// must be executed against.
type Extension struct {
	Runtime executor.Runtime
	Schema  *schema.Schema
}

// Wrap adds introspection to base. __schema and __type describe sch as given,
// without the meta types; every other field is left to base.
func Wrap(base executor.Runtime, sch *schema.Schema) *Extension {
	return &Extension{
		Runtime: &runtime{Runtime: base, sch: sch},
		Schema:  extend(sch),
	}
}

type runtime struct {
	executor.Runtime
	sch *schema.Schema
}

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if isMeta(objectType) {
		return r.describe(source, field, args), nil
	}
	if objectType == r.sch.QueryType {
		switch field {
		case "__schema":
			return r.sch, nil
		case "__type":
			name, _ := args["name"].(string)
			return r.named(name), nil
		}
	}
	return r.Runtime.ResolveSync(ctx, objectType, field, source, args)
}

// SerializeLeafValue passes __TypeKind and __DirectiveLocation values
// through; they are produced here as plain strings.
func (r *runtime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	if isMeta(typeName) {
		return value, nil
	}
	return r.Runtime.SerializeLeafValue(ctx, typeName, value)
}

func isMeta(typeName string) bool { return strings.HasPrefix(typeName, "__") }

func (r *runtime) describe(source any, field string, args map[string]any) any {
	switch src := source.(type) {
	case *schema.Schema:
		return r.schemaField(src, field)
	case *schema.Type:
		return r.typeField(src, field, args)
	case *schema.TypeRef:
		return r.refField(src, field, args)
	case *schema.Field:
		return fieldField(src, field, args)
	case *schema.InputValue:
		return r.inputValueField(src, field)
	case *schema.EnumValue:
		return deprecatable(src.Name, src.Description, src.IsDeprecated, src.DeprecationReason, field)
	case *schema.Directive:
		return directiveField(src, field, args)
	}
	return nil
}

// named looks a type up by name. A miss is an untyped nil so the executor
// sees a null rather than a nil pointer.
func (r *runtime) named(name string) any {
	if t := r.sch.Types[name]; t != nil {
		return t
	}
	return nil
}

func (r *runtime) schemaField(s *schema.Schema, field string) any {
	switch field {
	case "description":
		return text(s.Description)
	case "types":
		return byName(slices.Collect(maps.Values(s.Types)), func(t *schema.Type) string { return t.Name })
	case "queryType":
		return r.named(s.QueryType)
	case "mutationType":
		return r.named(s.MutationType)
	case "subscriptionType":
		return r.named(s.SubscriptionType)
	case "directives":
		return byName(slices.Collect(maps.Values(s.Directives)), func(d *schema.Directive) string { return d.Name })
	}
	return nil
}

func (r *runtime) typeField(t *schema.Type, field string, args map[string]any) any {
	hasFields := t.Kind == schema.TypeKindObject || t.Kind == schema.TypeKindInterface
	switch field {
	case "kind":
		return string(t.Kind)
	case "name":
		return t.Name
	case "description":
		return text(t.Description)
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil
		}
		return *t.SpecifiedByURL
	case "fields":
		if !hasFields {
			return nil
		}
		return current(t.Fields, args, func(f *schema.Field) bool { return f.IsDeprecated })
	case "interfaces":
		if !hasFields {
			return nil
		}
		return r.types(t.Interfaces)
	case "possibleTypes":
		if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
			return nil
		}
		return r.types(t.PossibleTypes)
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil
		}
		return current(t.EnumValues, args, func(v *schema.EnumValue) bool { return v.IsDeprecated })
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil
		}
		return current(t.InputFields, args, func(v *schema.InputValue) bool { return v.IsDeprecated })
	case "isOneOf":
		if t.Kind != schema.TypeKindInputObject {
			return nil
		}
		return t.OneOf
	}
	// ofType: named types are never wrappers
	return nil
}

// refField describes a field or argument type. List and non-null wrappers
// are answered here; a named reference is answered by its definition.
func (r *runtime) refField(ref *schema.TypeRef, field string, args map[string]any) any {
	if ref.Kind == schema.TypeRefKindNamed {
		if t := r.sch.Types[ref.Named]; t != nil {
			return r.typeField(t, field, args)
		}
		return nil
	}
	switch field {
	case "kind":
		return string(ref.Kind)
	case "ofType":
		if ref.OfType == nil {
			return nil
		}
		return ref.OfType
	}
	return nil
}

func (r *runtime) types(names []string) []*schema.Type {
	return lo.FilterMap(names, func(name string, _ int) (*schema.Type, bool) {
		t := r.sch.Types[name]
		return t, t != nil
	})
}

func fieldField(f *schema.Field, field string, args map[string]any) any {
	switch field {
	case "args":
		return current(f.Arguments, args, func(a *schema.InputValue) bool { return a.IsDeprecated })
	case "type":
		return f.Type
	}
	return deprecatable(f.Name, f.Description, f.IsDeprecated, f.DeprecationReason, field)
}

func (r *runtime) inputValueField(v *schema.InputValue, field string) any {
	switch field {
	case "type":
		return v.Type
	case "defaultValue":
		return text(r.sch.DefaultLiteral(v))
	}
	return deprecatable(v.Name, v.Description, v.IsDeprecated, v.DeprecationReason, field)
}

func directiveField(d *schema.Directive, field string, args map[string]any) any {
	switch field {
	case "name":
		return d.Name
	case "description":
		return text(d.Description)
	case "isRepeatable":
		return d.IsRepeatable
	case "locations":
		return d.Locations
	case "args":
		return current(d.Arguments, args, func(a *schema.InputValue) bool { return a.IsDeprecated })
	}
	return nil
}

// deprecatable answers the fields shared by __Field, __InputValue and
// __EnumValue.
func deprecatable(name, description string, deprecated bool, reason, field string) any {
	switch field {
	case "name":
		return name
	case "description":
		return text(description)
	case "isDeprecated":
		return deprecated
	case "deprecationReason":
		if !deprecated {
			return nil
		}
		return reason
	}
	return nil
}

// current drops deprecated items unless includeDeprecated is set.
func current[T any](items []T, args map[string]any, deprecated func(T) bool) []T {
	all, _ := args["includeDeprecated"].(bool)
	return lo.Reject(items, func(item T, _ int) bool { return !all && deprecated(item) })
}

func byName[T any](items []T, name func(T) string) []T {
	slices.SortFunc(items, func(a, b T) int { return strings.Compare(name(a), name(b)) })
	return items
}

func text(s string) any {
	if s == "" {
		return nil
	}
	return s
}
