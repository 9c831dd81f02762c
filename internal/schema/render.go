package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// Render produces SDL from the Schema. Directives and types are sorted by
// name and the specified scalars, @include and @skip are left out.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	formatter.NewFormatter(&b, formatter.WithIndent("  "), formatter.WithBuiltin()).FormatSchemaDocument(s.document())
	return b.String()
}

// DefaultLiteral renders the default value of in as GraphQL source, or
// returns "" when it has none.
func (s *Schema) DefaultLiteral(in *InputValue) string {
	if in.DefaultValue == nil {
		return ""
	}
	return s.valueAST(in.Type, in.DefaultValue).String()
}

func (s *Schema) document() *ast.SchemaDocument {
	doc := &ast.SchemaDocument{}
	if ops := s.operationTypes(); ops != nil {
		doc.Schema = ast.SchemaDefinitionList{{Description: s.Description, OperationTypes: ops}}
	}
	for _, name := range sortedKeys(s.Directives) {
		if d := s.Directives[name]; !isBuiltinDirective(d) {
			doc.Directives = append(doc.Directives, s.directiveAST(d))
		}
	}
	for _, name := range sortedKeys(s.Types) {
		if t := s.Types[name]; !isBuiltinType(t) && !strings.HasPrefix(name, "__") {
			doc.Definitions = append(doc.Definitions, s.definitionAST(t))
		}
	}
	return doc
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

// operationTypes is nil when every root uses its conventional name.
func (s *Schema) operationTypes() ast.OperationTypeDefinitionList {
	conventional := (s.QueryType == "" || s.QueryType == "Query") &&
		(s.MutationType == "" || s.MutationType == "Mutation") &&
		(s.SubscriptionType == "" || s.SubscriptionType == "Subscription")
	if conventional {
		return nil
	}
	ops := ast.OperationTypeDefinitionList{{Operation: ast.Query, Type: s.QueryType}}
	if s.MutationType != "" {
		ops = append(ops, &ast.OperationTypeDefinition{Operation: ast.Mutation, Type: s.MutationType})
	}
	if s.SubscriptionType != "" {
		ops = append(ops, &ast.OperationTypeDefinition{Operation: ast.Subscription, Type: s.SubscriptionType})
	}
	return ops
}

func (s *Schema) definitionAST(t *Type) *ast.Definition {
	def := &ast.Definition{
		Name:        t.Name,
		Description: t.Description,
		Interfaces:  t.Interfaces,
		Directives:  s.usesAST(t.Directives),
	}
	switch t.Kind {
	case TypeKindObject, TypeKindInterface:
		def.Kind = ast.Object
		if t.Kind == TypeKindInterface {
			def.Kind = ast.Interface
		}
		def.Fields = lo.Map(t.Fields, func(f *Field, _ int) *ast.FieldDefinition { return s.fieldAST(f) })
	case TypeKindUnion:
		def.Kind = ast.Union
		def.Types = t.PossibleTypes
	case TypeKindEnum:
		def.Kind = ast.Enum
		def.EnumValues = lo.Map(t.EnumValues, func(v *EnumValue, _ int) *ast.EnumValueDefinition {
			return &ast.EnumValueDefinition{
				Name:        v.Name,
				Description: v.Description,
				Directives:  deprecatedAST(v.IsDeprecated, v.DeprecationReason),
			}
		})
	case TypeKindInputObject:
		def.Kind = ast.InputObject
		def.Fields = lo.Map(t.InputFields, func(in *InputValue, _ int) *ast.FieldDefinition {
			return &ast.FieldDefinition{
				Name:         in.Name,
				Description:  in.Description,
				Type:         typeAST(in.Type),
				DefaultValue: s.defaultAST(in),
				Directives:   deprecatedAST(in.IsDeprecated, in.DeprecationReason),
			}
		})
		if t.OneOf && def.Directives.ForName("oneOf") == nil {
			def.Directives = append(def.Directives, &ast.Directive{Name: "oneOf"})
		}
	default:
		def.Kind = ast.Scalar
		if t.SpecifiedByURL != nil && def.Directives.ForName("specifiedBy") == nil {
			def.Directives = append(def.Directives, &ast.Directive{
				Name:      "specifiedBy",
				Arguments: ast.ArgumentList{{Name: "url", Value: &ast.Value{Kind: ast.StringValue, Raw: *t.SpecifiedByURL}}},
			})
		}
	}
	return def
}

func (s *Schema) fieldAST(f *Field) *ast.FieldDefinition {
	return &ast.FieldDefinition{
		Name:        f.Name,
		Description: f.Description,
		Type:        typeAST(f.Type),
		Arguments:   s.argumentsAST(f.Arguments),
		Directives:  append(s.usesAST(f.Directives), deprecatedAST(f.IsDeprecated, f.DeprecationReason)...),
	}
}

func (s *Schema) argumentsAST(args []*InputValue) ast.ArgumentDefinitionList {
	return lo.Map(args, func(in *InputValue, _ int) *ast.ArgumentDefinition {
		return &ast.ArgumentDefinition{
			Name:         in.Name,
			Description:  in.Description,
			Type:         typeAST(in.Type),
			DefaultValue: s.defaultAST(in),
			Directives:   deprecatedAST(in.IsDeprecated, in.DeprecationReason),
		}
	})
}

func (s *Schema) directiveAST(d *Directive) *ast.DirectiveDefinition {
	return &ast.DirectiveDefinition{
		Name:         d.Name,
		Description:  d.Description,
		Arguments:    s.argumentsAST(d.Arguments),
		IsRepeatable: d.IsRepeatable,
		Locations:    lo.Map(d.Locations, func(l string, _ int) ast.DirectiveLocation { return ast.DirectiveLocation(l) }),
	}
}

// usesAST rebuilds applied directives. Argument types come from the
// directive's definition so enum values print bare.
func (s *Schema) usesAST(uses []*DirectiveUse) ast.DirectiveList {
	return lo.Map(uses, func(u *DirectiveUse, _ int) *ast.Directive {
		d := &ast.Directive{Name: u.Name}
		for _, name := range sortedKeys(u.Arguments) {
			var ref *TypeRef
			if def := s.Directives[u.Name]; def != nil {
				if in, ok := lo.Find(def.Arguments, func(in *InputValue) bool { return in.Name == name }); ok {
					ref = in.Type
				}
			}
			d.Arguments = append(d.Arguments, &ast.Argument{Name: name, Value: s.valueAST(ref, u.Arguments[name])})
		}
		return d
	})
}

func deprecatedAST(deprecated bool, reason string) ast.DirectiveList {
	if !deprecated {
		return nil
	}
	d := &ast.Directive{Name: "deprecated"}
	if reason != "" {
		d.Arguments = ast.ArgumentList{{Name: "reason", Value: &ast.Value{Kind: ast.StringValue, Raw: reason}}}
	}
	return ast.DirectiveList{d}
}

func typeAST(ref *TypeRef) *ast.Type {
	switch ref.Kind {
	case TypeRefKindNonNull:
		t := typeAST(ref.OfType)
		t.NonNull = true
		return t
	case TypeRefKindList:
		return &ast.Type{Elem: typeAST(ref.OfType)}
	}
	return &ast.Type{NamedType: ref.Named}
}

func (s *Schema) defaultAST(in *InputValue) *ast.Value {
	if in.DefaultValue == nil {
		return nil
	}
	return s.valueAST(in.Type, in.DefaultValue)
}

// valueAST converts a coerced value back to a literal. ref may be nil, in
// which case strings print quoted.
func (s *Schema) valueAST(ref *TypeRef, v any) *ast.Value {
	for ref != nil && ref.Kind == TypeRefKindNonNull {
		ref = ref.OfType
	}
	var named *Type
	if ref != nil && ref.Kind == TypeRefKindNamed {
		named = s.Types[ref.Named]
	}

	switch x := v.(type) {
	case nil:
		return &ast.Value{Kind: ast.NullValue, Raw: "null"}
	case bool:
		return &ast.Value{Kind: ast.BooleanValue, Raw: strconv.FormatBool(x)}
	case string:
		if named != nil && named.Kind == TypeKindEnum {
			return &ast.Value{Kind: ast.EnumValue, Raw: x}
		}
		return &ast.Value{Kind: ast.StringValue, Raw: x}
	case int, int32, int64:
		return &ast.Value{Kind: ast.IntValue, Raw: fmt.Sprint(x)}
	case float32:
		return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(float64(x), 'g', -1, 32)}
	case float64:
		return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(x, 'g', -1, 64)}
	case []any:
		var item *TypeRef
		if ref != nil && ref.Kind == TypeRefKindList {
			item = ref.OfType
		}
		out := &ast.Value{Kind: ast.ListValue}
		for _, it := range x {
			out.Children = append(out.Children, &ast.ChildValue{Value: s.valueAST(item, it)})
		}
		return out
	case map[string]any:
		out := &ast.Value{Kind: ast.ObjectValue}
		for _, k := range sortedKeys(x) {
			var field *TypeRef
			if named != nil {
				if in, ok := lo.Find(named.InputFields, func(in *InputValue) bool { return in.Name == k }); ok {
					field = in.Type
				}
			}
			out.Children = append(out.Children, &ast.ChildValue{Name: k, Value: s.valueAST(field, x[k])})
		}
		return out
	}
	return &ast.Value{Kind: ast.EnumValue, Raw: fmt.Sprint(v)}
}
