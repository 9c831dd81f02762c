package schema

import (
	"fmt"
	"sort"
	"strings"

	language "github.com/hanpama/gqlbind/internal/language"
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/validator"
)

// DefinitionFactory contributes definitions derived from the parsed SDL
// before validation, e.g. generated connection types.
type DefinitionFactory interface {
	Extend(doc *language.SchemaDocument) error
}

// Build parses, extends and validates the SDL sources and converts the result
// into an executable Schema. Validation (unknown types, undefined directives,
// interface conformance) is performed by gqlparser.
func Build(sources []*language.Source, factories ...DefinitionFactory) (*Schema, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no schema sources")
	}
	all := append([]*language.Source{validator.Prelude}, sources...)
	doc, err := language.ParseSchemas(all...)
	if err != nil {
		return nil, err
	}
	for _, f := range factories {
		if err := f.Extend(doc); err != nil {
			return nil, err
		}
	}
	as, err := validator.ValidateSchemaDocument(doc)
	if err != nil {
		return nil, err
	}
	return FromAST(as), nil
}

// BuildFromSDL builds a schema from a single SDL string.
func BuildFromSDL(sdl string, factories ...DefinitionFactory) (*Schema, error) {
	return Build([]*language.Source{{Name: "schema.graphql", Input: sdl}}, factories...)
}

// FromAST converts a validated gqlparser schema. Built-in definitions other
// than the specified scalars and @include/@skip are dropped.
func FromAST(as *ast.Schema) *Schema {
	s := NewSchema(as.Description)
	s.AST = as
	if as.Query != nil {
		s.SetQueryType(as.Query.Name)
	}
	if as.Mutation != nil {
		s.SetMutationType(as.Mutation.Name)
	}
	if as.Subscription != nil {
		s.SetSubscriptionType(as.Subscription.Name)
	}
	scalars, dirs := specified()
	for _, t := range scalars {
		s.AddType(t)
	}
	for _, d := range dirs {
		s.AddDirective(d)
	}

	for _, def := range as.Types {
		if def.BuiltIn || strings.HasPrefix(def.Name, "__") {
			continue
		}
		s.AddType(typeFromAST(as, def))
	}
	for _, dir := range as.Directives {
		if dir.Position != nil && dir.Position.Src != nil && dir.Position.Src.BuiltIn {
			continue
		}
		s.AddDirective(directiveFromAST(dir))
	}
	return s
}

func typeFromAST(as *ast.Schema, def *ast.Definition) *Type {
	var t *Type
	switch def.Kind {
	case ast.Object, ast.Interface:
		kind := TypeKindObject
		if def.Kind == ast.Interface {
			kind = TypeKindInterface
		}
		t = NewType(def.Name, kind, def.Description)
		for _, name := range def.Interfaces {
			t.AddInterface(name)
		}
		for _, f := range def.Fields {
			if strings.HasPrefix(f.Name, "__") {
				continue
			}
			t.AddField(fieldFromAST(f))
		}
		if def.Kind == ast.Interface {
			names := lo.Map(as.PossibleTypes[def.Name], func(d *ast.Definition, _ int) string { return d.Name })
			sort.Strings(names)
			for _, name := range names {
				t.AddPossibleType(name)
			}
		}
	case ast.Union:
		t = NewType(def.Name, TypeKindUnion, def.Description)
		for _, name := range def.Types {
			t.AddPossibleType(name)
		}
	case ast.Enum:
		t = NewType(def.Name, TypeKindEnum, def.Description)
		for _, v := range def.EnumValues {
			ev := NewEnumValue(v.Name, v.Description)
			if reason, ok := deprecation(v.Directives); ok {
				ev.Deprecate(reason)
			}
			t.AddEnumValue(ev)
		}
	case ast.InputObject:
		t = NewType(def.Name, TypeKindInputObject, def.Description).
			SetOneOf(def.Directives.ForName("oneOf") != nil)
		for _, f := range def.Fields {
			in := NewInputValue(f.Name, f.Description, RefFromAST(f.Type)).
				SetDefault(literal(f.DefaultValue))
			if reason, ok := deprecation(f.Directives); ok {
				in.Deprecate(reason)
			}
			t.AddInputField(in)
		}
	default:
		t = NewType(def.Name, TypeKindScalar, def.Description)
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if url, ok := directiveArguments(d)["url"].(string); ok {
				t.SpecifiedByURL = &url
			}
		}
	}
	t.Directives = directiveUses(def.Directives)
	return t
}

func fieldFromAST(def *ast.FieldDefinition) *Field {
	f := NewField(def.Name, def.Description, RefFromAST(def.Type))
	if reason, ok := deprecation(def.Directives); ok {
		f.Deprecate(reason)
	}
	for _, arg := range def.Arguments {
		in := NewInputValue(arg.Name, arg.Description, RefFromAST(arg.Type)).
			SetDefault(literal(arg.DefaultValue))
		if reason, ok := deprecation(arg.Directives); ok {
			in.Deprecate(reason)
		}
		f.AddArgument(in)
	}
	f.Directives = directiveUses(def.Directives)
	return f
}

func directiveFromAST(def *ast.DirectiveDefinition) *Directive {
	d := NewDirective(def.Name, def.Description).SetRepeatable(def.IsRepeatable)
	for _, loc := range def.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range def.Arguments {
		d.AddArgument(NewInputValue(arg.Name, arg.Description, RefFromAST(arg.Type)).
			SetDefault(literal(arg.DefaultValue)))
	}
	return d
}

// RefFromAST converts a parsed type reference such as [String!]!.
func RefFromAST(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(RefFromAST(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

// directiveUses keeps every applied directive except @deprecated, which is
// reflected in IsDeprecated instead.
func directiveUses(list ast.DirectiveList) []*DirectiveUse {
	var out []*DirectiveUse
	for _, d := range list {
		if d.Name == "deprecated" {
			continue
		}
		out = append(out, &DirectiveUse{Name: d.Name, Arguments: directiveArguments(d)})
	}
	return out
}

func directiveArguments(d *ast.Directive) map[string]any {
	args := make(map[string]any, len(d.Arguments))
	for _, a := range d.Arguments {
		args[a.Name] = literal(a.Value)
	}
	return args
}

func deprecation(list ast.DirectiveList) (string, bool) {
	d := list.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if reason, ok := directiveArguments(d)["reason"].(string); ok {
		return reason, true
	}
	return "No longer supported", true
}

// literal converts a constant SDL value into the Go representation used by
// the executor's coercion (int for Int literals).
func literal(v *ast.Value) any {
	if v == nil {
		return nil
	}
	raw, err := v.Value(nil)
	if err != nil {
		return nil
	}
	return normalizeLiteral(raw)
}

func normalizeLiteral(v any) any {
	switch x := v.(type) {
	case int64:
		return int(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = normalizeLiteral(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = normalizeLiteral(item)
		}
		return out
	default:
		return v
	}
}

// ----- programmatic construction -----

func NewSchema(description string) *Schema {
	return &Schema{
		Types:       make(map[string]*Type),
		Directives:  make(map[string]*Directive),
		Description: description,
	}
}

func (s *Schema) SetQueryType(name string) *Schema        { s.QueryType = name; return s }
func (s *Schema) SetMutationType(name string) *Schema     { s.MutationType = name; return s }
func (s *Schema) SetSubscriptionType(name string) *Schema { s.SubscriptionType = name; return s }

func (s *Schema) AddType(t *Type) *Schema {
	s.Types[t.Name] = t
	return s
}

func (s *Schema) AddDirective(d *Directive) *Schema {
	s.Directives[d.Name] = d
	return s
}

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type              { t.Fields = append(t.Fields, f); return t }
func (t *Type) AddInterface(name string) *Type       { t.Interfaces = append(t.Interfaces, name); return t }
func (t *Type) AddPossibleType(name string) *Type    { t.PossibleTypes = append(t.PossibleTypes, name); return t }
func (t *Type) AddEnumValue(v *EnumValue) *Type      { t.EnumValues = append(t.EnumValues, v); return t }
func (t *Type) AddInputField(v *InputValue) *Type    { t.InputFields = append(t.InputFields, v); return t }
func (t *Type) SetOneOf(oneOf bool) *Type            { t.OneOf = oneOf; return t }
func (t *Type) AddDirective(d *DirectiveUse) *Type   { t.Directives = append(t.Directives, d); return t }
func (f *Field) AddDirective(d *DirectiveUse) *Field { f.Directives = append(f.Directives, d); return f }

func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

func (f *Field) SetAsync(async bool) *Field { f.Async = async; return f }

func (f *Field) Deprecate(reason string) *Field {
	f.IsDeprecated = true
	f.DeprecationReason = reason
	return f
}

func (f *Field) AddArgument(arg *InputValue) *Field {
	f.Arguments = append(f.Arguments, arg)
	return f
}

// Argument returns the argument definition with the given name or nil.
func (f *Field) Argument(name string) *InputValue {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func NewInputValue(name, description string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Description: description, Type: typ}
}

func (v *InputValue) SetDefault(value any) *InputValue { v.DefaultValue = value; return v }

func (v *InputValue) Deprecate(reason string) *InputValue {
	v.IsDeprecated = true
	v.DeprecationReason = reason
	return v
}

func NewEnumValue(name, description string) *EnumValue {
	return &EnumValue{Name: name, Description: description}
}

func (v *EnumValue) Deprecate(reason string) *EnumValue {
	v.IsDeprecated = true
	v.DeprecationReason = reason
	return v
}

func NewDirective(name, description string) *Directive {
	return &Directive{Name: name, Description: description}
}

func (d *Directive) SetRepeatable(repeatable bool) *Directive { d.IsRepeatable = repeatable; return d }

func (d *Directive) AddArgument(arg *InputValue) *Directive {
	d.Arguments = append(d.Arguments, arg)
	return d
}
