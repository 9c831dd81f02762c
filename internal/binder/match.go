package binder

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iancoleman/strcase"
	"github.com/samber/lo"

	schema "github.com/hanpama/gqlbind/internal/schema"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	envType     = reflect.TypeFor[*Environment]()
	errorType   = reflect.TypeFor[error]()
)

// Argument scores. A candidate's specificity is the sum over its arguments.
const (
	scoreNone      = 0
	scoreInterface = 1
	scoreBoxed     = 2
	scoreIdentical = 3
)

// nameVariants lists the Go names a field may be implemented under, in
// priority order.
func nameVariants(f *schema.Field) []string {
	exact := upperFirst(f.Name)
	names := []string{exact}
	if f.Type.GetNamedType() == "Boolean" {
		names = append(names, "Is"+exact)
	}
	names = append(names, "Get"+exact)
	if strings.Contains(f.Name, "_") {
		camel := strcase.ToCamel(f.Name)
		names = append(names, camel, "Get"+camel)
	}
	return lo.Uniq(names)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// candidate is a method whose signature fits a field.
type candidate struct {
	owner  reflect.Type
	name   string
	ctx    bool
	source bool
	env    bool
	numIn  int
	args   []ArgumentBinding
	score  int
}

func (c *candidate) String() string {
	return fmt.Sprintf("%s.%s", typeLabel(c.owner), c.name)
}

func typeLabel(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		return "(" + t.String() + ")"
	}
	return t.String()
}

// match checks ft, a method type, against the field. recv is 1 when ft
// carries the receiver as its first parameter.
func (b *Binder) match(owner reflect.Type, name string, ft reflect.Type, recv int, f *schema.Field, withSource bool, class reflect.Type) (*candidate, bool) {
	if ft.IsVariadic() {
		return nil, false
	}
	switch ft.NumOut() {
	case 1:
	case 2:
		if ft.Out(1) != errorType {
			return nil, false
		}
	default:
		return nil, false
	}

	c := &candidate{owner: owner, name: name, numIn: ft.NumIn() - recv}
	i, n := recv, ft.NumIn()
	if i < n && ft.In(i) == contextType {
		c.ctx = true
		i++
	}
	if withSource {
		if i >= n || !acceptsSource(ft.In(i), class) {
			return nil, false
		}
		c.source = true
		i++
	}
	if n > i && ft.In(n-1) == envType {
		c.env = true
		n--
	}
	if n-i != len(f.Arguments) {
		return nil, false
	}
	for j, arg := range f.Arguments {
		p := ft.In(i + j)
		s := b.argScore(p, arg.Type)
		if s == scoreNone {
			return nil, false
		}
		c.args = append(c.args, ArgumentBinding{
			Name:     arg.Name,
			Position: i + j - recv,
			NonNull:  arg.Type.IsNonNull(),
			Type:     p,
			Score:    s,
		})
		c.score += s
	}
	return c, true
}

// argScore rates how well parameter p accepts values of schema type t.
func (b *Binder) argScore(p reflect.Type, t *schema.TypeRef) int {
	if t.IsNonNull() {
		t = t.OfType
	}
	if p == contextType || p == envType {
		return scoreNone
	}
	if p.Kind() == reflect.Interface {
		if p.NumMethod() == 0 {
			return scoreInterface
		}
		return scoreNone
	}
	if inner, _, ok := b.catalog.OptionalOf(p); ok {
		if b.argScore(inner, t) > scoreNone {
			return scoreBoxed
		}
		return scoreNone
	}
	if p.Kind() == reflect.Pointer {
		if b.argScore(p.Elem(), t) > scoreNone {
			return scoreBoxed
		}
		return scoreNone
	}
	if t.Kind == schema.TypeRefKindList {
		if p.Kind() != reflect.Slice {
			return scoreNone
		}
		return b.argScore(p.Elem(), t.OfType)
	}

	k := p.Kind()
	switch t.Named {
	case "Int":
		return scoreIf(isIntKind(k) || isUintKind(k))
	case "Float":
		return scoreIf(k == reflect.Float32 || k == reflect.Float64)
	case "String":
		return scoreIf(k == reflect.String)
	case "Boolean":
		return scoreIf(k == reflect.Bool)
	case "ID":
		return scoreIf(k == reflect.String || isIntKind(k))
	}
	named := b.schema.Types[t.Named]
	if named == nil {
		return scoreNone
	}
	switch named.Kind {
	case schema.TypeKindEnum, schema.TypeKindScalar:
		return scoreIf(k == reflect.String || reflect.PointerTo(p).Implements(textUnmarshalerType))
	case schema.TypeKindInputObject:
		switch {
		case k == reflect.Struct:
			return scoreIdentical
		case k == reflect.Map && p.Key().Kind() == reflect.String:
			return scoreBoxed
		}
	}
	return scoreNone
}

func scoreIf(ok bool) int {
	if ok {
		return scoreIdentical
	}
	return scoreNone
}

// methodSource is a type whose methods are searched.
type methodSource struct {
	class      reflect.Type
	withSource bool
	// method returns the callable for name; nil means the method is bound
	// to the source value on each call.
	method func(name string) (reflect.Value, bool)
}

// pick walks the name variants in priority order and returns the most
// specific fitting method under the first name that has one.
func (b *Binder) pick(typeName string, f *schema.Field, names []string, sources []methodSource, sourceClass reflect.Type, tried *[]string) (*candidate, *methodSource, error) {
	for _, name := range names {
		var found []*candidate
		var from []*methodSource
		for i := range sources {
			s := &sources[i]
			*tried = append(*tried, b.signature(s.class, name, f, s.withSource))
			m, ok := s.class.MethodByName(name)
			if !ok {
				continue
			}
			recv := 1
			if s.class.Kind() == reflect.Interface {
				recv = 0
			}
			c, ok := b.match(s.class, name, m.Type, recv, f, s.withSource, sourceClass)
			if !ok {
				continue
			}
			found = append(found, c)
			from = append(from, s)
		}
		if len(found) == 0 {
			continue
		}
		order := make([]int, len(found))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool { return found[order[i]].score > found[order[j]].score })
		best := found[order[0]]
		if len(order) > 1 && found[order[1]].score == best.score {
			tied := lo.Filter(order, func(i int, _ int) bool { return found[i].score == best.score })
			return nil, nil, &AmbiguousFieldError{
				Type:  typeName,
				Field: f.Name,
				Candidates: lo.Map(tied, func(i int, _ int) string {
					return found[i].String()
				}),
			}
		}
		return best, from[order[0]], nil
	}
	return nil, nil, nil
}

// signature renders the accepted shape of a method for error messages.
func (b *Binder) signature(class reflect.Type, name string, f *schema.Field, withSource bool) string {
	parts := []string{"[ctx context.Context]"}
	if withSource {
		parts = append(parts, "source")
	}
	for _, a := range f.Arguments {
		parts = append(parts, a.Name+" "+typeRefString(a.Type))
	}
	parts = append(parts, "[env *binder.Environment]")
	return fmt.Sprintf("%s.%s(%s)", typeLabel(class), name, strings.Join(parts, ", "))
}

func typeRefString(t *schema.TypeRef) string {
	switch t.Kind {
	case schema.TypeRefKindNonNull:
		return typeRefString(t.OfType) + "!"
	case schema.TypeRefKindList:
		return "[" + typeRefString(t.OfType) + "]"
	}
	return t.Named
}
