// Package binder matches schema fields to Go methods, struct fields and map
// keys, and builds the fetch functions that call them.
//
// For a field the binder looks at, in order:
//
//  1. resolvers registered for the type (root resolvers for root types),
//  2. methods of the type's host class,
//  3. exported struct fields or json tags of the host class, for fields
//     without arguments,
//  4. keys of a string-keyed map host class.
//
// Under each source the name variants are tried in priority order: the field
// name with its first letter upper-cased, Is<Name> for Boolean fields,
// Get<Name>, and the CamelCase form of snake_case names.
package binder

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/hanpama/gqlbind/internal/proxy"
	schema "github.com/hanpama/gqlbind/internal/schema"
	"github.com/hanpama/gqlbind/internal/typedict"
	"github.com/hanpama/gqlbind/internal/wrapper"
)

// Operation selects the root type a root resolver serves.
type Operation int

const (
	NoOperation Operation = iota
	Query
	Mutation
	Subscription
)

func (o Operation) String() string {
	switch o {
	case Query:
		return "query"
	case Mutation:
		return "mutation"
	case Subscription:
		return "subscription"
	}
	return "none"
}

// Registration is one resolver instance. An empty TypeName marks a root
// resolver for Operation; otherwise the resolver serves fields of TypeName
// and its methods take the source object after the optional context.
type Registration struct {
	TypeName  string
	Operation Operation
	Instance  any
	// Target is filled from the proxy resolver when left empty.
	Target proxy.Target
}

// MissingFieldHandler serves fields nothing implements.
type MissingFieldHandler func(env *Environment) (any, error)

type Config struct {
	Schema        *schema.Schema
	Catalog       *wrapper.Catalog
	Proxies       *proxy.Resolver
	Dictionary    *typedict.Dictionary
	Registrations []Registration
	MissingField  MissingFieldHandler
	Logger        zerolog.Logger
}

// Binder binds fields of one schema.
type Binder struct {
	schema    *schema.Schema
	catalog   *wrapper.Catalog
	dict      *typedict.Dictionary
	resolvers map[string][]Registration
	missing   MissingFieldHandler
	log       zerolog.Logger
	// hosts are map classes found while building; they stay out of the
	// dictionary since one map type may back several schema types.
	hosts map[string]reflect.Type

	dynamic sync.Map // dynamicKey -> *FieldBinding
}

func New(cfg Config) *Binder {
	b := &Binder{
		schema:    cfg.Schema,
		catalog:   cfg.Catalog,
		dict:      cfg.Dictionary,
		resolvers: make(map[string][]Registration),
		missing:   cfg.MissingField,
		log:       cfg.Logger,
		hosts:     make(map[string]reflect.Type),
	}
	if b.catalog == nil {
		b.catalog = wrapper.NewCatalog()
	}
	if b.dict == nil {
		b.dict = typedict.NewDictionary()
	}
	proxies := cfg.Proxies
	if proxies == nil {
		proxies = proxy.Default()
	}
	for _, r := range cfg.Registrations {
		if r.Target.Class == nil {
			r.Target = proxies.Resolve(r.Instance)
		}
		if r.Target.Class == nil {
			continue
		}
		typeName := r.TypeName
		if typeName == "" {
			typeName = b.rootType(r.Operation)
		}
		if typeName == "" {
			continue
		}
		b.resolvers[typeName] = append(b.resolvers[typeName], r)
	}
	return b
}

func (b *Binder) rootType(op Operation) string {
	switch op {
	case Query:
		return b.schema.QueryType
	case Mutation:
		return b.schema.MutationType
	case Subscription:
		return b.schema.SubscriptionType
	}
	return ""
}

// Catalog is the wrapper catalog used for result plans.
func (b *Binder) Catalog() *wrapper.Catalog { return b.catalog }

// HasResolvers reports whether any resolver was registered for typeName.
func (b *Binder) HasResolvers(typeName string) bool { return len(b.resolvers[typeName]) > 0 }

// HasClass reports whether the host class of typeName is known.
func (b *Binder) HasClass(typeName string) bool { return b.classOf(typeName) != nil }

// UseMap makes the string-keyed map type t the host class of typeName when
// the dictionary has none. A second, different map type fails.
func (b *Binder) UseMap(typeName string, t reflect.Type) error {
	if t.Kind() != reflect.Map || t.Key().Kind() != reflect.String {
		return fmt.Errorf("%s is not a string-keyed map", t)
	}
	if _, ok := b.dict.TypeFor(typeName); ok {
		return nil
	}
	if known, ok := b.hosts[typeName]; ok && known != t {
		return fmt.Errorf("type %s is backed by two different map types %s and %s", typeName, known, t)
	}
	b.hosts[typeName] = t
	return nil
}

// Bind binds one field of an object type.
func (b *Binder) Bind(typeName string, f *schema.Field) (*FieldBinding, error) {
	fb, err := b.bind(typeName, f)
	if err != nil {
		return nil, err
	}
	subscription := typeName == b.schema.SubscriptionType
	if err := fb.Plan.Validate(typeName, f.Name, subscription); err != nil {
		return nil, err
	}
	b.log.Debug().
		Str("type", typeName).
		Str("field", f.Name).
		Str("via", string(fb.Via)).
		Str("target", fb.Target).
		Int("specificity", fb.Specificity).
		Msg("field bound")
	return fb, nil
}

func (b *Binder) bind(typeName string, f *schema.Field) (*FieldBinding, error) {
	names := nameVariants(f)
	var tried []string
	root := b.schema.IsRootType(typeName)
	class := b.classOf(typeName)

	regs := b.resolvers[typeName]
	sources := make([]methodSource, 0, len(regs))
	for _, r := range regs {
		target := r.Target
		sources = append(sources, methodSource{
			class:      target.Class,
			withSource: !root,
			method:     target.Method,
		})
	}
	c, src, err := b.pick(typeName, f, names, sources, class, &tried)
	if err != nil {
		return nil, err
	}
	if c != nil {
		m, ok := src.method(c.name)
		if !ok {
			return nil, fmt.Errorf("resolver %s has no callable method %s", typeLabel(src.class), c.name)
		}
		return b.methodBinding(typeName, f, c, ViaResolver, func(*Environment) (reflect.Value, error) { return m, nil })
	}

	if class != nil {
		fb, err := b.bindClass(typeName, f, names, class, &tried)
		if fb != nil || err != nil {
			return fb, err
		}
	} else if !root && len(regs) == 0 && b.missing == nil {
		return nil, &UnmappedTypeError{Type: typeName}
	}

	if b.missing != nil {
		b.log.Warn().Str("type", typeName).Str("field", f.Name).Msg("field has no resolver, using missing field handler")
		return b.missingBinding(typeName, f), nil
	}
	return nil, &UnresolvedFieldError{Type: typeName, Field: f.Name, Signatures: tried}
}

// classOf is the host class of an object type, from the dictionary or the
// map classes.
func (b *Binder) classOf(typeName string) reflect.Type {
	if t, ok := b.dict.TypeFor(typeName); ok {
		return t
	}
	return b.hosts[typeName]
}

// bindClass searches methods, struct fields and map keys of class. It
// returns nil when nothing fits.
func (b *Binder) bindClass(typeName string, f *schema.Field, names []string, class reflect.Type, tried *[]string) (*FieldBinding, error) {
	base := typedict.Base(class)
	methods := base
	if base.Kind() != reflect.Interface {
		methods = reflect.PointerTo(base)
	}
	c, _, err := b.pick(typeName, f, names, []methodSource{{class: methods}}, nil, tried)
	if err != nil {
		return nil, err
	}
	if c != nil {
		fb, err := b.methodBinding(typeName, f, c, ViaMethod, func(env *Environment) (reflect.Value, error) {
			return methodOn(env.Source, c.name)
		})
		if err != nil {
			return nil, err
		}
		fb.Resolve = b.guard(base, typeName, f, fb.Resolve)
		fb.Fetch = b.guard(base, typeName, f, fb.Fetch)
		return fb, nil
	}
	if len(f.Arguments) > 0 {
		return nil, nil
	}

	switch base.Kind() {
	case reflect.Struct:
		sf, ok := structField(base, f.Name, names)
		*tried = append(*tried, fmt.Sprintf("%s field %s or json tag %q", base, strings.Join(names, "/"), f.Name))
		if ok {
			return b.fieldBinding(typeName, f, base, sf), nil
		}
	case reflect.Map:
		if base.Key().Kind() == reflect.String {
			return b.mapBinding(typeName, f, base), nil
		}
	}
	return nil, nil
}

// structField finds the struct field for a schema field: a json tag equal to
// the field name, then an exported field named like one of the variants.
func structField(st reflect.Type, name string, names []string) (reflect.StructField, bool) {
	fields := lo.Filter(reflect.VisibleFields(st), func(sf reflect.StructField, _ int) bool {
		return sf.IsExported() && !sf.Anonymous
	})
	for _, sf := range fields {
		if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag == name {
			return sf, true
		}
	}
	for _, n := range names {
		for _, sf := range fields {
			if sf.Name == n && sf.Tag.Get("json") != "-" {
				return sf, true
			}
		}
	}
	return reflect.StructField{}, false
}

func methodOn(src any, name string) (reflect.Value, error) {
	rv := reflect.ValueOf(src)
	if !rv.IsValid() {
		return reflect.Value{}, fmt.Errorf("cannot call %s on a nil source", name)
	}
	if m := rv.MethodByName(name); m.IsValid() {
		return m, nil
	}
	if rv.Kind() != reflect.Pointer {
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		if m := ptr.MethodByName(name); m.IsValid() {
			return m, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%T has no method %s", src, name)
}

func (b *Binder) methodBinding(typeName string, f *schema.Field, c *candidate, via Via, callee func(*Environment) (reflect.Value, error)) (*FieldBinding, error) {
	m, _ := c.owner.MethodByName(c.name)
	ft := m.Type
	recv := 1
	if c.owner.Kind() == reflect.Interface {
		recv = 0
	}
	plan := b.catalog.Plan(ft.Out(0))
	label := c.String()

	resolve := func(env *Environment) (out any, err error) {
		defer recoverInto(&err, label)
		fn, err := callee(env)
		if err != nil {
			return nil, err
		}
		in := make([]reflect.Value, c.numIn)
		pos := 0
		if c.ctx {
			in[0] = contextValue(env)
			pos++
		}
		if c.source {
			sv, err := sourceValue(env.Source, ft.In(pos+recv))
			if err != nil {
				return nil, err
			}
			in[pos] = sv
		}
		for _, a := range c.args {
			v, present := env.Args[a.Name]
			if !present && a.NonNull {
				return nil, fmt.Errorf("argument %q is required", a.Name)
			}
			av, err := b.convert(v, a.Type)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", a.Name, err)
			}
			in[a.Position] = av
		}
		if c.env {
			in[c.numIn-1] = reflect.ValueOf(env)
		}
		res := fn.Call(in)
		if len(res) == 2 {
			if err, _ := res[1].Interface().(error); err != nil {
				return nil, err
			}
		}
		return res[0].Interface(), nil
	}
	return &FieldBinding{
		TypeName:    typeName,
		Field:       f.Name,
		Via:         via,
		Target:      label,
		Args:        c.args,
		Specificity: c.score,
		Plan:        plan,
		Resolve:     resolve,
		Fetch:       fetchWith(plan, resolve),
	}, nil
}

func contextValue(env *Environment) reflect.Value {
	if env.Context == nil {
		return reflect.Zero(contextType)
	}
	return reflect.ValueOf(env.Context)
}

func (b *Binder) fieldBinding(typeName string, f *schema.Field, st reflect.Type, sf reflect.StructField) *FieldBinding {
	plan := b.catalog.Plan(sf.Type)
	resolve := func(env *Environment) (any, error) {
		rv := reflect.Indirect(reflect.ValueOf(env.Source))
		if !rv.IsValid() {
			return nil, nil
		}
		fv, err := rv.FieldByIndexErr(sf.Index)
		if err != nil {
			return nil, nil
		}
		return fv.Interface(), nil
	}
	return &FieldBinding{
		TypeName: typeName,
		Field:    f.Name,
		Via:      ViaField,
		Target:   st.String() + "." + sf.Name,
		Plan:     plan,
		Resolve:  b.guard(st, typeName, f, resolve),
		Fetch:    b.guard(st, typeName, f, fetchWith(plan, resolve)),
	}
}

func (b *Binder) mapBinding(typeName string, f *schema.Field, mt reflect.Type) *FieldBinding {
	plan := b.catalog.Plan(mt.Elem())
	resolve := func(env *Environment) (any, error) {
		return mapKey(env.Source, f.Name), nil
	}
	return &FieldBinding{
		TypeName: typeName,
		Field:    f.Name,
		Via:      ViaMapKey,
		Target:   fmt.Sprintf("%s[%q]", mt, f.Name),
		Plan:     plan,
		Resolve:  b.guard(mt, typeName, f, resolve),
		Fetch:    b.guard(mt, typeName, f, fetchWith(plan, resolve)),
	}
}

func mapKey(src any, key string) any {
	rv := reflect.Indirect(reflect.ValueOf(src))
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil
	}
	v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

func (b *Binder) missingBinding(typeName string, f *schema.Field) *FieldBinding {
	plan := b.catalog.Plan(reflect.TypeFor[any]())
	resolve := ResolveFunc(b.missing)
	return &FieldBinding{
		TypeName: typeName,
		Field:    f.Name,
		Via:      ViaMissing,
		Target:   "missing field handler",
		Plan:     plan,
		Resolve:  resolve,
		Fetch:    fetchWith(plan, resolve),
	}
}

type dynamicKey struct {
	typeName string
	field    string
	class    reflect.Type
}

func (b *Binder) resolveDynamic(typeName string, f *schema.Field, env *Environment) (any, error) {
	if env.Source == nil {
		return nil, nil
	}
	class := reflect.TypeOf(env.Source)
	key := dynamicKey{typeName: typeName, field: f.Name, class: class}
	if cached, ok := b.dynamic.Load(key); ok {
		return cached.(*FieldBinding).Fetch(env)
	}
	var tried []string
	fb, err := b.bindClass(typeName, f, nameVariants(f), class, &tried)
	if err != nil {
		return nil, err
	}
	if fb == nil {
		if b.missing != nil {
			fb = b.missingBinding(typeName, f)
		} else {
			return nil, &UnresolvedFieldError{Type: typeName, Field: f.Name, Signatures: tried}
		}
	}
	b.dynamic.Store(key, fb)
	return fb.Fetch(env)
}

// guard sends sources of another class than base to a per-class binding,
// which happens when a field returns values of several Go types.
func (b *Binder) guard(base reflect.Type, typeName string, f *schema.Field, fn func(*Environment) (any, error)) func(*Environment) (any, error) {
	return func(env *Environment) (any, error) {
		if env.Source != nil && typedict.Base(reflect.TypeOf(env.Source)) != base {
			return b.resolveDynamic(typeName, f, env)
		}
		return fn(env)
	}
}

func fetchWith(plan wrapper.Plan, resolve ResolveFunc) FetchFunc {
	return func(env *Environment) (any, error) {
		raw, err := resolve(env)
		if err != nil {
			return nil, err
		}
		return plan.Apply(env.Context, raw)
	}
}

func recoverInto(err *error, label string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s panicked: %v", label, r)
	}
}
