// Package wiring binds a schema to Go resolvers and exposes the result as an
// executor.Runtime.
//
// Build walks the object types reachable from the operation roots (and the
// explicitly registered types), binds every field, applies directives and
// records the Go types it discovers along the way in a type dictionary.
// Types whose Go type is not known when they are reached are bound last, and
// if still unknown their fields are looked up on each source value.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/hanpama/gqlbind/internal/binder"
	"github.com/hanpama/gqlbind/internal/eventbus"
	"github.com/hanpama/gqlbind/internal/events"
	"github.com/hanpama/gqlbind/internal/executor"
	"github.com/hanpama/gqlbind/internal/introspection"
	schema "github.com/hanpama/gqlbind/internal/schema"
	"github.com/hanpama/gqlbind/internal/typedict"
	"github.com/hanpama/gqlbind/internal/wrapper"
)

// Wiring is an immutable binding of a schema to resolvers.
type Wiring struct {
	schema   *schema.Schema
	dict     *typedict.Dictionary
	catalog  *wrapper.Catalog
	scalars  map[string]ScalarSerializer
	fields   map[string]map[string]*boundField
	log      zerolog.Logger
	numBound int

	// awaitLimit bounds concurrent awaits in a batch; <= 0 means no bound.
	awaitLimit int
}

type boundField struct {
	*binder.FieldBinding
	// fetch is the binding's Fetch wrapped by directives.
	fetch binder.FetchFunc
}

var _ executor.Runtime = (*Wiring)(nil)

// Schema returns the bound schema. Fields whose results may suspend have
// Async set.
func (w *Wiring) Schema() *schema.Schema { return w.schema }

// Dictionary returns the frozen type dictionary.
func (w *Wiring) Dictionary() *typedict.Dictionary { return w.dict }

// Binding returns the binding of a field, or nil.
func (w *Wiring) Binding(typeName, field string) *binder.FieldBinding {
	if bf := w.fields[typeName][field]; bf != nil {
		return bf.FieldBinding
	}
	return nil
}

// Executor returns an executor over the wiring, with introspection when
// requested.
func (w *Wiring) Executor(introspect bool) *executor.Executor {
	if !introspect {
		return executor.NewExecutor(w, w.schema)
	}
	iw := introspection.Wrap(w, w.schema)
	return executor.NewExecutor(iw.Runtime, iw.Schema)
}

type builder struct {
	cfg    *config
	schema *schema.Schema
	dict   *typedict.Dictionary
	binder *binder.Binder
	wiring *Wiring
	done   map[string]bool
	errs   BuildErrors
}

// Build binds s. The schema is not modified.
func Build(s *schema.Schema, opts ...Option) (*Wiring, error) {
	if s == nil {
		return nil, errors.New("wiring: nil schema")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	started := time.Now()

	sch := s.Clone()
	b := &builder{
		cfg:    cfg,
		schema: sch,
		dict:   typedict.NewDictionary(),
		done:   make(map[string]bool),
		wiring: &Wiring{
			schema:  sch,
			catalog: cfg.catalog,
			scalars: cfg.scalars,
			fields:  make(map[string]map[string]*boundField),
			log:     cfg.logger,

			awaitLimit: cfg.awaitLimit,
		},
	}
	err := b.build()
	eventbus.Publish(context.Background(), events.BuildFinish{
		Types:    len(b.wiring.fields),
		Fields:   b.wiring.numBound,
		Errors:   b.errs,
		Duration: time.Since(started),
	})
	if err != nil {
		cfg.logger.Error().Err(err).Msg("wiring failed")
		return nil, err
	}
	b.wiring.dict = b.dict.Freeze()
	cfg.logger.Info().
		Int("types", len(b.wiring.fields)).
		Int("fields", b.wiring.numBound).
		Int("dictionary", b.dict.Len()).
		Dur("took", time.Since(started)).
		Msg("wiring built")
	return b.wiring, nil
}

// fail records err. It returns true when the build has to stop.
func (b *builder) fail(err error) bool {
	b.errs = append(b.errs, err)
	return !b.cfg.collectErrors
}

func (b *builder) result() error {
	switch {
	case len(b.errs) == 0:
		return nil
	case !b.cfg.collectErrors:
		return b.errs[0]
	default:
		return b.errs
	}
}

func (b *builder) build() error {
	for _, ts := range b.cfg.types {
		if b.schema.Types[ts.name] == nil {
			if b.fail(fmt.Errorf("type %s is not defined in the schema", ts.name)) {
				return b.result()
			}
			continue
		}
		if err := b.dict.Add(ts.name, ts.sample); err != nil && b.fail(err) {
			return b.result()
		}
	}
	for _, r := range b.cfg.registrations {
		if r.Instance == nil {
			target := r.TypeName
			if target == "" {
				target = r.Operation.String()
			}
			if b.fail(fmt.Errorf("nil resolver registered for %s", target)) {
				return b.result()
			}
			continue
		}
		if r.TypeName != "" && b.schema.Types[r.TypeName] == nil {
			if b.fail(fmt.Errorf("resolver registered for unknown type %s", r.TypeName)) {
				return b.result()
			}
		}
	}

	b.binder = binder.New(binder.Config{
		Schema:        b.schema,
		Catalog:       b.cfg.catalog,
		Proxies:       b.cfg.proxies,
		Dictionary:    b.dict,
		Registrations: b.cfg.registrations,
		MissingField:  b.cfg.missing,
		Logger:        b.cfg.logger,
	})

	queue := b.roots()
	force := false
	for len(queue) > 0 {
		var next, deferred []string
		progressed := false
		for _, name := range queue {
			if b.done[name] {
				continue
			}
			if !force && !b.ready(name) {
				deferred = append(deferred, name)
				continue
			}
			refs, stop := b.bindType(name)
			if stop {
				return b.result()
			}
			progressed = true
			next = append(next, refs...)
		}
		force = !progressed
		queue = append(next, deferred...)
	}

	for _, name := range sortedKeys(b.schema.Types) {
		t := b.schema.Types[name]
		if t.Kind == schema.TypeKindObject && !b.done[name] && !isIntrospectionType(name) {
			b.cfg.logger.Debug().Str("type", name).Msg("type is not reachable, skipped")
		}
	}
	return b.result()
}

// roots are the operation types, then the types named by options.
func (b *builder) roots() []string {
	roots := lo.Compact([]string{b.schema.QueryType, b.schema.MutationType, b.schema.SubscriptionType})
	for _, ts := range b.cfg.types {
		roots = append(roots, ts.name)
	}
	for _, r := range b.cfg.registrations {
		if r.TypeName != "" {
			roots = append(roots, r.TypeName)
		}
	}
	return lo.Uniq(roots)
}

// ready reports whether the Go side of a type is known.
func (b *builder) ready(name string) bool {
	if b.schema.IsRootType(name) || b.binder.HasResolvers(name) {
		return true
	}
	t := b.schema.Types[name]
	if t == nil || t.Kind != schema.TypeKindObject {
		return true
	}
	return b.binder.HasClass(name)
}

// bindType binds the fields of an object type and returns the types its
// fields refer to. Abstract types only contribute their possible types.
func (b *builder) bindType(name string) ([]string, bool) {
	b.done[name] = true
	t := b.schema.Types[name]
	if t == nil {
		return nil, false
	}
	switch t.Kind {
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return t.PossibleTypes, false
	case schema.TypeKindObject:
	default:
		return nil, false
	}

	fields := make(map[string]*boundField, len(t.Fields))
	var refs []string
	for _, f := range t.Fields {
		if isIntrospectionField(f.Name) {
			continue
		}
		fb, err := b.binder.Bind(name, f)
		if err != nil {
			if b.fail(err) {
				return nil, true
			}
			// one error per unmapped type, not per field
			var unmapped *binder.UnmappedTypeError
			if errors.As(err, &unmapped) {
				break
			}
			continue
		}
		fetch, unresolved := b.cfg.directives.Apply(t, f, fb.Fetch)
		if len(unresolved) > 0 {
			b.cfg.logger.Debug().Str("type", name).Str("field", f.Name).Strs("directives", unresolved).Msg("directives without transform")
		}
		// Mutation fields all go through the ordered batch so that sync and
		// async ones run in document order.
		f.Async = fb.Suspends() || name == b.schema.MutationType
		fields[f.Name] = &boundField{FieldBinding: fb, fetch: fetch}
		b.wiring.numBound++

		if err := b.discover(f.Type, fb.Plan.Result); err != nil && b.fail(err) {
			return nil, true
		}
		refs = append(refs, f.Type.GetNamedType())
	}
	b.wiring.fields[name] = fields
	return refs, false
}

// discover records the Go type a field returns for object-typed fields.
func (b *builder) discover(ref *schema.TypeRef, result reflect.Type) error {
	named := b.schema.Types[ref.GetNamedType()]
	if named == nil || named.Kind != schema.TypeKindObject || result == nil {
		return nil
	}
	elem := result
	for {
		switch elem.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			elem = elem.Elem()
			continue
		}
		p := b.cfg.catalog.Plan(elem)
		if len(p.Steps) == 0 {
			break
		}
		elem = p.Result
	}
	if elem.Kind() == reflect.Map && elem.Key().Kind() == reflect.String {
		return b.binder.UseMap(named.Name, elem)
	}
	if elem.Kind() != reflect.Struct {
		return nil
	}
	if known, ok := b.dict.TypeFor(named.Name); ok && known == elem {
		return nil
	}
	if err := b.dict.Put(named.Name, elem); err != nil {
		return err
	}
	b.cfg.logger.Debug().Str("type", named.Name).Str("go_type", elem.String()).Msg("type discovered")
	return nil
}

func isIntrospectionField(name string) bool {
	return name == "__typename" || name == "__schema" || name == "__type"
}

func isIntrospectionType(name string) bool {
	return len(name) > 1 && name[:2] == "__"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
