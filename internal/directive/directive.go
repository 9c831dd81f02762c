// Package directive applies schema directives to bound fields. A directive
// is implemented by a Transform that wraps the field's fetch function.
package directive

import (
	"context"

	"github.com/samber/lo"

	"github.com/hanpama/gqlbind/internal/binder"
	schema "github.com/hanpama/gqlbind/internal/schema"
	"github.com/hanpama/gqlbind/internal/wrapper"
)

// Environment is handed to a Transform for one directive use on one field.
type Environment struct {
	TypeName  string
	Field     *schema.Field
	Directive *schema.DirectiveUse
	// Fetch is the function being wrapped, which already includes the
	// transforms of earlier directives.
	Fetch binder.FetchFunc
}

// Transform returns the fetch function that replaces env.Fetch.
type Transform func(env Environment) binder.FetchFunc

// Directives handled by the engine itself.
var builtin = []string{"deprecated", "specifiedBy", "oneOf", "include", "skip", "connection"}

type Registry struct {
	transforms map[string]Transform
}

func NewRegistry() *Registry {
	return &Registry{transforms: make(map[string]Transform)}
}

// Register sets the transform for name, replacing an earlier one.
func (r *Registry) Register(name string, t Transform) {
	r.transforms[name] = t
}

func (r *Registry) Lookup(name string) (Transform, bool) {
	t, ok := r.transforms[name]
	return t, ok
}

func (r *Registry) Len() int { return len(r.transforms) }

// Apply wraps fetch with the directives of obj and then those of f, each in
// declaration order, so the last field directive is outermost. It returns
// the names of directives without a transform.
func (r *Registry) Apply(obj *schema.Type, f *schema.Field, fetch binder.FetchFunc) (binder.FetchFunc, []string) {
	var unresolved []string
	uses := append(append([]*schema.DirectiveUse(nil), obj.Directives...), f.Directives...)
	for _, use := range uses {
		t, ok := r.transforms[use.Name]
		if !ok {
			if !lo.Contains(builtin, use.Name) {
				unresolved = append(unresolved, use.Name)
			}
			continue
		}
		fetch = t(Environment{TypeName: obj.Name, Field: f, Directive: use, Fetch: fetch})
	}
	return fetch, lo.Uniq(unresolved)
}

// MapResult applies fn to a fetched value. Futures are chained rather than
// awaited; a nil value is passed to fn as is.
func MapResult(ctx context.Context, v any, fn func(any) (any, error)) (any, error) {
	if a, ok := v.(wrapper.Awaitable); ok {
		return wrapper.Chain(ctx, a, fn), nil
	}
	return fn(v)
}

// Wrap is a convenience for transforms that only post-process results.
func Wrap(fn func(env Environment, v any) (any, error)) Transform {
	return func(env Environment) binder.FetchFunc {
		next := env.Fetch
		return func(fe *binder.Environment) (any, error) {
			v, err := next(fe)
			if err != nil {
				return nil, err
			}
			return MapResult(fe.Context, v, func(v any) (any, error) { return fn(env, v) })
		}
	}
}
