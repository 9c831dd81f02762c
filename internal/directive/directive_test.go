package directive

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/gqlbind/internal/binder"
	schema "github.com/hanpama/gqlbind/internal/schema"
	"github.com/hanpama/gqlbind/internal/wrapper"
)

func upper() Transform {
	return Wrap(func(_ Environment, v any) (any, error) {
		s, _ := v.(string)
		return strings.ToUpper(s), nil
	})
}

func suffix() Transform {
	return Wrap(func(env Environment, v any) (any, error) {
		return fmt.Sprintf("%v%v", v, env.Directive.Arg("with")), nil
	})
}

func TestApplyOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("upper", upper())
	r.Register("suffix", suffix())

	obj := schema.NewType("Book", schema.TypeKindObject, "").
		AddDirective(&schema.DirectiveUse{Name: "suffix", Arguments: map[string]any{"with": "!"}})
	field := schema.NewField("title", "", schema.NamedType("String")).
		AddDirective(&schema.DirectiveUse{Name: "upper"}).
		AddDirective(&schema.DirectiveUse{Name: "suffix", Arguments: map[string]any{"with": "?"}}).
		AddDirective(&schema.DirectiveUse{Name: "deprecated"}).
		AddDirective(&schema.DirectiveUse{Name: "audit"})
	base := func(*binder.Environment) (any, error) { return "dune", nil }

	fetch, unresolved := r.Apply(obj, field, base)
	require.Equal(t, []string{"audit"}, unresolved)

	out, err := fetch(&binder.Environment{Context: context.Background()})
	require.NoError(t, err)
	// object suffix, then upper, then field suffix
	require.Equal(t, "DUNE!?", out)
}

func TestMapResultChainsFutures(t *testing.T) {
	ctx := context.Background()
	double := func(v any) (any, error) { return v.(int) * 2, nil }

	out, err := MapResult(ctx, 4, double)
	require.NoError(t, err)
	require.Equal(t, 8, out)

	out, err = MapResult(ctx, wrapper.Resolved[any](5), double)
	require.NoError(t, err)
	a, ok := out.(wrapper.Awaitable)
	require.True(t, ok)
	wctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	v, err := a.AwaitAny(wctx)
	require.NoError(t, err)
	require.Equal(t, 10, v)
}

func TestErrorsSkipTheTransform(t *testing.T) {
	r := NewRegistry()
	r.Register("upper", upper())
	field := schema.NewField("title", "", schema.NamedType("String")).AddDirective(&schema.DirectiveUse{Name: "upper"})
	failing := func(*binder.Environment) (any, error) { return nil, fmt.Errorf("not found") }

	fetch, _ := r.Apply(schema.NewType("Book", schema.TypeKindObject, ""), field, failing)
	_, err := fetch(&binder.Environment{Context: context.Background()})
	require.EqualError(t, err, "not found")
}
