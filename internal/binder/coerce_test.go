package binder

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/gqlbind/internal/schema"
	"github.com/hanpama/gqlbind/internal/wrapper"
)

func TestConvert(t *testing.T) {
	b := New(Config{Schema: schema.NewSchema("")})
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   any
		typ  reflect.Type
		want any
	}{
		{"int to int32", 7, reflect.TypeFor[int32](), int32(7)},
		{"integral float to int", 2.0, reflect.TypeFor[int](), 2},
		{"int id to string", 42, reflect.TypeFor[string](), "42"},
		{"string id to int64", "42", reflect.TypeFor[int64](), int64(42)},
		{"int to float", 3, reflect.TypeFor[float64](), 3.0},
		{"list", []any{"a", "b"}, reflect.TypeFor[[]string](), []string{"a", "b"}},
		{"single value to list", "a", reflect.TypeFor[[]string](), []string{"a"}},
		{"null to zero", nil, reflect.TypeFor[int](), 0},
		{"null to optional", nil, reflect.TypeFor[wrapper.Optional[int]](), wrapper.None[int]()},
		{"value to optional", 5, reflect.TypeFor[wrapper.Optional[int]](), wrapper.Some(5)},
		{"value to sql null", "x", reflect.TypeFor[sql.NullString](), sql.NullString{String: "x", Valid: true}},
		{"text unmarshaler", "2024-03-01T00:00:00Z", reflect.TypeFor[time.Time](), day},
		{"map stays map", map[string]any{"a": 1}, reflect.TypeFor[map[string]any](), map[string]any{"a": 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := b.convert(tc.in, tc.typ)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, v.Interface(), cmp.AllowUnexported(wrapper.Optional[int]{})); diff != "" {
				t.Fatalf("convert mismatch (-want +got):\n%s", diff)
			}
		})
	}

	failures := []struct {
		name string
		in   any
		typ  reflect.Type
	}{
		{"overflow", 300, reflect.TypeFor[int8]()},
		{"fraction to int", 1.5, reflect.TypeFor[int]()},
		{"negative to uint", -1, reflect.TypeFor[uint]()},
		{"bool to string", true, reflect.TypeFor[string]()},
	}
	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.convert(tc.in, tc.typ)
			require.Error(t, err)
		})
	}
}

func TestArgScore(t *testing.T) {
	s, err := schema.BuildFromSDL(`
enum Genre { FICTION }
input Filter { title: String }
type Query { x: Int }
`)
	require.NoError(t, err)
	b := New(Config{Schema: s})

	cases := []struct {
		name string
		typ  reflect.Type
		ref  *schema.TypeRef
		want int
	}{
		{"identical", reflect.TypeFor[int](), schema.NamedType("Int"), scoreIdentical},
		{"non-null is ignored", reflect.TypeFor[string](), schema.NonNullType(schema.NamedType("String")), scoreIdentical},
		{"boxed", reflect.TypeFor[*bool](), schema.NamedType("Boolean"), scoreBoxed},
		{"optional", reflect.TypeFor[wrapper.Optional[float64]](), schema.NamedType("Float"), scoreBoxed},
		{"interface", reflect.TypeFor[any](), schema.NamedType("Int"), scoreInterface},
		{"enum as string", reflect.TypeFor[genre](), schema.NamedType("Genre"), scoreIdentical},
		{"input struct", reflect.TypeFor[bookFilter](), schema.NamedType("Filter"), scoreIdentical},
		{"input map", reflect.TypeFor[map[string]any](), schema.NamedType("Filter"), scoreBoxed},
		{"list", reflect.TypeFor[[]int](), schema.ListType(schema.NamedType("Int")), scoreIdentical},
		{"wrong kind", reflect.TypeFor[string](), schema.NamedType("Int"), scoreNone},
		{"list needs slice", reflect.TypeFor[int](), schema.ListType(schema.NamedType("Int")), scoreNone},
		{"context is never an argument", contextType, schema.NamedType("String"), scoreNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, b.argScore(tc.typ, tc.ref))
		})
	}
}

func TestNameVariantOrder(t *testing.T) {
	f := schema.NewField("in_stock", "", schema.NamedType("Boolean"))
	require.Equal(t, []string{"In_stock", "IsIn_stock", "GetIn_stock", "InStock", "GetInStock"}, nameVariants(f))

	f = schema.NewField("title", "", schema.NamedType("String"))
	require.Equal(t, []string{"Title", "GetTitle"}, nameVariants(f))
}
