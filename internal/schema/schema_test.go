package schema

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	language "github.com/hanpama/gqlbind/internal/language"
	"github.com/stretchr/testify/require"
)

const librarySDL = `
directive @upper on FIELD_DEFINITION
directive @tag(name: String!) on OBJECT

interface Node { id: ID! }

type Book implements Node @tag(name: "catalog") {
  id: ID!
  title: String @upper
  isbn: String @deprecated(reason: "use id")
}

union SearchResult = Book

enum Genre { FICTION HISTORY @deprecated }

input BookFilter {
  genre: Genre = FICTION
  limit: Int = 10
}

type Query {
  book(id: ID!): Book
  books(filter: BookFilter, first: Int = 5): [Book!]!
  search(text: String!): [SearchResult]
}
`

func TestBuildFromSDL(t *testing.T) {
	s, err := BuildFromSDL(librarySDL)
	require.NoError(t, err)

	require.Equal(t, "Query", s.QueryType)
	require.Empty(t, s.MutationType)
	require.NotNil(t, s.AST)

	t.Run("object fields keep declaration order", func(t *testing.T) {
		book := s.Types["Book"]
		require.NotNil(t, book)
		names := make([]string, len(book.Fields))
		for i, f := range book.Fields {
			names[i] = f.Name
		}
		if diff := cmp.Diff([]string{"id", "title", "isbn"}, names); diff != "" {
			t.Fatalf("fields mismatch (-want +got):\n%s", diff)
		}
		require.Equal(t, []string{"Node"}, book.Interfaces)
	})

	t.Run("applied directives are kept", func(t *testing.T) {
		book := s.Types["Book"]
		want := []*DirectiveUse{{Name: "tag", Arguments: map[string]any{"name": "catalog"}}}
		if diff := cmp.Diff(want, book.Directives); diff != "" {
			t.Fatalf("type directives mismatch (-want +got):\n%s", diff)
		}
		title := book.Field("title")
		require.Len(t, title.Directives, 1)
		require.Equal(t, "upper", title.Directives[0].Name)
	})

	t.Run("deprecation is not a directive use", func(t *testing.T) {
		isbn := s.Field("Book", "isbn")
		require.True(t, isbn.IsDeprecated)
		require.Equal(t, "use id", isbn.DeprecationReason)
		require.Empty(t, isbn.Directives)

		genre := s.Types["Genre"]
		require.True(t, genre.EnumValues[1].IsDeprecated)
		require.Equal(t, "No longer supported", genre.EnumValues[1].DeprecationReason)
	})

	t.Run("defaults are go values", func(t *testing.T) {
		books := s.Field("Query", "books")
		require.Equal(t, 5, books.Argument("first").DefaultValue)
		filter := s.Types["BookFilter"]
		require.Equal(t, "FICTION", filter.InputFields[0].DefaultValue)
		require.Equal(t, 10, filter.InputFields[1].DefaultValue)
	})

	t.Run("abstract types list possible types", func(t *testing.T) {
		require.Equal(t, []string{"Book"}, s.Types["Node"].PossibleTypes)
		require.Equal(t, []string{"Book"}, s.Types["SearchResult"].PossibleTypes)
	})

	t.Run("introspection fields are left to the introspection runtime", func(t *testing.T) {
		require.Nil(t, s.Field("Query", "__schema"))
		_, ok := s.Types["__Schema"]
		require.False(t, ok)
	})
}

func TestBuildRejectsUndefinedDirective(t *testing.T) {
	_, err := BuildFromSDL(`type Query { hello: String @shout }`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "shout")
}

type addTypeFactory struct{ sdl string }

func (f addTypeFactory) Extend(doc *language.SchemaDocument) error {
	extra, err := language.ParseSchema("extra.graphql", f.sdl)
	if err != nil {
		return err
	}
	doc.Definitions = append(doc.Definitions, extra.Definitions...)
	return nil
}

func TestBuildRunsFactoriesBeforeValidation(t *testing.T) {
	s, err := BuildFromSDL(`type Query { extra: Extra }`, addTypeFactory{sdl: `type Extra { ok: Boolean }`})
	require.NoError(t, err)
	require.NotNil(t, s.Types["Extra"])
}

func TestCloneIsolatesFields(t *testing.T) {
	s, err := BuildFromSDL(librarySDL)
	require.NoError(t, err)

	c := s.Clone()
	c.Field("Query", "book").SetAsync(true)

	require.True(t, c.Field("Query", "book").Async)
	require.False(t, s.Field("Query", "book").Async)
	require.Same(t, s.Types["String"], c.Types["String"])
}

func TestRender(t *testing.T) {
	s, err := BuildFromSDL(librarySDL)
	require.NoError(t, err)

	out := Render(s)
	for _, want := range []string{
		`type Book implements Node @tag(name: "catalog") {`,
		`  title: String @upper`,
		`  isbn: String @deprecated(reason: "use id")`,
		`  books(filter: BookFilter, first: Int = 5): [Book!]!`,
		`union SearchResult = Book`,
		`  genre: Genre = FICTION`,
		`directive @upper on FIELD_DEFINITION`,
	} {
		require.Contains(t, out, want)
	}
	require.NotContains(t, out, "schema {")
	require.False(t, strings.Contains(out, "scalar String"))

	again, err := BuildFromSDL(out)
	require.NoError(t, err)
	require.Len(t, again.Types, len(s.Types))
}

func TestRenderSchemaBlockForCustomRoots(t *testing.T) {
	s, err := BuildFromSDL(`schema { query: Root } type Root { ok: Boolean }`)
	require.NoError(t, err)
	require.Contains(t, Render(s), "schema {\n  query: Root\n}")
}

func TestMetaTypes(t *testing.T) {
	byName := map[string]*Type{}
	for _, mt := range MetaTypes() {
		byName[mt.Name] = mt
	}
	require.Len(t, byName, 8)
	require.Equal(t, TypeKindEnum, byName["__TypeKind"].Kind)

	fields := byName["__Type"].Field("fields")
	require.NotNil(t, fields)
	require.Equal(t, false, fields.Argument("includeDeprecated").DefaultValue)

	// each call hands out its own copies
	again := MetaTypes()
	for _, mt := range again {
		require.NotSame(t, byName[mt.Name], mt)
	}
}

func TestDefaultLiteral(t *testing.T) {
	s, err := BuildFromSDL(librarySDL)
	require.NoError(t, err)

	filter := s.Types["BookFilter"]
	require.Equal(t, "FICTION", s.DefaultLiteral(filter.InputFields[0]))
	require.Equal(t, "10", s.DefaultLiteral(filter.InputFields[1]))
	require.Equal(t, "", s.DefaultLiteral(s.Field("Query", "book").Argument("id")))
}
