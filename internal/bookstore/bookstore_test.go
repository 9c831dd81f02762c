package bookstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/gqlbind/internal/executor"
	"github.com/hanpama/gqlbind/internal/language"
	"github.com/hanpama/gqlbind/internal/wiring"
)

type fixture struct {
	store *Store
	w     *wiring.Wiring
}

func newFixture(t *testing.T, role string) *fixture {
	t.Helper()
	s, err := Schema()
	require.NoError(t, err)
	store := Seeded()
	w, err := Wire(s, store, zerolog.Nop(), func(context.Context) string { return role })
	require.NoError(t, err)
	return &fixture{store: store, w: w}
}

func (f *fixture) run(t *testing.T, query string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	return f.w.Executor(false).ExecuteRequest(context.Background(), doc, "", vars, nil)
}

func (f *fixture) data(t *testing.T, query string) string {
	t.Helper()
	res := f.run(t, query, nil)
	require.Empty(t, res.Errors)
	out, err := json.Marshal(res.Data)
	require.NoError(t, err)
	return string(out)
}

func TestBook(t *testing.T) {
	f := newFixture(t, "")
	got := f.data(t, `{
		book(id: "b1") {
			id title subtitle genre published isbn
			author { name born }
			rating
			reviews { stars text }
		}
	}`)
	require.JSONEq(t, `{"book": {
		"id": "b1", "title": "Dune", "subtitle": null, "genre": "FICTION",
		"published": "1965-08-01", "isbn": "978-0441013593",
		"author": {"name": "FRANK HERBERT", "born": "1920-10-08"},
		"rating": 4.5,
		"reviews": [{"stars": 5, "text": "A classic."}, {"stars": 4, "text": null}]
	}}`, got)

	got = f.data(t, `{ book(id: "b4") { subtitle rating isbn } missing: book(id: "zz") { id } }`)
	require.JSONEq(t, `{"book": {"subtitle": "A Vision of the Human Future in Space", "rating": null, "isbn": null}, "missing": null}`, got)
}

func TestBooksConnection(t *testing.T) {
	f := newFixture(t, "")
	got := f.data(t, `{
		books(filter: {genre: FICTION}, first: 2) {
			edges { node { title } }
			pageInfo { hasNextPage }
		}
	}`)
	require.JSONEq(t, `{"books": {
		"edges": [{"node": {"title": "Dune"}}, {"node": {"title": "Dune Messiah"}}],
		"pageInfo": {"hasNextPage": true}
	}}`, got)

	got = f.data(t, `{ books(filter: {publishedAfter: "1969-06-01"}) { edges { node { title } } } }`)
	require.JSONEq(t, `{"books": {"edges": [{"node": {"title": "Dune Messiah"}}, {"node": {"title": "Pale Blue Dot"}}]}}`, got)

	got = f.data(t, `{ authors { id books(first: 1) { edges { node { title } } } } }`)
	require.JSONEq(t, `{"authors": [
		{"id": "a1", "books": {"edges": [{"node": {"title": "Dune"}}]}},
		{"id": "a2", "books": {"edges": [{"node": {"title": "The Left Hand of Darkness"}}]}},
		{"id": "a3", "books": {"edges": [{"node": {"title": "Pale Blue Dot"}}]}}
	]}`, got)
}

func TestAbstractTypes(t *testing.T) {
	f := newFixture(t, "")
	got := f.data(t, `{
		search(text: "le") {
			__typename
			... on Book { title }
			... on Author { name }
		}
		node(id: "a3") { id ... on Author { name } }
	}`)
	require.JSONEq(t, `{
		"search": [
			{"__typename": "Book", "title": "The Left Hand of Darkness"},
			{"__typename": "Book", "title": "Pale Blue Dot"},
			{"__typename": "Author", "name": "URSULA K. LE GUIN"}
		],
		"node": {"id": "a3", "name": "CARL SAGAN"}
	}`, got)
}

func TestAuthDirective(t *testing.T) {
	res := newFixture(t, "reader").run(t, `{ stats { books } }`, nil)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0].Message, `Stats.books requires role "admin"`)
	out, err := json.Marshal(res.Data)
	require.NoError(t, err)
	require.JSONEq(t, `{"stats": null}`, string(out))

	got := newFixture(t, "admin").data(t, `{ stats { books authors reviews } }`)
	require.JSONEq(t, `{"stats": {"books": 4, "authors": 3, "reviews": 2}}`, got)
}

func TestMutations(t *testing.T) {
	f := newFixture(t, "")
	res := f.run(t, `mutation Add($in: BookInput!) {
		addBook(input: $in) { id title genre published subtitle author { id } }
		rateBook(id: "b5", stars: 3) { rating reviews { text } }
	}`, map[string]any{"in": map[string]any{
		"title":     "Cosmos",
		"authorId":  "a3",
		"genre":     "SCIENCE",
		"published": "1980-10-01",
		"subtitle":  "A Personal Voyage",
	}})
	require.Empty(t, res.Errors)
	out, err := json.Marshal(res.Data)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"addBook": {"id": "b5", "title": "Cosmos", "genre": "SCIENCE", "published": "1980-10-01", "subtitle": "A Personal Voyage", "author": {"id": "a3"}},
		"rateBook": {"rating": 3, "reviews": [{"text": null}]}
	}`, string(out))

	res = f.run(t, `mutation { rateBook(id: "b1", stars: 9) { id } }`, nil)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0].Message, "stars must be between 1 and 5")

	res = f.run(t, `mutation { addBook(input: {title: "X", authorId: "nobody", genre: HISTORY}) { id } }`, nil)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0].Message, `author "nobody" not found`)
	require.Equal(t, 5, f.store.Stats().Books)
}

func TestBookAddedSubscription(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc, err := language.ParseQuery(`subscription { bookAdded(genre: HISTORY) { title author { name } } }`)
	require.NoError(t, err)
	events, err := f.w.Executor(false).Subscribe(ctx, doc, "", nil)
	require.NoError(t, err)

	_, err = f.store.AddBook(BookInput{Title: "Children of Dune", AuthorID: "a1", Genre: Fiction})
	require.NoError(t, err)
	_, err = f.store.AddBook(BookInput{Title: "The Dispossessed", AuthorID: "a2", Genre: History})
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.Empty(t, ev.Errors)
		out, err := json.Marshal(ev.Data)
		require.NoError(t, err)
		require.JSONEq(t, `{"bookAdded": {"title": "The Dispossessed", "author": {"name": "URSULA K. LE GUIN"}}}`, string(out))
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestDateScalar(t *testing.T) {
	d := NewDate(2024, time.February, 29)
	for _, v := range []any{d, &d, d.Time} {
		got, err := serializeDate(v)
		require.NoError(t, err)
		require.Equal(t, "2024-02-29", got)
	}
	_, err := serializeDate("2024-02-29")
	require.Error(t, err)

	var back Date
	require.NoError(t, back.UnmarshalText([]byte("2024-02-29")))
	require.True(t, back.Equal(d.Time))
	require.ErrorContains(t, back.UnmarshalText([]byte("29/02/2024")), "want YYYY-MM-DD")
}
