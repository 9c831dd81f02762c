package wiring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/gqlbind/internal/executor"
	language "github.com/hanpama/gqlbind/internal/language"
	schema "github.com/hanpama/gqlbind/internal/schema"
	"github.com/hanpama/gqlbind/internal/wrapper"
)

const deskSDL = `
interface Item { title: String! }

type Volume implements Item {
  title: String!
  pages: Int
}

type Atlas implements Item {
  title: String!
  region: String
}

type Query {
  items: [Item!]!
  echo(n: Int!, tag: String = "none"): String!
  fail: String
  ready: String
  wait: String
}

type Mutation {
  push(v: String!): [String!]!
  broken: String
}
`

type volume struct {
	Title string
	Pages int
}

type atlas struct {
	Title  string
	Region string
}

// desk answers both query and mutation fields.
type desk struct {
	mu     sync.Mutex
	pushed []string
	cancel context.CancelFunc
}

func (d *desk) Items() []any {
	return []any{&volume{Title: "Dune", Pages: 412}, &atlas{Title: "Times Atlas", Region: "World"}}
}

func (d *desk) Echo(n int, tag string) string { return fmt.Sprintf("%s:%d", tag, n) }

func (d *desk) Fail() (*string, error) { return nil, errors.New("shelf collapsed") }

// Ready cancels the operation; it runs before any async field is awaited.
func (d *desk) Ready() string {
	if d.cancel != nil {
		d.cancel()
	}
	return "ok"
}

func (d *desk) Wait(ctx context.Context) *wrapper.Future[string] {
	return wrapper.Go(ctx, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
}

func (d *desk) Push(v string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pushed = append(d.pushed, v)
	return append([]string(nil), d.pushed...)
}

func (d *desk) Broken() (*string, error) { return nil, errors.New("jammed") }

func deskWiring(t *testing.T, d *desk) *Wiring {
	t.Helper()
	s, err := schema.BuildFromSDL(deskSDL)
	require.NoError(t, err)
	w, err := Build(s,
		WithQueryResolver(d),
		WithMutationResolver(d),
		WithType("Volume", &volume{}),
		WithType("Atlas", &atlas{}),
	)
	require.NoError(t, err)
	return w
}

func run(ctx context.Context, t *testing.T, w *Wiring, query, operation string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	return w.Executor(false).ExecuteRequest(ctx, doc, operation, vars, nil)
}

func dataJSON(t *testing.T, res *executor.ExecutionResult) string {
	t.Helper()
	out, err := json.Marshal(res.Data)
	require.NoError(t, err)
	return string(out)
}

func TestFragmentsAndDirectives(t *testing.T) {
	w := deskWiring(t, &desk{})
	const query = `query($skip: Boolean!) {
		items {
			__typename
			title
			...VolumeFields @skip(if: $skip)
			... on Atlas @include(if: true) { region }
			... on Item { title }
			... @skip(if: true) { title }
		}
	}
	fragment VolumeFields on Volume { pages }`

	res := run(context.Background(), t, w, query, "", map[string]any{"skip": false})
	require.Empty(t, res.Errors)
	require.JSONEq(t, `{"items":[
		{"__typename":"Volume","title":"Dune","pages":412},
		{"__typename":"Atlas","title":"Times Atlas","region":"World"}
	]}`, dataJSON(t, res))

	res = run(context.Background(), t, w, query, "", map[string]any{"skip": true})
	require.Empty(t, res.Errors)
	require.JSONEq(t, `{"items":[
		{"__typename":"Volume","title":"Dune"},
		{"__typename":"Atlas","title":"Times Atlas","region":"World"}
	]}`, dataJSON(t, res))
}

func TestOperationSelection(t *testing.T) {
	w := deskWiring(t, &desk{})
	const doc = `query One { echo(n: 1) } query Two { echo(n: 2, tag: "two") }`

	res := run(context.Background(), t, w, doc, "Two", nil)
	require.Empty(t, res.Errors)
	require.JSONEq(t, `{"echo":"two:2"}`, dataJSON(t, res))

	for _, name := range []string{"", "Three"} {
		res = run(context.Background(), t, w, doc, name, nil)
		require.Equal(t, []executor.GraphQLError{{Message: "operation not found"}}, res.Errors, "operation %q", name)
	}

	res = run(context.Background(), t, w, `query Only { echo(n: 3) }`, "", nil)
	require.Empty(t, res.Errors)
	require.JSONEq(t, `{"echo":"none:3"}`, dataJSON(t, res))
}

func TestVariables(t *testing.T) {
	w := deskWiring(t, &desk{})
	const query = `query($n: Int!, $tag: String) { echo(n: $n, tag: $tag) }`

	// numbers decoded from JSON arrive as float64
	res := run(context.Background(), t, w, query, "", map[string]any{"n": float64(4), "tag": "json"})
	require.Empty(t, res.Errors)
	require.JSONEq(t, `{"echo":"json:4"}`, dataJSON(t, res))

	res = run(context.Background(), t, w, query, "", map[string]any{"n": 5})
	require.Empty(t, res.Errors)
	require.JSONEq(t, `{"echo":"none:5"}`, dataJSON(t, res), "an absent variable leaves the argument default")

	res = run(context.Background(), t, w, query, "", map[string]any{"n": "42"})
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0].Message, "cannot coerce 42 (string) to Int")
	require.Nil(t, res.Data)

	res = run(context.Background(), t, w, query, "", nil)
	require.Equal(t, []executor.GraphQLError{{Message: "variable $n of required type Int! was not provided"}}, res.Errors)
}

func TestPartialFailure(t *testing.T) {
	w := deskWiring(t, &desk{})
	res := run(context.Background(), t, w, `{ fail echo(n: 1) }`, "", nil)

	require.JSONEq(t, `{"fail":null,"echo":"none:1"}`, dataJSON(t, res))
	require.Len(t, res.Errors, 1)
	require.Equal(t, executor.Path{"fail"}, res.Errors[0].Path)
	require.Contains(t, res.Errors[0].Message, "shelf collapsed")
}

func TestMutationKeepsGoingAfterFailure(t *testing.T) {
	w := deskWiring(t, &desk{})
	res := run(context.Background(), t, w, `mutation { a: push(v: "1") broken b: push(v: "2") }`, "", nil)

	require.JSONEq(t, `{"a":["1"],"broken":null,"b":["1","2"]}`, dataJSON(t, res))
	require.Len(t, res.Errors, 1)
	require.Equal(t, executor.Path{"broken"}, res.Errors[0].Path)
	require.Contains(t, res.Errors[0].Message, "jammed")
}

func TestCanceledOperationFailsPendingFutures(t *testing.T) {
	d := &desk{}
	w := deskWiring(t, d)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.cancel = cancel

	res := run(ctx, t, w, `{ ready wait }`, "", nil)
	require.JSONEq(t, `{"ready":"ok","wait":null}`, dataJSON(t, res))
	require.Len(t, res.Errors, 1)
	require.Equal(t, executor.Path{"wait"}, res.Errors[0].Path)
	require.Contains(t, res.Errors[0].Message, context.Canceled.Error())
}
