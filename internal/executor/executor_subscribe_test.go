package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	schema "github.com/hanpama/gqlbind/internal/schema"
	"github.com/stretchr/testify/require"
)

func newSubscriptionSchema() *schema.Schema {
	sch := &schema.Schema{
		QueryType:        "Query",
		SubscriptionType: "Subscription",
		Types: map[string]*schema.Type{
			"Query": {Name: "Query", Kind: schema.TypeKindObject, Fields: fieldsOf(&schema.Field{Name: "a", Type: schema.NamedType("String")})},
			"Subscription": {Name: "Subscription", Kind: schema.TypeKindObject, Fields: fieldsOf(
				&schema.Field{Name: "ticks", Type: schema.NamedType("Tick"), Arguments: []*schema.InputValue{{Name: "from", Type: schema.NamedType("Int")}}},
				&schema.Field{Name: "other", Type: schema.NamedType("String")},
			)},
			"Tick": {Name: "Tick", Kind: schema.TypeKindObject, Fields: fieldsOf(
				&schema.Field{Name: "n", Type: schema.NamedType("Int")},
				&schema.Field{Name: "label", Type: schema.NamedType("String"), Async: true},
			)},
			"String": {Name: "String", Kind: schema.TypeKindScalar},
			"Int":    {Name: "Int", Kind: schema.TypeKindScalar},
		},
	}
	return sch
}

func TestSubscribe_EventsAreExecuted(t *testing.T) {
	rt := NewMockRuntime(map[string]MockResolver{
		"Tick.n": func(ctx context.Context, src any, args map[string]any) (any, error) {
			return src.(map[string]any)["n"], nil
		},
		"Tick.label": func(ctx context.Context, src any, args map[string]any) (any, error) {
			return "tick", nil
		},
	})
	var gotArgs map[string]any
	rt.SetStream("Subscription", "ticks", func(ctx context.Context, args map[string]any) (<-chan any, error) {
		gotArgs = args
		ch := make(chan any, 3)
		ch <- map[string]any{"n": 1}
		ch <- errors.New("skipped")
		ch <- map[string]any{"n": 2}
		close(ch)
		return ch, nil
	})
	exec := NewExecutor(rt, newSubscriptionSchema())
	doc := mustParseQuery(t, `subscription { t: ticks(from: 1) { n label } }`)

	results, err := exec.Subscribe(context.Background(), doc, "", nil)
	require.NoError(t, err)

	var got []*ExecutionResult
	for r := range results {
		got = append(got, r)
	}
	want := []*ExecutionResult{
		{Data: map[string]any{"t": map[string]any{"n": 1, "label": "tick"}}, Errors: []GraphQLError{}},
		{Data: map[string]any{"t": nil}, Errors: []GraphQLError{{Message: "skipped", Path: Path{"t"}}}},
		{Data: map[string]any{"t": map[string]any{"n": 2, "label": "tick"}}, Errors: []GraphQLError{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, map[string]any{"from": 1}, gotArgs)
}

func TestSubscribe_CancelClosesResults(t *testing.T) {
	rt := NewMockRuntime(nil)
	source := make(chan any)
	rt.SetStream("Subscription", "other", func(ctx context.Context, args map[string]any) (<-chan any, error) {
		return source, nil
	})
	exec := NewExecutor(rt, newSubscriptionSchema())
	doc := mustParseQuery(t, `subscription { other }`)

	ctx, cancel := context.WithCancel(context.Background())
	results, err := exec.Subscribe(ctx, doc, "", nil)
	require.NoError(t, err)

	cancel()
	_, open := <-results
	require.False(t, open)
}

func TestSubscribe_RequestErrors(t *testing.T) {
	rt := NewMockRuntime(nil)
	exec := NewExecutor(rt, newSubscriptionSchema())

	_, err := exec.Subscribe(context.Background(), mustParseQuery(t, `{ a }`), "", nil)
	require.ErrorIs(t, err, ErrNotSubscription)

	_, err = exec.Subscribe(context.Background(), mustParseQuery(t, `subscription { other ticks { n } }`), "", nil)
	require.ErrorContains(t, err, "exactly one root field")

	_, err = exec.Subscribe(context.Background(), mustParseQuery(t, `subscription { other }`), "", nil)
	require.ErrorContains(t, err, "no stream for Subscription.other")
}

func TestExecuteRequest_CanceledContextFailsPendingAsyncFields(t *testing.T) {
	sch := newSchemaWithQueryType(
		newObjectType("Query", &schema.Field{Name: "slow", Type: schema.NamedType("String"), Async: true}),
		newScalarType("String"),
	)
	rt := NewMockRuntime(map[string]MockResolver{"Query.slow": NewMockValueResolver("never")})
	exec := NewExecutor(rt, sch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := exec.ExecuteRequest(ctx, mustParseQuery(t, `{ slow }`), "", nil, nil)

	want := &ExecutionResult{
		Data:   map[string]any{"slow": nil},
		Errors: []GraphQLError{{Message: context.Canceled.Error(), Path: Path{"slow"}}},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, rt.GetCalls())
}

func TestCollectFields_AbstractTypeConditions(t *testing.T) {
	sch := newSchemaWithQueryType(
		newObjectType("Query", &schema.Field{Name: "node", Type: schema.NamedType("Node")}),
		&schema.Type{Name: "Node", Kind: schema.TypeKindInterface, PossibleTypes: []string{"Book"}, Fields: fieldsOf(&schema.Field{Name: "id", Type: schema.NamedType("String")})},
		&schema.Type{Name: "Result", Kind: schema.TypeKindUnion, PossibleTypes: []string{"Book"}},
		&schema.Type{Name: "Book", Kind: schema.TypeKindObject, Interfaces: []string{"Node"}, Fields: fieldsOf(
			&schema.Field{Name: "id", Type: schema.NamedType("String")},
			&schema.Field{Name: "title", Type: schema.NamedType("String")},
		)},
		newScalarType("String"),
	)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.node": NewMockValueResolver(map[string]any{"__typename": "Book"}),
		"Book.id":    NewMockValueResolver("b1"),
		"Book.title": NewMockValueResolver("Dune"),
	})
	exec := NewExecutor(rt, sch)
	doc := mustParseQuery(t, `{ node { ... on Node { id } ...R } } fragment R on Result { ... on Book { title } }`)

	res := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	want := &ExecutionResult{
		Data:   map[string]any{"node": map[string]any{"id": "b1", "title": "Dune"}},
		Errors: []GraphQLError{},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}
