package wrapper

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func await(t *testing.T, v any) any {
	t.Helper()
	a, ok := v.(Awaitable)
	require.True(t, ok, "expected a future, got %T", v)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := a.AwaitAny(ctx)
	require.NoError(t, err)
	return out
}

func kinds(p Plan) []Kind {
	out := make([]Kind, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Kind
	}
	return out
}

func TestPlan(t *testing.T) {
	c := NewCatalog()
	cases := []struct {
		name     string
		typ      reflect.Type
		kinds    []Kind
		result   reflect.Type
		suspends bool
	}{
		{"plain", reflect.TypeFor[string](), []Kind{}, reflect.TypeFor[string](), false},
		{"future of optional", reflect.TypeFor[*Future[Optional[string]]](), []Kind{KindAsync, KindOptional}, reflect.TypeFor[string](), true},
		{"thunk with context", reflect.TypeFor[func(context.Context) (int, error)](), []Kind{KindSingle}, reflect.TypeFor[int](), true},
		{"sql null", reflect.TypeFor[sql.NullString](), []Kind{KindOptional}, reflect.TypeFor[string](), false},
		{"sql generic null", reflect.TypeFor[sql.Null[int64]](), []Kind{KindOptional}, reflect.TypeFor[int64](), false},
		{"proto wrapper", reflect.TypeFor[*wrapperspb.BoolValue](), []Kind{KindOptional}, reflect.TypeFor[bool](), false},
		{"channel of futures", reflect.TypeFor[<-chan *Future[int]](), []Kind{KindStream, KindAsync}, reflect.TypeFor[int](), true},
		{"empty interface", reflect.TypeFor[any](), []Kind{}, reflect.TypeFor[any](), true},
		{"error is not dynamic", reflect.TypeFor[error](), []Kind{}, reflect.TypeFor[error](), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := c.Plan(tc.typ)
			require.Equal(t, tc.kinds, kinds(p))
			require.Equal(t, tc.result, p.Result)
			require.Equal(t, tc.suspends, p.Suspends())
		})
	}
}

func TestValidate(t *testing.T) {
	c := NewCatalog()

	err := c.Plan(reflect.TypeFor[chan string]()).Validate("Query", "ticks", false)
	var usage *InvalidWrapperUsageError
	require.True(t, errors.As(err, &usage))
	require.Equal(t, KindStream, usage.Kind)
	require.Equal(t, "Query", usage.Type)
	require.Equal(t, "ticks", usage.Field)

	err = c.Plan(reflect.TypeFor[string]()).Validate("Subscription", "ticks", true)
	require.ErrorContains(t, err, "subscription fields must return a stream, got string")

	err = c.Plan(reflect.TypeFor[<-chan <-chan int]()).Validate("Subscription", "ticks", true)
	require.ErrorContains(t, err, "cannot carry another stream")

	require.NoError(t, c.Plan(reflect.TypeFor[*Future[<-chan int]]()).Validate("Subscription", "ticks", true))
	require.NoError(t, c.Plan(reflect.TypeFor[any]()).Validate("Subscription", "ticks", true))
}

func TestApply(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	t.Run("absent optional is null", func(t *testing.T) {
		for _, v := range []any{None[string](), sql.NullString{}, (*wrapperspb.StringValue)(nil)} {
			out, err := c.Plan(reflect.TypeOf(v)).Apply(ctx, v)
			require.NoError(t, err)
			require.Nil(t, out)
		}
	})

	t.Run("present optionals", func(t *testing.T) {
		for _, v := range []any{Some("x"), sql.NullString{String: "x", Valid: true}, wrapperspb.String("x")} {
			out, err := c.Plan(reflect.TypeOf(v)).Apply(ctx, v)
			require.NoError(t, err)
			require.Equal(t, "x", out)
		}
	})

	t.Run("future of absent optional resolves to null", func(t *testing.T) {
		f := Go(ctx, func(context.Context) (Optional[int], error) { return None[int](), nil })
		out, err := c.Plan(reflect.TypeOf(f)).Apply(ctx, f)
		require.NoError(t, err)
		require.Nil(t, await(t, out))
	})

	t.Run("future of future collapses", func(t *testing.T) {
		f := Resolved(Go(ctx, func(context.Context) (int, error) { return 5, nil }))
		out, err := c.Plan(reflect.TypeOf(f)).Apply(ctx, f)
		require.NoError(t, err)
		require.Equal(t, 5, await(t, out))
	})

	t.Run("thunk runs only when applied", func(t *testing.T) {
		var calls atomic.Int32
		thunk := func() (string, error) { calls.Add(1); return "lazy", nil }
		p := c.Plan(reflect.TypeOf(thunk))
		require.Zero(t, calls.Load())

		out, err := p.Apply(ctx, thunk)
		require.NoError(t, err)
		require.Equal(t, "lazy", await(t, out))
		require.EqualValues(t, 1, calls.Load())
	})

	t.Run("failed future", func(t *testing.T) {
		f := Failed[string](errors.New("boom"))
		out, err := c.Plan(reflect.TypeOf(f)).Apply(ctx, f)
		require.NoError(t, err)
		_, err = out.(Awaitable).AwaitAny(ctx)
		require.EqualError(t, err, "boom")
	})

	t.Run("dynamic value is planned at runtime", func(t *testing.T) {
		p := c.Plan(reflect.TypeFor[any]())
		out, err := p.Apply(ctx, Resolved(Some("dyn")))
		require.NoError(t, err)
		require.Equal(t, "dyn", await(t, out))

		out, err = p.Apply(ctx, "plain")
		require.NoError(t, err)
		require.Equal(t, "plain", out)
	})

	t.Run("cancel abandons the wait", func(t *testing.T) {
		f, _ := NewPromise[int]()
		cctx, cancel := context.WithCancel(ctx)
		out, err := c.Plan(reflect.TypeOf(f)).Apply(cctx, f)
		require.NoError(t, err)
		cancel()
		_, err = out.(Awaitable).AwaitAny(context.Background())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestCustomWrapperIsTriedFirst(t *testing.T) {
	type box struct{ v string }
	c := NewCatalog()
	c.Register(Func(KindOptional,
		func(t reflect.Type) (reflect.Type, bool) {
			if t == reflect.TypeFor[box]() {
				return reflect.TypeFor[string](), true
			}
			return nil, false
		},
		func(_ context.Context, v any) (any, error) { return v.(box).v, nil },
	))
	out, err := c.Plan(reflect.TypeFor[box]()).Apply(context.Background(), box{v: "inside"})
	require.NoError(t, err)
	require.Equal(t, "inside", out)
}

func TestStream(t *testing.T) {
	c := NewCatalog()

	t.Run("elements are unwrapped", func(t *testing.T) {
		src := make(chan Optional[string], 3)
		src <- Some("a")
		src <- None[string]()
		src <- Some("b")
		close(src)

		events, err := c.Plan(reflect.TypeOf(src)).Stream(context.Background(), src)
		require.NoError(t, err)
		var got []any
		for ev := range events {
			got = append(got, ev)
		}
		require.Equal(t, []any{"a", nil, "b"}, got)
	})

	t.Run("future of stream", func(t *testing.T) {
		src := make(chan int, 1)
		src <- 7
		close(src)
		f := Resolved((<-chan int)(src))

		events, err := c.Plan(reflect.TypeOf(f)).Stream(context.Background(), f)
		require.NoError(t, err)
		require.Equal(t, 7, <-events)
	})

	t.Run("source is not read after cancel", func(t *testing.T) {
		src := make(chan int)
		ctx, cancel := context.WithCancel(context.Background())
		events, err := c.Plan(reflect.TypeOf(src)).Stream(ctx, src)
		require.NoError(t, err)

		src <- 1
		require.Equal(t, 1, <-events)
		cancel()

		for range events {
		}
		select {
		case src <- 2:
			t.Fatal("source was read after cancel")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("apply rejects streams", func(t *testing.T) {
		src := make(chan int)
		_, err := c.Plan(reflect.TypeOf(src)).Apply(context.Background(), src)
		require.ErrorIs(t, err, ErrStream)
		require.EqualError(t, err, "cannot unwrap chan int: streams can only be consumed by a subscription")
	})

	t.Run("dynamic plans find the stream at runtime", func(t *testing.T) {
		cases := []struct {
			name string
			typ  reflect.Type
			v    func(src <-chan int) any
		}{
			{"any", reflect.TypeFor[any](), func(src <-chan int) any { return src }},
			{"channel of any", reflect.TypeFor[<-chan any](), func(src <-chan int) any {
				out := make(chan any, 1)
				out <- <-src
				close(out)
				return (<-chan any)(out)
			}},
			{"future of any", reflect.TypeFor[*Future[any]](), func(src <-chan int) any { return Resolved[any](src) }},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				src := make(chan int, 1)
				src <- 7
				close(src)

				p := c.Plan(tc.typ)
				require.NoError(t, p.Validate("Subscription", "ticks", true))
				events, err := p.Stream(context.Background(), tc.v(src))
				require.NoError(t, err)
				var got []any
				for ev := range events {
					got = append(got, ev)
				}
				require.Equal(t, []any{7}, got)
			})
		}
	})

	t.Run("dynamic value that is not a stream", func(t *testing.T) {
		_, err := c.Plan(reflect.TypeFor[any]()).Stream(context.Background(), "tick")
		require.EqualError(t, err, "value of type string is not a stream")
	})
}

func TestOptionalConstruction(t *testing.T) {
	c := NewCatalog()
	cases := []struct {
		name  string
		typ   reflect.Type
		in    any
		want  any
		inner reflect.Type
	}{
		{"optional", reflect.TypeFor[Optional[int]](), 3, Some(3), reflect.TypeFor[int]()},
		{"optional absent", reflect.TypeFor[Optional[int]](), nil, None[int](), reflect.TypeFor[int]()},
		{"sql null", reflect.TypeFor[sql.NullInt64](), 3, sql.NullInt64{Int64: 3, Valid: true}, reflect.TypeFor[int64]()},
		{"sql null absent", reflect.TypeFor[sql.NullInt64](), nil, sql.NullInt64{}, reflect.TypeFor[int64]()},
		{"proto absent", reflect.TypeFor[*wrapperspb.Int32Value](), nil, (*wrapperspb.Int32Value)(nil), reflect.TypeFor[int32]()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inner, ctor, ok := c.OptionalOf(tc.typ)
			require.True(t, ok)
			require.Equal(t, tc.inner, inner)
			v, err := ctor.Wrap(tc.typ, tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, v.Interface())
		})
	}

	inner, ctor, ok := c.OptionalOf(reflect.TypeFor[*wrapperspb.Int32Value]())
	require.True(t, ok)
	require.Equal(t, reflect.TypeFor[int32](), inner)
	v, err := ctor.Wrap(reflect.TypeFor[*wrapperspb.Int32Value](), 9)
	require.NoError(t, err)
	require.Equal(t, int32(9), v.Interface().(*wrapperspb.Int32Value).GetValue())

	_, _, ok = c.OptionalOf(reflect.TypeFor[*Future[int]]())
	require.False(t, ok)
}
