package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"

	schema "github.com/hanpama/gqlbind/internal/schema"
)

// MockResolver answers one field for one source in tests.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

const (
	CallKindSync  = "sync"
	CallKindAsync = "async"
)

func NewMockValueResolver(val any) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return val, nil }
}

func NewMockErrorResolver(err error) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return nil, err }
}

// Call is one recorded resolver invocation. Async calls of the same batch
// share a BatchID counted from 1; sync calls carry 0.
type Call struct {
	Kind       string
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
	BatchID    int
}

type mockStream func(ctx context.Context, args map[string]any) (<-chan any, error)

// MockRuntime is a Runtime over resolver funcs keyed "Type.field" that
// records every call it answers. A field without a func resolves to null.
// Abstract values name their type through a "__typename" map key unless
// SetTypeResolver says otherwise.
type MockRuntime struct {
	mu      sync.Mutex
	funcs   map[string]MockResolver
	streams map[string]mockStream
	calls   []Call
	batches int

	typeOf func(value any) (string, error)
	leaf   func(val any, t schema.TypeRef) (any, error)
}

func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{
		funcs:   make(map[string]MockResolver, len(resolvers)),
		streams: map[string]mockStream{},
		typeOf:  typenameKey,
	}
	for k, f := range resolvers {
		m.funcs[k] = f
	}
	return m
}

func typenameKey(value any) (string, error) {
	if obj, ok := value.(map[string]any); ok {
		if name, ok := obj["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve type")
}

func mockKey(objectType, field string) string { return objectType + "." + field }

func (m *MockRuntime) SetResolver(objectType, field string, resolver MockResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs[mockKey(objectType, field)] = resolver
}

// SetStream registers the event source of a subscription field.
func (m *MockRuntime) SetStream(objectType, field string, open func(ctx context.Context, args map[string]any) (<-chan any, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[mockKey(objectType, field)] = open
}

// SetTypeResolver replaces how r names abstract values. Runtimes other than
// *MockRuntime are left alone.
func SetTypeResolver(r Runtime, f func(value any) (string, error)) {
	if m, ok := r.(*MockRuntime); ok {
		m.mu.Lock()
		m.typeOf = f
		m.mu.Unlock()
	}
}

// SetSerializer installs a leaf serializer on r; without one leaves pass
// through unchanged.
func SetSerializer(r Runtime, f func(val any, t schema.TypeRef) (any, error)) {
	if m, ok := r.(*MockRuntime); ok {
		m.mu.Lock()
		m.leaf = f
		m.mu.Unlock()
	}
}

func (m *MockRuntime) call(ctx context.Context, c Call) (any, error) {
	m.mu.Lock()
	f := m.funcs[mockKey(c.ObjectType, c.Field)]
	m.mu.Unlock()

	var (
		v   any
		err error
	)
	if f != nil {
		v, err = f(ctx, c.Source, c.Args)
	}
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
	return v, err
}

func (m *MockRuntime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	return m.call(ctx, Call{Kind: CallKindSync, ObjectType: objectType, Field: field, Source: source, Args: args})
}

// BatchResolveAsync answers the tasks grouped by field, groups taken in the
// order their first task appears.
func (m *MockRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	if len(tasks) == 0 {
		return nil
	}
	m.mu.Lock()
	m.batches++
	id := m.batches
	m.mu.Unlock()

	keyOf := func(t AsyncResolveTask, _ int) string { return mockKey(t.ObjectType, t.Field) }
	out := make([]AsyncResolveResult, len(tasks))
	for _, key := range lo.Uniq(lo.Map(tasks, keyOf)) {
		for i, t := range tasks {
			if keyOf(t, i) != key {
				continue
			}
			v, err := m.call(ctx, Call{Kind: CallKindAsync, ObjectType: t.ObjectType, Field: t.Field, Source: t.Source, Args: t.Args, BatchID: id})
			out[i] = AsyncResolveResult{Value: v, Error: err}
		}
	}
	return out
}

func (m *MockRuntime) ResolveType(_ context.Context, _ string, value any) (string, error) {
	m.mu.Lock()
	typeOf := m.typeOf
	m.mu.Unlock()
	return typeOf(value)
}

func (m *MockRuntime) SerializeLeafValue(_ context.Context, typeName string, value any) (any, error) {
	m.mu.Lock()
	leaf := m.leaf
	m.mu.Unlock()
	if leaf == nil {
		return value, nil
	}
	return leaf(value, *schema.NamedType(typeName))
}

func (m *MockRuntime) Subscribe(ctx context.Context, objectType, field string, args map[string]any) (<-chan any, error) {
	m.mu.Lock()
	open := m.streams[mockKey(objectType, field)]
	m.mu.Unlock()
	if open == nil {
		return nil, fmt.Errorf("no stream for %s.%s", objectType, field)
	}
	return open(ctx, args)
}

// GetCalls returns the calls recorded so far, oldest first.
func (m *MockRuntime) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
