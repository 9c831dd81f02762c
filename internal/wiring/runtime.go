package wiring

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hanpama/gqlbind/internal/binder"
	"github.com/hanpama/gqlbind/internal/eventbus"
	"github.com/hanpama/gqlbind/internal/events"
	"github.com/hanpama/gqlbind/internal/executor"
	"github.com/hanpama/gqlbind/internal/typedict"
	"github.com/hanpama/gqlbind/internal/wrapper"
)

func (w *Wiring) lookup(objectType, field string) (*boundField, error) {
	bf := w.fields[objectType][field]
	if bf == nil {
		return nil, fmt.Errorf("no binding for %s.%s", objectType, field)
	}
	return bf, nil
}

func (w *Wiring) env(ctx context.Context, bf *boundField, source any, args map[string]any) *binder.Environment {
	return &binder.Environment{
		Context:  ctx,
		TypeName: bf.TypeName,
		Field:    w.schema.Field(bf.TypeName, bf.Field),
		Source:   source,
		Args:     args,
	}
}

// ResolveSync runs a field that does not suspend. A future that shows up
// anyway is awaited.
func (w *Wiring) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	bf, err := w.lookup(objectType, field)
	if err != nil {
		return nil, err
	}
	v, err := bf.fetch(w.env(ctx, bf, source, args))
	if err != nil {
		return nil, err
	}
	if a, ok := v.(wrapper.Awaitable); ok {
		return a.AwaitAny(ctx)
	}
	return v, nil
}

// BatchResolveAsync starts every task and waits for their futures
// concurrently, at most awaitLimit at a time. Results keep the order of
// tasks. Fields of the mutation root run one after another, each finishing
// before the next starts.
func (w *Wiring) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	started := time.Now()
	var g errgroup.Group
	if w.awaitLimit > 0 {
		g.SetLimit(w.awaitLimit)
	}
	for i, task := range tasks {
		bf, err := w.lookup(task.ObjectType, task.Field)
		if err != nil {
			results[i].Error = err
			continue
		}
		v, err := bf.fetch(w.env(ctx, bf, task.Source, task.Args))
		if err != nil {
			results[i].Error = err
			continue
		}
		a, ok := v.(wrapper.Awaitable)
		if !ok {
			results[i].Value = v
			continue
		}
		if task.ObjectType == w.schema.MutationType {
			results[i] = w.await(ctx, task, a, started)
			continue
		}
		g.Go(func() error {
			results[i] = w.await(ctx, task, a, started)
			return nil
		})
	}
	// failures are reported per task, never through the group
	_ = g.Wait()
	return results
}

func (w *Wiring) await(ctx context.Context, task executor.AsyncResolveTask, a wrapper.Awaitable, started time.Time) executor.AsyncResolveResult {
	v, err := a.AwaitAny(ctx)
	eventbus.Publish(ctx, events.ResolverFinish{
		ObjectType: task.ObjectType,
		Field:      task.Field,
		Err:        err,
		Duration:   time.Since(started),
	})
	if err != nil {
		w.log.Debug().Err(err).Str("type", task.ObjectType).Str("field", task.Field).Msg("field failed")
		return executor.AsyncResolveResult{Error: err}
	}
	return executor.AsyncResolveResult{Value: v}
}

// ResolveType names the concrete object type of value. It tries the type
// dictionary, a TypeName() string method, a __typename map key and finally a
// Go type named like one of the possible types.
func (w *Wiring) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if value == nil {
		return "", fmt.Errorf("cannot resolve the type of a nil %s", abstractType)
	}
	abstract := w.schema.Types[abstractType]
	if abstract == nil {
		return "", fmt.Errorf("unknown abstract type %s", abstractType)
	}
	possible := func(name string) bool {
		for _, p := range abstract.PossibleTypes {
			if p == name {
				return true
			}
		}
		return false
	}

	t := reflect.TypeOf(value)
	if name, ok := w.dict.NameFor(t); ok && possible(name) {
		return name, nil
	}
	if n, ok := value.(interface{ TypeName() string }); ok && possible(n.TypeName()) {
		return n.TypeName(), nil
	}
	if m, ok := value.(map[string]any); ok {
		if name, _ := m["__typename"].(string); possible(name) {
			return name, nil
		}
	}
	if name := typedict.Base(t).Name(); possible(name) {
		return name, nil
	}
	return "", fmt.Errorf("cannot resolve %s to one of %v for %T", abstractType, abstract.PossibleTypes, value)
}

// Subscribe resolves a subscription root field and opens its stream.
func (w *Wiring) Subscribe(ctx context.Context, objectType, field string, args map[string]any) (<-chan any, error) {
	bf, err := w.lookup(objectType, field)
	if err != nil {
		return nil, err
	}
	raw, err := bf.Resolve(w.env(ctx, bf, nil, args))
	if err != nil {
		return nil, err
	}
	return bf.Plan.Stream(ctx, raw)
}
