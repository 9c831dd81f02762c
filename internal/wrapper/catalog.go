// Package wrapper recognises envelope return types (futures, optionals,
// deferred thunks and channels) and takes them apart so the executor only
// ever sees a plain value or a single Future.
package wrapper

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Kind is the shape of an envelope.
type Kind int

const (
	// KindAsync is a result that is already being computed.
	KindAsync Kind = iota + 1
	// KindOptional is a value that may be absent.
	KindOptional
	// KindSingle is a deferred computation producing one value.
	KindSingle
	// KindStream produces many values over time.
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindAsync:
		return "async"
	case KindOptional:
		return "optional"
	case KindSingle:
		return "single"
	case KindStream:
		return "stream"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Suspends reports whether taking the envelope off may have to wait.
func (k Kind) Suspends() bool { return k == KindAsync || k == KindSingle }

// Wrapper describes one envelope shape.
//
// Unwrap removes one layer from a non-nil v. Depending on Kind it returns
//   - KindOptional: the contained value, or nil when absent;
//   - KindAsync, KindSingle: an Awaitable;
//   - KindStream: a <-chan any that closes when the source ends or ctx is done.
type Wrapper interface {
	Kind() Kind
	Match(t reflect.Type) (inner reflect.Type, ok bool)
	Unwrap(ctx context.Context, v any) (any, error)
}

// Constructor is implemented by optional wrappers that can also build the
// envelope, which is needed to bind them as resolver arguments.
type Constructor interface {
	// Wrap builds a value of type t holding v; nil builds an absent value.
	Wrap(t reflect.Type, v any) (reflect.Value, error)
}

// ErrStream is returned when a stream is met outside of a subscription.
var ErrStream = errors.New("streams can only be consumed by a subscription")

// InvalidWrapperUsageError reports an envelope on a field that cannot carry it.
type InvalidWrapperUsageError struct {
	Type   string
	Field  string
	Kind   Kind
	Reason string
}

func (e *InvalidWrapperUsageError) Error() string {
	return fmt.Sprintf("invalid %s wrapper on %s.%s: %s", e.Kind, e.Type, e.Field, e.Reason)
}

// Catalog is the set of known envelopes. Wrappers added with Register are
// tried before the built-in ones, in registration order.
type Catalog struct {
	custom  []Wrapper
	builtin []Wrapper
}

func NewCatalog() *Catalog {
	return &Catalog{builtin: builtins()}
}

func (c *Catalog) Register(w Wrapper) {
	c.custom = append(c.custom, w)
}

func (c *Catalog) match(t reflect.Type) (Wrapper, reflect.Type, bool) {
	for _, list := range [][]Wrapper{c.custom, c.builtin} {
		for _, w := range list {
			if inner, ok := w.Match(t); ok {
				return w, inner, true
			}
		}
	}
	return nil, nil, false
}

// OptionalOf reports whether t is an optional envelope that can be
// constructed, returning its contained type.
func (c *Catalog) OptionalOf(t reflect.Type) (reflect.Type, Constructor, bool) {
	w, inner, ok := c.match(t)
	if !ok || w.Kind() != KindOptional {
		return nil, nil, false
	}
	ctor, ok := w.(Constructor)
	if !ok {
		return nil, nil, false
	}
	return inner, ctor, true
}

// Step is one layer of a Plan.
type Step struct {
	Kind    Kind
	Wrapper Wrapper
	// From is the envelope type, To the type it contains.
	From, To reflect.Type
}

// Plan is the ordered list of envelopes around a declared type, outermost
// first.
type Plan struct {
	Steps []Step
	// Result is the type left after all steps.
	Result reflect.Type
	// Dynamic is set when Result is the empty interface; envelopes are then
	// discovered from each runtime value.
	Dynamic bool

	catalog *Catalog
}

var errorType = reflect.TypeFor[error]()

// Plan walks t from the outside in until no envelope matches.
func (c *Catalog) Plan(t reflect.Type) Plan {
	p := Plan{catalog: c}
	for t != nil {
		w, inner, ok := c.match(t)
		if !ok {
			break
		}
		p.Steps = append(p.Steps, Step{Kind: w.Kind(), Wrapper: w, From: t, To: inner})
		t = inner
	}
	p.Result = t
	p.Dynamic = t != nil && t.Kind() == reflect.Interface && t.NumMethod() == 0
	return p
}

// Suspends reports whether applying the plan may produce a Future.
func (p Plan) Suspends() bool {
	if p.Dynamic {
		return true
	}
	for _, s := range p.Steps {
		if s.Kind.Suspends() {
			return true
		}
	}
	return false
}

func (p Plan) streamIndex() int {
	for i, s := range p.Steps {
		if s.Kind == KindStream {
			return i
		}
	}
	return -1
}

// HasStream reports whether one of the layers is a stream.
func (p Plan) HasStream() bool { return p.streamIndex() >= 0 }

// Validate checks the plan against the kind of field it is bound to.
func (p Plan) Validate(typeName, field string, subscription bool) error {
	streams := 0
	for _, s := range p.Steps {
		if s.Kind == KindStream {
			streams++
		}
	}
	switch {
	case streams > 0 && !subscription:
		return &InvalidWrapperUsageError{Type: typeName, Field: field, Kind: KindStream, Reason: "streams are only allowed on subscription fields"}
	case streams > 1:
		return &InvalidWrapperUsageError{Type: typeName, Field: field, Kind: KindStream, Reason: "a stream cannot carry another stream"}
	case subscription && streams == 0 && !p.Dynamic:
		return &InvalidWrapperUsageError{Type: typeName, Field: field, Kind: KindStream, Reason: fmt.Sprintf("subscription fields must return a stream, got %s", p.describe())}
	}
	return nil
}

func (p Plan) describe() string {
	if len(p.Steps) == 0 {
		if p.Result == nil {
			return "<nil>"
		}
		return p.Result.String()
	}
	return p.Steps[0].From.String()
}

// Apply takes every envelope off v. The result is a plain value, or a single
// *Future[any] when some layer suspends; nested asynchronous layers are
// collapsed into that one future. An absent optional at any layer gives nil.
func (p Plan) Apply(ctx context.Context, v any) (any, error) {
	return p.apply(ctx, v, p.Steps)
}

func (p Plan) apply(ctx context.Context, v any, steps []Step) (any, error) {
	for i, step := range steps {
		if isNil(v) {
			return nil, nil
		}
		if step.Kind == KindStream {
			return nil, fmt.Errorf("cannot unwrap %s: %w", step.From, ErrStream)
		}
		out, err := step.Wrapper.Unwrap(ctx, v)
		if err != nil {
			return nil, err
		}
		if !step.Kind.Suspends() {
			v = out
			continue
		}
		a, ok := out.(Awaitable)
		if !ok {
			return nil, fmt.Errorf("%s wrapper for %s returned %T", step.Kind, step.From, out)
		}
		rest := steps[i+1:]
		return Chain(ctx, a, func(inner any) (any, error) {
			return p.apply(ctx, inner, rest)
		}), nil
	}
	if p.Dynamic && !isNil(v) {
		if dp := p.catalog.Plan(reflect.TypeOf(v)); len(dp.Steps) > 0 {
			return dp.apply(ctx, v, dp.Steps)
		}
	}
	if isNil(v) {
		return nil, nil
	}
	return v, nil
}

// Stream opens the event stream described by the plan. Layers before the
// stream are awaited; layers inside it are applied to every element, and an
// element that fails is delivered as its error. The channel closes when the
// source ends or ctx is done, and the source is not read after that.
//
// A dynamic plan finds the stream from the runtime value, after awaiting any
// envelopes around it.
func (p Plan) Stream(ctx context.Context, v any) (<-chan any, error) {
	steps, dynamic := p.Steps, p.Dynamic
	for {
		idx := -1
		for i, s := range steps {
			if s.Kind == KindStream {
				idx = i
				break
			}
		}
		head := steps
		if idx >= 0 {
			head = steps[:idx]
		}
		var err error
		if v, err = p.await(ctx, v, head); err != nil {
			return nil, err
		}
		if isNil(v) {
			return nil, fmt.Errorf("stream source is nil")
		}
		if idx < 0 {
			if !dynamic {
				return nil, fmt.Errorf("value of type %T is not a stream", v)
			}
			dp := p.catalog.Plan(reflect.TypeOf(v))
			if len(dp.Steps) == 0 {
				return nil, fmt.Errorf("value of type %T is not a stream", v)
			}
			steps, dynamic = dp.Steps, dp.Dynamic
			continue
		}

		out, err := steps[idx].Wrapper.Unwrap(ctx, v)
		if err != nil {
			return nil, err
		}
		src, ok := out.(<-chan any)
		if !ok {
			return nil, fmt.Errorf("stream wrapper for %s returned %T", steps[idx].From, out)
		}
		elem := Plan{Steps: steps[idx+1:], Dynamic: dynamic, catalog: p.catalog}
		return elem.mapStream(ctx, src), nil
	}
}

// await applies steps without replanning the result and waits for it.
func (p Plan) await(ctx context.Context, v any, steps []Step) (any, error) {
	out, err := Plan{catalog: p.catalog}.apply(ctx, v, steps)
	if err != nil {
		return nil, err
	}
	if a, ok := out.(Awaitable); ok {
		return a.AwaitAny(ctx)
	}
	return out, nil
}

func (p Plan) mapStream(ctx context.Context, src <-chan any) <-chan any {
	if len(p.Steps) == 0 && !p.Dynamic {
		return src
	}
	out := make(chan any)
	go func() {
		defer close(out)
		for {
			var ev any
			select {
			case <-ctx.Done():
				return
			case e, ok := <-src:
				if !ok {
					return
				}
				ev = e
			}
			if _, isErr := ev.(error); !isErr {
				v, err := p.apply(ctx, ev, p.Steps)
				if a, ok := v.(Awaitable); ok && err == nil {
					v, err = a.AwaitAny(ctx)
				}
				if err != nil {
					ev = err
				} else {
					ev = v
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- ev:
			}
		}
	}()
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
