package wrapper

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func builtins() []Wrapper {
	return []Wrapper{
		futureWrapper{},
		thunkWrapper{},
		optionalWrapper{},
		sqlNullWrapper{},
		protoWrapper{},
		chanWrapper{},
	}
}

// Func builds a Wrapper from functions, for envelopes owned by the caller.
func Func(kind Kind, match func(reflect.Type) (reflect.Type, bool), unwrap func(context.Context, any) (any, error)) Wrapper {
	return funcWrapper{kind: kind, match: match, unwrap: unwrap}
}

type funcWrapper struct {
	kind   Kind
	match  func(reflect.Type) (reflect.Type, bool)
	unwrap func(context.Context, any) (any, error)
}

func (w funcWrapper) Kind() Kind                                     { return w.kind }
func (w funcWrapper) Match(t reflect.Type) (reflect.Type, bool)      { return w.match(t) }
func (w funcWrapper) Unwrap(ctx context.Context, v any) (any, error) { return w.unwrap(ctx, v) }

var (
	awaitableType = reflect.TypeFor[Awaitable]()
	contextType   = reflect.TypeFor[context.Context]()
	optionalType  = reflect.TypeFor[optionalValue]()
	messageType   = reflect.TypeFor[proto.Message]()
)

// futureWrapper matches Awaitable types with a typed Await(ctx) (T, error),
// which includes *Future[T].
type futureWrapper struct{}

func (futureWrapper) Kind() Kind { return KindAsync }

func (futureWrapper) Match(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() == reflect.Interface || !t.Implements(awaitableType) {
		return nil, false
	}
	m, ok := t.MethodByName("Await")
	if !ok {
		return nil, false
	}
	mt := m.Type // receiver first
	if mt.NumIn() != 2 || mt.In(1) != contextType || mt.NumOut() != 2 || mt.Out(1) != errorType {
		return nil, false
	}
	return mt.Out(0), true
}

func (futureWrapper) Unwrap(_ context.Context, v any) (any, error) {
	return v.(Awaitable), nil
}

// thunkWrapper matches deferred computations func() (T, error) and
// func(context.Context) (T, error). They run when unwrapped.
type thunkWrapper struct{}

func (thunkWrapper) Kind() Kind { return KindSingle }

func (thunkWrapper) Match(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Func || t.NumOut() != 2 || t.Out(1) != errorType || t.IsVariadic() {
		return nil, false
	}
	switch {
	case t.NumIn() == 0:
	case t.NumIn() == 1 && t.In(0) == contextType:
	default:
		return nil, false
	}
	return t.Out(0), true
}

func (thunkWrapper) Unwrap(ctx context.Context, v any) (any, error) {
	fn := reflect.ValueOf(v)
	return Go(ctx, func(ctx context.Context) (any, error) {
		var in []reflect.Value
		if fn.Type().NumIn() == 1 {
			in = []reflect.Value{reflect.ValueOf(ctx)}
		}
		out := fn.Call(in)
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}), nil
}

// optionalWrapper matches Optional[T].
type optionalWrapper struct{}

func (optionalWrapper) Kind() Kind { return KindOptional }

func (optionalWrapper) Match(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Struct || !t.Implements(optionalType) {
		return nil, false
	}
	m, ok := t.MethodByName("Get")
	if !ok || m.Type.NumOut() != 2 || m.Type.Out(1).Kind() != reflect.Bool {
		return nil, false
	}
	return m.Type.Out(0), true
}

func (optionalWrapper) Unwrap(_ context.Context, v any) (any, error) {
	inner, _ := v.(optionalValue).ValueAny()
	return inner, nil
}

func (optionalWrapper) Wrap(t reflect.Type, v any) (reflect.Value, error) {
	ptr := reflect.New(t)
	setter, ok := ptr.Interface().(optionalSetter)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%s cannot be constructed", t)
	}
	if err := setter.SetAny(v); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// sqlNullWrapper matches the database/sql nullable structs (NullString,
// NullInt64, ..., Null[T]): two fields, the second being Valid bool.
type sqlNullWrapper struct{}

func (sqlNullWrapper) Kind() Kind { return KindOptional }

func (sqlNullWrapper) Match(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Struct || t.PkgPath() != "database/sql" || t.NumField() != 2 {
		return nil, false
	}
	valid := t.Field(1)
	if valid.Name != "Valid" || valid.Type.Kind() != reflect.Bool {
		return nil, false
	}
	return t.Field(0).Type, true
}

func (sqlNullWrapper) Unwrap(_ context.Context, v any) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.Field(1).Bool() {
		return nil, nil
	}
	return rv.Field(0).Interface(), nil
}

func (sqlNullWrapper) Wrap(t reflect.Type, v any) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	if v == nil {
		return out, nil
	}
	field := out.Field(0)
	rv := reflect.ValueOf(v)
	if !rv.Type().ConvertibleTo(field.Type()) {
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, field.Type())
	}
	field.Set(rv.Convert(field.Type()))
	out.Field(1).SetBool(true)
	return out, nil
}

// protoWrapper matches the well-known wrapper messages of
// google/protobuf/wrappers.proto (*wrapperspb.StringValue and friends). A nil
// message is absent.
type protoWrapper struct{}

func (protoWrapper) Kind() Kind { return KindOptional }

func (protoWrapper) Match(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Pointer || !t.Implements(messageType) {
		return nil, false
	}
	desc := reflect.Zero(t).Interface().(proto.Message).ProtoReflect().Descriptor()
	if !isWrapperMessage(desc) {
		return nil, false
	}
	m, ok := t.MethodByName("GetValue")
	if !ok || m.Type.NumOut() != 1 {
		return nil, false
	}
	return m.Type.Out(0), true
}

func isWrapperMessage(desc protoreflect.MessageDescriptor) bool {
	return desc.ParentFile().Package() == "google.protobuf" &&
		strings.HasSuffix(string(desc.Name()), "Value") &&
		desc.Fields().Len() == 1 &&
		desc.Fields().Get(0).Name() == "value"
}

func (protoWrapper) Unwrap(_ context.Context, v any) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.IsNil() {
		return nil, nil
	}
	return rv.MethodByName("GetValue").Call(nil)[0].Interface(), nil
}

func (protoWrapper) Wrap(t reflect.Type, v any) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	msg := reflect.New(t.Elem())
	field := msg.Elem().FieldByName("Value")
	rv := reflect.ValueOf(v)
	if !field.IsValid() || !rv.Type().ConvertibleTo(field.Type()) {
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
	}
	field.Set(rv.Convert(field.Type()))
	return msg, nil
}

// chanWrapper matches channels that can be received from.
type chanWrapper struct{}

func (chanWrapper) Kind() Kind { return KindStream }

func (chanWrapper) Match(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Chan || t.ChanDir()&reflect.RecvDir == 0 {
		return nil, false
	}
	return t.Elem(), true
}

func (chanWrapper) Unwrap(ctx context.Context, v any) (any, error) {
	if ch, ok := v.(<-chan any); ok {
		return relay(ctx, ch), nil
	}
	src := reflect.ValueOf(v)
	out := make(chan any)
	go func() {
		defer close(out)
		cases := []reflect.SelectCase{
			{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
			{Dir: reflect.SelectRecv, Chan: src},
		}
		for {
			chosen, recv, ok := reflect.Select(cases)
			if chosen == 0 || !ok {
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- recv.Interface():
			}
		}
	}()
	return (<-chan any)(out), nil
}

func relay(ctx context.Context, src <-chan any) <-chan any {
	out := make(chan any)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-src:
				if !ok {
					return
				}
				select {
				case <-ctx.Done():
					return
				case out <- v:
				}
			}
		}
	}()
	return out
}
