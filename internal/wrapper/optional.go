package wrapper

import (
	"fmt"
	"reflect"
)

// Optional holds a value that may be absent. An absent optional resolves to
// null; as an argument type it tells an omitted argument from a zero value.
type Optional[T any] struct {
	value   T
	present bool
}

func Some[T any](v T) Optional[T] { return Optional[T]{value: v, present: true} }

func None[T any]() Optional[T] { return Optional[T]{} }

// OptionalOf is Some(*p), or None when p is nil.
func OptionalOf[T any](p *T) Optional[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

func (o Optional[T]) Get() (T, bool) { return o.value, o.present }

func (o Optional[T]) IsPresent() bool { return o.present }

func (o Optional[T]) OrElse(def T) T {
	if o.present {
		return o.value
	}
	return def
}

func (o Optional[T]) ValueAny() (any, bool) {
	if !o.present {
		return nil, false
	}
	return o.value, true
}

// SetAny fills o from a dynamically typed value; nil makes it absent.
func (o *Optional[T]) SetAny(v any) error {
	if v == nil {
		*o = None[T]()
		return nil
	}
	if tv, ok := v.(T); ok {
		*o = Some(tv)
		return nil
	}
	target := reflect.TypeFor[T]()
	rv := reflect.ValueOf(v)
	if !rv.Type().ConvertibleTo(target) {
		return fmt.Errorf("cannot use %T as %s", v, target)
	}
	*o = Some(rv.Convert(target).Interface().(T))
	return nil
}

func (o Optional[T]) String() string {
	if !o.present {
		return "None"
	}
	return fmt.Sprintf("Some(%v)", o.value)
}

type optionalValue interface {
	ValueAny() (any, bool)
}

type optionalSetter interface {
	SetAny(v any) error
}
