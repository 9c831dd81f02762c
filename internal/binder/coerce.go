package binder

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
)

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

// convert turns a coerced GraphQL value into a parameter of type t. nil
// becomes the zero value of t, an absent optional for optional types.
func (b *Binder) convert(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		if _, ctor, ok := b.catalog.OptionalOf(t); ok {
			return ctor.Wrap(t, nil)
		}
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == t {
		return rv, nil
	}
	if t.Kind() == reflect.Interface {
		if rv.Type().Implements(t) {
			return rv, nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
	}
	if inner, ctor, ok := b.catalog.OptionalOf(t); ok {
		iv, err := b.convert(v, inner)
		if err != nil {
			return reflect.Value{}, err
		}
		return ctor.Wrap(t, iv.Interface())
	}
	if s, ok := v.(string); ok && t.Kind() != reflect.String && reflect.PointerTo(t).Implements(textUnmarshalerType) {
		ptr := reflect.New(t)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return reflect.Value{}, fmt.Errorf("cannot parse %q as %s: %w", s, t, err)
		}
		return ptr.Elem(), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		ev, err := b.convert(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(ev)
		return ptr, nil

	case reflect.Slice:
		items, ok := v.([]any)
		if !ok {
			items = []any{v}
		}
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, item := range items {
			ev, err := b.convert(item, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("item %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil

	case reflect.Struct, reflect.Map:
		if m, ok := v.(map[string]any); ok {
			return decodeInput(m, t)
		}

	case reflect.String:
		switch {
		case rv.Kind() == reflect.String:
			return rv.Convert(t), nil
		case isIntKind(rv.Kind()):
			return reflect.ValueOf(strconv.FormatInt(rv.Int(), 10)).Convert(t), nil
		}

	case reflect.Bool:
		if rv.Kind() == reflect.Bool {
			return rv.Convert(t), nil
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(rv)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t).Elem()
		if out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
		}
		out.SetInt(n)
		return out, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(rv)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t).Elem()
		if n < 0 || out.OverflowUint(uint64(n)) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
		}
		out.SetUint(uint64(n))
		return out, nil

	case reflect.Float32, reflect.Float64:
		out := reflect.New(t).Elem()
		switch {
		case isIntKind(rv.Kind()):
			out.SetFloat(float64(rv.Int()))
			return out, nil
		case rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64:
			out.SetFloat(rv.Float())
			return out, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

func toInt64(rv reflect.Value) (int64, error) {
	switch {
	case isIntKind(rv.Kind()):
		return rv.Int(), nil
	case isUintKind(rv.Kind()):
		if rv.Uint() > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", rv.Uint())
		}
		return int64(rv.Uint()), nil
	case rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%v is not an integer", f)
		}
		return int64(f), nil
	case rv.Kind() == reflect.String:
		return strconv.ParseInt(rv.String(), 10, 64)
	}
	return 0, fmt.Errorf("cannot use %s as an integer", rv.Type())
}

// decodeInput decodes an input object into a struct or map, matching keys
// against json tags.
func decodeInput(m map[string]any, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out.Interface(),
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if err := dec.Decode(m); err != nil {
		return reflect.Value{}, fmt.Errorf("decode %s: %w", t, err)
	}
	return out.Elem(), nil
}

// sourceValue adapts the parent value to the source parameter of a type
// resolver method, taking or dereferencing its address when needed.
func sourceValue(src any, p reflect.Type) (reflect.Value, error) {
	if src == nil {
		return reflect.Zero(p), nil
	}
	rv := reflect.ValueOf(src)
	rt := rv.Type()
	switch {
	case rt.AssignableTo(p):
		return rv, nil
	case rt.Kind() == reflect.Pointer && rt.Elem().AssignableTo(p):
		if rv.IsNil() {
			return reflect.Zero(p), nil
		}
		return rv.Elem(), nil
	case reflect.PointerTo(rt).AssignableTo(p):
		ptr := reflect.New(rt)
		ptr.Elem().Set(rv)
		return ptr, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot pass %T as %s", src, p)
}

// acceptsSource reports whether values of class can be passed as p. A nil
// class is unknown and accepted; the check then happens per call.
func acceptsSource(p, class reflect.Type) bool {
	if class == nil {
		return true
	}
	return class.AssignableTo(p) || reflect.PointerTo(class).AssignableTo(p) ||
		(class.Kind() == reflect.Pointer && class.Elem().AssignableTo(p))
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUintKind(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
