package wiring

import (
	"context"
	"encoding"
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	schema "github.com/hanpama/gqlbind/internal/schema"
)

// SerializeLeafValue turns a resolved scalar or enum into a JSON value.
// Custom scalars go through their registered serializer first.
func (w *Wiring) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	value = deref(value)
	if value == nil {
		return nil, nil
	}
	if s, ok := w.scalars[typeName]; ok {
		return s(value)
	}
	t := w.schema.Types[typeName]
	if t != nil && t.Kind == schema.TypeKindEnum {
		return serializeEnum(t, value)
	}
	switch typeName {
	case "Int":
		return serializeInt(value)
	case "Float":
		return serializeFloat(value)
	case "String", "ID":
		return serializeString(value)
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
		return nil, fmt.Errorf("Boolean cannot represent %T", value)
	}
	return serializeCustom(value), nil
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return nil
		}
		// Well-known protobuf messages are pointers and keep their methods.
		switch v.(type) {
		case *timestamppb.Timestamp, *durationpb.Duration:
			return v
		}
		if _, ok := v.(encoding.TextMarshaler); ok && rv.Elem().Kind() == reflect.Struct {
			return v
		}
		rv = rv.Elem()
		v = rv.Interface()
	}
	if !rv.IsValid() {
		return nil
	}
	return v
}

func serializeInt(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		n := rv.Int()
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %d", n)
		}
		return int32(n), nil
	case rv.CanUint():
		n := rv.Uint()
		if n > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %d", n)
		}
		return int32(n), nil
	case rv.CanFloat():
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent non-integer value: %v", f)
		}
		return int32(f), nil
	case rv.Kind() == reflect.String:
		n, err := strconv.ParseInt(rv.String(), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("Int cannot represent %q", rv.String())
		}
		return int32(n), nil
	}
	return nil, fmt.Errorf("Int cannot represent %T", v)
}

func serializeFloat(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanFloat():
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("Float cannot represent non numeric value: %v", f)
		}
		return f, nil
	case rv.CanInt():
		return float64(rv.Int()), nil
	case rv.CanUint():
		return float64(rv.Uint()), nil
	case rv.Kind() == reflect.String:
		f, err := strconv.ParseFloat(rv.String(), 64)
		if err != nil {
			return nil, fmt.Errorf("Float cannot represent %q", rv.String())
		}
		return f, nil
	}
	return nil, fmt.Errorf("Float cannot represent %T", v)
}

func serializeString(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(s), nil
	case fmt.Stringer:
		return s.String(), nil
	case encoding.TextMarshaler:
		b, err := s.MarshalText()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Kind() == reflect.String:
		return rv.String(), nil
	case rv.CanInt():
		return strconv.FormatInt(rv.Int(), 10), nil
	case rv.CanUint():
		return strconv.FormatUint(rv.Uint(), 10), nil
	case rv.CanFloat():
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), nil
	case rv.Kind() == reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	}
	return nil, fmt.Errorf("String cannot represent %T", v)
}

func serializeEnum(t *schema.Type, v any) (any, error) {
	var name string
	switch e := v.(type) {
	case fmt.Stringer:
		name = e.String()
	case encoding.TextMarshaler:
		b, err := e.MarshalText()
		if err != nil {
			return nil, err
		}
		name = string(b)
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.String {
			return nil, fmt.Errorf("enum %s cannot represent %T", t.Name, v)
		}
		name = rv.String()
	}
	for _, ev := range t.EnumValues {
		if ev.Name == name {
			return name, nil
		}
	}
	return nil, fmt.Errorf("enum %s has no value %q", t.Name, name)
}

// serializeCustom handles scalars without a registered serializer.
func serializeCustom(v any) any {
	switch s := v.(type) {
	case *timestamppb.Timestamp:
		return s.AsTime().UTC().Format(time.RFC3339Nano)
	case *durationpb.Duration:
		return s.AsDuration().String()
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return s.String()
	case []byte:
		return base64.StdEncoding.EncodeToString(s)
	case encoding.TextMarshaler:
		b, err := s.MarshalText()
		if err != nil {
			return v
		}
		return string(b)
	}
	return v
}
