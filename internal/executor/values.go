package executor

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	language "github.com/hanpama/gqlbind/internal/language"
	schema "github.com/hanpama/gqlbind/internal/schema"
)

// coerceVariableValues checks the supplied variables against the operation's
// definitions, filling in defaults. Names may be given with or without "$".
func coerceVariableValues(
	sch *schema.Schema,
	operation *language.OperationDefinition,
	supplied map[string]any,
) (map[string]any, error) {
	c := coercer{sch}
	out := make(map[string]any, len(operation.VariableDefinitions))
	for _, def := range operation.VariableDefinitions {
		name, typ := def.Variable, def.Type
		val, ok := supplied[name]
		if !ok {
			val, ok = supplied[strings.TrimPrefix(name, "$")]
		}
		if !ok {
			switch {
			case def.DefaultValue != nil:
				val = literalValue(def.DefaultValue, nil)
			case typ.NonNull:
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, typ.String())
			default:
				continue
			}
		}
		if val == nil && typ.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, typ.String())
		}
		cv, err := c.value(val, schema.RefFromAST(typ))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %w", name, typ.String(), err)
		}
		out[name] = cv
	}
	return out, nil
}

// coerceArgumentValues builds the argument map of one field. Failures are
// recorded on state at path; the offending argument is left out.
func coerceArgumentValues(
	fieldDef *schema.Field,
	arguments language.ArgumentList,
	variableValues map[string]any,
	state *execution,
	path Path,
) map[string]any {
	c := coercer{state.schema}
	out := make(map[string]any, len(fieldDef.Arguments))
	for _, def := range fieldDef.Arguments {
		arg := arguments.ForName(def.Name)
		if arg != nil && arg.Value != nil && arg.Value.Kind == language.Variable {
			if _, ok := variableValues[arg.Value.Raw]; !ok {
				arg = nil
			}
		}
		if arg == nil {
			switch {
			case def.DefaultValue != nil:
				out[def.Name] = def.DefaultValue
			case schema.IsNonNull(def.Type):
				state.addError(fmt.Sprintf("argument '%s' of required type was not provided", def.Name), path)
			}
			continue
		}
		cv, err := c.value(literalValue(arg.Value, variableValues), def.Type)
		if err != nil {
			state.addError(fmt.Sprintf("argument '%s' cannot be coerced: %v", def.Name, err), path)
			continue
		}
		out[def.Name] = cv
	}
	return out
}

// literalValue converts a query literal. Variables are looked up in vars at
// any depth; an object field bound to an absent variable is left out.
func literalValue(value *language.Value, vars map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.Variable:
		if v, ok := variable(value.Raw, vars); ok {
			return v
		}
		return nil
	case language.IntValue:
		n, _ := strconv.Atoi(value.Raw)
		return n
	case language.FloatValue:
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case language.BooleanValue:
		return value.Raw == "true"
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.ListValue:
		return lo.Map(value.Children, func(c *language.ChildValue, _ int) any { return literalValue(c.Value, vars) })
	case language.ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			if f.Value != nil && f.Value.Kind == language.Variable {
				if _, ok := variable(f.Value.Raw, vars); !ok {
					continue
				}
			}
			m[f.Name] = literalValue(f.Value, vars)
		}
		return m
	}
	return nil
}

func variable(name string, vars map[string]any) (any, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}
	v, ok := vars[strings.TrimPrefix(name, "$")]
	return v, ok
}

// coercer applies input coercion against the types of one schema.
type coercer struct {
	sch *schema.Schema
}

func (c coercer) value(v any, ref *schema.TypeRef) (any, error) {
	if schema.IsNonNull(ref) {
		if v == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type")
		}
		return c.value(v, ref.OfType)
	}
	if v == nil {
		return nil, nil
	}
	if ref.Kind == schema.TypeRefKindList {
		items, ok := v.([]any)
		if !ok {
			// a single item stands for a list of one
			item, err := c.value(v, ref.OfType)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			cv, err := c.value(item, ref.OfType)
			if err != nil {
				return nil, fmt.Errorf("at index %d: %w", i, err)
			}
			out[i] = cv
		}
		return out, nil
	}
	return c.named(v, ref.Named)
}

func (c coercer) named(v any, name string) (any, error) {
	switch name {
	case "Int":
		return coerceInt(v)
	case "Float":
		return coerceFloat(v)
	case "String":
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, mismatch(v, name)
	case "Boolean":
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, mismatch(v, name)
	case "ID":
		if s, ok := v.(string); ok {
			return s, nil
		}
		n, err := coerceInt(v)
		if err != nil {
			return nil, mismatch(v, name)
		}
		return strconv.Itoa(n.(int)), nil
	}
	t := c.sch.Types[name]
	if t == nil {
		return v, nil
	}
	switch t.Kind {
	case schema.TypeKindEnum:
		s, ok := v.(string)
		if ok && lo.ContainsBy(t.EnumValues, func(ev *schema.EnumValue) bool { return ev.Name == s }) {
			return s, nil
		}
		return nil, fmt.Errorf("value %v is not a member of enum %s", v, name)
	case schema.TypeKindInputObject:
		return c.object(v, t)
	}
	// custom scalars are left to the runtime
	return v, nil
}

func (c coercer) object(v any, t *schema.Type) (any, error) {
	in, ok := v.(map[string]any)
	if !ok {
		return nil, mismatch(v, t.Name)
	}
	unknown := lo.OmitByKeys(in, lo.Map(t.InputFields, func(f *schema.InputValue, _ int) string { return f.Name }))
	if len(unknown) > 0 {
		keys := lo.Keys(unknown)
		sort.Strings(keys)
		return nil, fmt.Errorf("field '%s' is not defined by %s", keys[0], t.Name)
	}
	out := make(map[string]any, len(t.InputFields))
	for _, f := range t.InputFields {
		fv, present := in[f.Name]
		if !present {
			switch {
			case f.DefaultValue != nil:
				out[f.Name] = f.DefaultValue
			case schema.IsNonNull(f.Type):
				return nil, fmt.Errorf("required field '%s' of %s was not provided", f.Name, t.Name)
			}
			continue
		}
		cv, err := c.value(fv, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field '%s' of %s: %w", f.Name, t.Name, err)
		}
		out[f.Name] = cv
	}
	if t.OneOf {
		if len(in) != 1 || lo.Values(in)[0] == nil {
			return nil, fmt.Errorf("exactly one field of %s must be given and not null", t.Name)
		}
	}
	return out, nil
}

// coerceInt accepts integral numbers within 32 bits. Integral floats are
// allowed since JSON variables decode to float64.
func coerceInt(v any) (any, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return nil, mismatch(v, "Int")
		}
		n = int64(x)
	default:
		return nil, mismatch(v, "Int")
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("cannot coerce %d to Int: out of 32-bit range", n)
	}
	return int(n), nil
}

func coerceFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return nil, mismatch(v, "Float")
}

func mismatch(v any, typeName string) error {
	return fmt.Errorf("cannot coerce %v (%T) to %s", v, v, typeName)
}
