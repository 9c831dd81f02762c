package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/samber/lo"

	language "github.com/hanpama/gqlbind/internal/language"
	schema "github.com/hanpama/gqlbind/internal/schema"
)

// Path locates a value in the response: field response names and list
// indexes, outermost first.
type Path []PathElement

type PathElement any

var errNoResult = errors.New("runtime returned no result for field")

type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func NewExecutor(runtime Runtime, sch *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: sch}
}

// ExecuteRequest runs a query or mutation operation of document.
// Request errors come back as a result without data.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	op := getOperation(document, operationName)
	if op == nil {
		return requestError("operation not found")
	}
	vars, err := coerceVariableValues(e.schema, op, variableValues)
	if err != nil {
		return requestError(err.Error())
	}
	root, err := e.rootType(op.Operation)
	if err != nil {
		return requestError(err.Error())
	}

	x := e.start(ctx, document, vars)
	data := x.selectionSet(root, op.SelectionSet, initialValue, nil, nil)
	x.drain(data)
	return &ExecutionResult{Data: data, Errors: x.errors}
}

func requestError(msg string) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: msg}}}
}

func (e *Executor) rootType(op language.Operation) (*schema.Type, error) {
	var t *schema.Type
	switch op {
	case language.Query:
		t = e.schema.GetQueryType()
	case language.Mutation:
		t = e.schema.GetMutationType()
	case language.Subscription:
		t = e.schema.GetSubscriptionType()
	default:
		return nil, fmt.Errorf("unsupported operation type: %s", op)
	}
	if t == nil {
		return nil, fmt.Errorf("root type not found for %s operation", op)
	}
	return t, nil
}

// execution is the state of one operation, or of one subscription event.
type execution struct {
	ctx     context.Context
	runtime Runtime
	schema  *schema.Schema
	doc     *language.QueryDocument
	vars    map[string]any
	errors  []GraphQLError

	queue  []deferred
	nulled map[string]struct{}
}

// deferred is an async field waiting for the next batch. guard is the
// nearest path that may hold null; a non-null failure of the field nulls it.
type deferred struct {
	task   AsyncResolveTask
	path   Path
	guard  Path
	typ    *schema.TypeRef
	fields []*language.Field
}

// queued stands in the response for a deferred field until its batch is done.
type queued struct{}

func (e *Executor) start(ctx context.Context, document *language.QueryDocument, vars map[string]any) *execution {
	return &execution{
		ctx:     ctx,
		runtime: e.runtime,
		schema:  e.schema,
		doc:     document,
		vars:    vars,
		errors:  []GraphQLError{},
		nulled:  map[string]struct{}{},
	}
}

func (x *execution) addError(message string, path Path) {
	x.errors = append(x.errors, GraphQLError{Message: message, Path: path})
}

func (x *execution) hasErrorAt(path Path) bool {
	return lo.ContainsBy(x.errors, func(err GraphQLError) bool { return reflect.DeepEqual(err.Path, path) })
}

// selectionSet executes the fields of one object value. It returns nil when
// a non-null field below the root came back null, nulling the object itself.
// Root fields always keep their own slot.
func (x *execution) selectionSet(obj *schema.Type, set language.SelectionSet, source any, path, guard Path) map[string]any {
	out := make(map[string]any)
	for _, group := range x.collect(obj, set) {
		fieldPath := appendPath(path, group.name)
		name := group.fields[0].Name
		if name == "__typename" {
			out[group.name] = obj.Name
			continue
		}
		def := obj.Field(name)
		if def == nil {
			x.addError(fmt.Sprintf("Cannot query field '%s' on type '%s'", name, obj.Name), fieldPath)
			continue
		}

		nonNull := schema.IsNonNull(def.Type) && len(path) > 0
		fieldGuard := fieldPath
		if nonNull {
			fieldGuard = guard
		}
		v := x.field(obj, def, group.fields, source, fieldPath, fieldGuard)
		if isNullish(v) {
			if nonNull {
				return nil
			}
			x.prune(fieldPath)
			v = nil
		}
		out[group.name] = v
	}
	return out
}

// field resolves one field. Async fields are queued and answered by the
// next batch.
func (x *execution) field(obj *schema.Type, def *schema.Field, fields []*language.Field, source any, path, guard Path) any {
	args := coerceArgumentValues(def, fields[0].Arguments, x.vars, x, path)
	if def.Async {
		x.queue = append(x.queue, deferred{
			task:   AsyncResolveTask{ObjectType: obj.Name, Field: def.Name, Source: source, Args: args},
			path:   path,
			guard:  guard,
			typ:    def.Type,
			fields: fields,
		})
		return queued{}
	}
	v, err := x.runtime.ResolveSync(x.ctx, obj.Name, def.Name, source, args)
	if err != nil {
		x.addError(err.Error(), path)
		return nil
	}
	return x.complete(def.Type, fields, v, path, guard)
}

// drain runs one batch per depth until no async field is left. Once ctx is
// done the remaining fields fail with the context error without reaching the
// runtime.
func (x *execution) drain(data map[string]any) {
	for len(x.queue) > 0 {
		batch := lo.Reject(x.queue, func(d deferred, _ int) bool { return x.pruned(d.path) })
		x.queue = nil

		if err := x.ctx.Err(); err != nil {
			for _, d := range batch {
				x.settle(data, d, AsyncResolveResult{Error: err})
			}
			return
		}
		if len(batch) == 0 {
			return
		}

		results := x.runtime.BatchResolveAsync(x.ctx, lo.Map(batch, func(d deferred, _ int) AsyncResolveTask { return d.task }))
		for i, d := range batch {
			res := AsyncResolveResult{Error: errNoResult}
			if i < len(results) {
				res = results[i]
			}
			x.settle(data, d, res)
		}
	}
}

// settle completes a batch result and writes it into data.
func (x *execution) settle(data map[string]any, d deferred, res AsyncResolveResult) {
	if x.pruned(d.path) {
		return
	}
	var v any
	if res.Error != nil {
		x.addError(res.Error.Error(), d.path)
	} else {
		v = x.complete(d.typ, d.fields, res.Value, d.path, d.guard)
	}
	if !isNullish(v) {
		setValueAtPath(data, d.path, v)
		return
	}
	at := d.path
	if schema.IsNonNull(d.typ) {
		at = d.guard
	}
	setValueAtPath(data, at, nil)
	x.prune(at)
}

func (x *execution) complete(typ *schema.TypeRef, fields []*language.Field, v any, path, guard Path) any {
	if schema.IsNonNull(typ) {
		if isNullish(v) {
			if !x.hasErrorAt(path) {
				x.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", pathToString(path)), path)
			}
			return nil
		}
		return x.complete(typ.OfType, fields, v, path, guard)
	}
	if isNullish(v) {
		return nil
	}
	if schema.IsList(typ) {
		return x.list(typ.OfType, fields, v, path, guard)
	}

	name := schema.GetNamedType(typ)
	t := x.schema.Types[name]
	if t == nil {
		x.addError(fmt.Sprintf("Unknown type: %s", name), path)
		return nil
	}
	switch t.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		out, err := x.runtime.SerializeLeafValue(x.ctx, name, v)
		if err != nil {
			x.addError(err.Error(), path)
			return nil
		}
		return out
	case schema.TypeKindObject:
		return x.object(t, fields, v, path, guard)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		concrete, err := x.runtime.ResolveType(x.ctx, name, v)
		if err != nil {
			x.addError(err.Error(), path)
			return nil
		}
		ct := x.schema.Types[concrete]
		if ct == nil || ct.Kind != schema.TypeKindObject || !lo.Contains(t.PossibleTypes, concrete) {
			x.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", name, concrete), path)
			return nil
		}
		return x.object(ct, fields, v, path, guard)
	}
	x.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", t.Kind), path)
	return nil
}

func (x *execution) list(item *schema.TypeRef, fields []*language.Field, v any, path, guard Path) any {
	items, ok := listItems(v)
	if !ok {
		x.addError(fmt.Sprintf("Expected list value, got %T", v), path)
		return nil
	}
	nonNull := schema.IsNonNull(item)
	out := make([]any, len(items))
	for i, it := range items {
		p := appendPath(path, i)
		g := p
		if nonNull {
			g = guard
		}
		c := x.complete(item, fields, it, p, g)
		if isNullish(c) {
			if nonNull {
				return nil
			}
			x.prune(p)
			c = nil
		}
		out[i] = c
	}
	return out
}

func (x *execution) object(t *schema.Type, fields []*language.Field, v any, path, guard Path) any {
	var set language.SelectionSet
	for _, f := range fields {
		set = append(set, f.SelectionSet...)
	}
	if m := x.selectionSet(t, set, v, path, guard); m != nil {
		return m
	}
	return nil
}

func listItems(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// prune marks path as null in the response; fields still queued below it are
// dropped.
func (x *execution) prune(path Path) {
	if len(path) > 0 {
		x.nulled[pathToString(path)] = struct{}{}
	}
}

func (x *execution) pruned(path Path) bool {
	if len(x.nulled) == 0 {
		return false
	}
	for i := range path {
		if _, ok := x.nulled[pathToString(path[:i+1])]; ok {
			return true
		}
	}
	return false
}

func pathToString(path Path) string {
	var b strings.Builder
	for i, elem := range path {
		if i > 0 {
			b.WriteByte('.')
		}
		switch v := elem.(type) {
		case string:
			b.WriteString(v)
		case int:
			b.WriteString("[" + strconv.Itoa(v) + "]")
		}
	}
	return b.String()
}

func appendPath(path Path, elem PathElement) Path {
	out := make(Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

// setValueAtPath overwrites the value at path. Containers are never created;
// a path running through a null is ignored.
func setValueAtPath(root map[string]any, path Path, v any) {
	var cur any = root
	for i, elem := range path {
		last := i == len(path)-1
		switch e := elem.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return
			}
			if last {
				m[e] = v
				return
			}
			cur = m[e]
		case int:
			s, ok := cur.([]any)
			if !ok || e >= len(s) {
				return
			}
			if last {
				s[e] = v
				return
			}
			cur = s[e]
		}
	}
}

// getOperation picks the named operation. An empty name selects the only
// operation of a single-operation document.
func getOperation(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if operationName == "" {
		if len(document.Operations) == 1 {
			return document.Operations[0]
		}
		return nil
	}
	return document.Operations.ForName(operationName)
}

// isNullish reports nil interfaces and typed nils.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
