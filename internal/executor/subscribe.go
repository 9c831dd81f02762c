package executor

import (
	"context"
	"errors"
	"fmt"

	language "github.com/hanpama/gqlbind/internal/language"
	schema "github.com/hanpama/gqlbind/internal/schema"
)

// ErrNotSubscription is returned by Subscribe for query and mutation operations.
var ErrNotSubscription = errors.New("operation is not a subscription")

// Subscribe starts a subscription operation. The single root field's source
// stream is opened through Runtime.Subscribe and every event is executed
// against the root field's selection set, producing one ExecutionResult per
// event. The returned channel is closed when the source stream ends or ctx is
// done.
//
// Request errors (unknown operation, bad variables, more than one root field,
// a failure to open the stream) are returned as an error.
func (e *Executor) Subscribe(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
) (<-chan *ExecutionResult, error) {
	operation := getOperation(document, operationName)
	if operation == nil {
		return nil, fmt.Errorf("operation not found")
	}
	if operation.Operation != language.Subscription {
		return nil, ErrNotSubscription
	}
	rootType, err := e.rootType(operation.Operation)
	if err != nil {
		return nil, err
	}
	coerced, err := coerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return nil, err
	}

	x := e.start(ctx, document, coerced)
	groups := x.collect(rootType, operation.SelectionSet)
	if len(groups) != 1 {
		return nil, fmt.Errorf("subscription must select exactly one root field, got %d", len(groups))
	}
	root := groups[0]
	fieldDef := rootType.Field(root.fields[0].Name)
	if fieldDef == nil {
		return nil, fmt.Errorf("Cannot query field '%s' on type '%s'", root.fields[0].Name, rootType.Name)
	}
	path := Path{root.name}
	args := coerceArgumentValues(fieldDef, root.fields[0].Arguments, coerced, x, path)
	if len(x.errors) > 0 {
		return nil, x.errors[0]
	}

	events, err := e.runtime.Subscribe(ctx, rootType.Name, fieldDef.Name, args)
	if err != nil {
		return nil, err
	}

	out := make(chan *ExecutionResult)
	go func() {
		defer close(out)
		for {
			var event any
			var ok bool
			select {
			case <-ctx.Done():
				return
			case event, ok = <-events:
				if !ok {
					return
				}
			}
			res := e.executeEvent(ctx, document, coerced, fieldDef, root, event)
			select {
			case <-ctx.Done():
				return
			case out <- res:
			}
		}
	}()
	return out, nil
}

// executeEvent completes one source event as the value of the root field.
func (e *Executor) executeEvent(
	ctx context.Context,
	document *language.QueryDocument,
	variableValues map[string]any,
	fieldDef *schema.Field,
	root fieldGroup,
	event any,
) *ExecutionResult {
	x := e.start(ctx, document, variableValues)
	path := Path{root.name}
	data := map[string]any{root.name: nil}

	if err, ok := event.(error); ok {
		x.addError(err.Error(), path)
		return &ExecutionResult{Data: data, Errors: x.errors}
	}
	if v := x.complete(fieldDef.Type, root.fields, event, path, path); isNullish(v) {
		x.prune(path)
	} else {
		data[root.name] = v
	}
	x.drain(data)
	return &ExecutionResult{Data: data, Errors: x.errors}
}
