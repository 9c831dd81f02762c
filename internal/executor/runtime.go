package executor

import (
	"context"
)

// Runtime is the host side of execution: it produces field values, names
// the concrete type of abstract values and serializes leaves.
//
// Errors returned from any method become located GraphQL errors on the field
// being resolved. Implementations are shared between concurrent operations
// and must not mutate source or args.
//
// objectType and field name the schema field being resolved; for root
// fields objectType is the root type name and source is the operation's
// initial value. args holds the coerced arguments; omitted arguments without
// a default are absent from the map.
//
// BatchResolveAsync returns exactly one result per task, at the same index.
// A failing task does not fail the batch. Tasks under paths nulled by a
// Non-Null violation are filtered out before the call.
//
// Subscribe is only called for the single root field of a subscription
// operation.
type Runtime interface {
	// ResolveSync returns the raw value of a field with Async == false.
	// (nil, nil) is a GraphQL null.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves the async fields of one depth. Mutation root
	// tasks arrive in document order.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType names the concrete object type of a value of an interface
	// or union type.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue turns a scalar or enum value into a JSON-ready value:
	// int32 for Int, float64 for Float, string for String, ID and enums, bool
	// for Boolean.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)

	// Subscribe opens the source event stream of a subscription root field.
	//
	// Each value received from the channel is one event; the Executor completes
	// it against the operation's selection set. An event that is an error is
	// reported as a located error for that event. Implementations must close
	// the channel when the stream ends or ctx is done, and must stop reading
	// from the underlying producer after that.
	Subscribe(ctx context.Context, objectType string, field string, args map[string]any) (<-chan any, error)
}

type AsyncResolveTask struct {
	// ObjectType is the parent GraphQL object type name for the field.
	ObjectType string
	// Field is the GraphQL field name to resolve.
	Field string
	// Source is the parent object value (nil for root fields).
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any
}

type AsyncResolveResult struct {
	// Value is the resolved raw value prior to completion, or nil on error.
	Value any
	// Error contains a failure specific to this element; other elements in the
	// same batch are unaffected.
	Error error
}
