// Package executor runs GraphQL operations against an executable schema,
// delegating every field value to a Runtime.
//
// Execution is breadth-first. At each depth the executor first expands
// synchronous fields (schema.Field.Async == false) through
// Runtime.ResolveSync, descending into their objects without adding depth.
// The asynchronous fields found on the way are collected and handed to
// Runtime.BatchResolveAsync in one call; their results are completed and
// their children form the next depth. An operation whose deepest async path
// has length d therefore makes exactly d batch calls.
//
// Values are completed as GraphQL requires:
//   - Non-Null: a null or an error propagates to the nearest nullable
//     ancestor, and queued tasks below that ancestor are dropped.
//   - List: items are completed with their index in the path.
//   - Scalar and Enum: Runtime.SerializeLeafValue.
//   - Interface and Union: Runtime.ResolveType picks the concrete type, which
//     must be a possible type of the abstract one.
//
// Errors are collected with their response path and never abort the whole
// operation. Fragment type conditions match the concrete type itself, an
// interface it implements or a union it belongs to.
//
// Mutation root fields are executed in document order; a runtime that marks
// them async receives them in one batch, in that order, and must run them one
// after another. Subscription operations go through Executor.Subscribe,
// which completes each source event as the value of the root field.
//
// When the context is done, tasks still queued fail with the context error
// instead of reaching the runtime.
package executor
