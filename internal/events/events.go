// Package events declares the payloads published on the event bus while
// wiring a schema and serving operations.
package events

import "time"

// RequestStart is published when the HTTP handler receives a request. The
// publishing context carries the request id.
type RequestStart struct {
	Method string
	Path   string
}

// RequestFinish is published once the response has been written.
type RequestFinish struct {
	Method   string
	Path     string
	Status   int
	Duration time.Duration
}

// Operation identifies a GraphQL operation of a request.
type Operation struct {
	Name  string
	Type  string
	Query string
}

type OperationStart struct {
	Operation
}

// OperationFinish is published after an operation has been executed. For a
// subscription it comes when the stream ends, with Events counting the
// results sent.
type OperationFinish struct {
	Operation
	Errors   []error
	Events   int
	Duration time.Duration
}

// BuildFinish is emitted after a wiring has been built, successfully or not.
type BuildFinish struct {
	Types    int
	Fields   int
	Errors   []error
	Duration time.Duration
}

// ResolverFinish is emitted once an asynchronous field result is available.
// Duration is measured from the start of the batch that produced it.
type ResolverFinish struct {
	ObjectType string
	Field      string
	Err        error
	Duration   time.Duration
}
