package binder

import (
	"context"
	"reflect"

	schema "github.com/hanpama/gqlbind/internal/schema"
	"github.com/hanpama/gqlbind/internal/wrapper"
)

// Environment is what a fetch function gets for one field evaluation. A
// resolver method may ask for it by declaring *Environment as its last
// parameter.
type Environment struct {
	Context  context.Context
	TypeName string
	Field    *schema.Field
	// Source is the parent value; nil for root fields.
	Source any
	// Args holds the coerced arguments. Omitted arguments without a default
	// are absent; an explicit null is present with a nil value.
	Args map[string]any
}

// Arg returns the named argument and whether it was supplied.
func (e *Environment) Arg(name string) (any, bool) {
	v, ok := e.Args[name]
	return v, ok
}

// FetchFunc produces the value of a field. The result is a plain value or a
// single wrapper.Awaitable.
type FetchFunc func(env *Environment) (any, error)

// ResolveFunc invokes the bound target and returns its raw result, envelopes
// included.
type ResolveFunc func(env *Environment) (any, error)

// Via names the kind of target a field was bound to.
type Via string

const (
	ViaResolver Via = "resolver" // method on a registered resolver
	ViaMethod   Via = "method"   // method on the source value
	ViaField    Via = "field"    // struct field of the source value
	ViaMapKey   Via = "map"      // key of a map source
	ViaMissing  Via = "missing"  // missing field handler
)

// ArgumentBinding maps one schema argument to a method parameter.
type ArgumentBinding struct {
	Name     string
	Position int
	NonNull  bool
	Type     reflect.Type
	Score    int
}

// FieldBinding is the result of binding one schema field.
type FieldBinding struct {
	TypeName string
	Field    string
	Via      Via
	// Target describes the bound method or field, e.g. "(*main.Query).Books".
	Target      string
	Args        []ArgumentBinding
	Specificity int
	Plan        wrapper.Plan
	// Resolve returns the raw result; Fetch applies Plan on top of it.
	Resolve ResolveFunc
	Fetch   FetchFunc
}

// Suspends reports whether Fetch may return a future.
func (b *FieldBinding) Suspends() bool {
	return b.Plan.Suspends()
}
