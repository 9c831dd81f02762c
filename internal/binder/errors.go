package binder

import (
	"fmt"
	"strings"
)

// UnresolvedFieldError is returned when nothing implements a schema field.
// Signatures lists what was looked for.
type UnresolvedFieldError struct {
	Type       string
	Field      string
	Signatures []string
}

func (e *UnresolvedFieldError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no resolver found for field %s.%s", e.Type, e.Field)
	if len(e.Signatures) > 0 {
		b.WriteString(", tried:")
		for _, s := range e.Signatures {
			b.WriteString("\n  ")
			b.WriteString(s)
		}
	}
	return b.String()
}

// AmbiguousFieldError is returned when more than one method matches a field
// with the same specificity.
type AmbiguousFieldError struct {
	Type       string
	Field      string
	Candidates []string
}

func (e *AmbiguousFieldError) Error() string {
	return fmt.Sprintf("ambiguous resolver for field %s.%s: %s", e.Type, e.Field, strings.Join(e.Candidates, " and "))
}

// UnmappedTypeError is returned for an object type that has neither a Go
// type nor a resolver, which happens when it is only ever returned through
// interface-typed results.
type UnmappedTypeError struct {
	Type string
}

func (e *UnmappedTypeError) Error() string {
	return fmt.Sprintf("no Go type is known for %s: it is only returned as an interface value; register it with WithType or add a resolver for it", e.Type)
}
