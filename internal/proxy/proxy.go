// Package proxy finds the implementation behind a resolver that has been
// wrapped by a decorator or a generated proxy type.
package proxy

import (
	"reflect"
	"regexp"
)

// Handler recognises one proxy shape.
type Handler interface {
	CanHandle(resolver any) bool
	// TargetClass is the type whose methods should be bound.
	TargetClass(resolver any) reflect.Type
}

// ValueHandler is a Handler that can also hand out the wrapped value, used as
// receiver for methods the proxy itself does not expose.
type ValueHandler interface {
	Handler
	TargetValue(resolver any) reflect.Value
}

// Target is the outcome of resolving a resolver instance.
type Target struct {
	// Class is the type inspected when matching methods.
	Class reflect.Type
	// Value is the receiver for methods of Class. It is invalid when the
	// handler only knew the class.
	Value reflect.Value
	// Instance is the registered resolver itself.
	Instance reflect.Value
	// Proxied is set when a handler matched.
	Proxied bool
}

// Method returns the bound method name, preferring the instance's own method
// set so that interception in the proxy is kept.
func (t Target) Method(name string) (reflect.Value, bool) {
	if t.Instance.IsValid() {
		if m := t.Instance.MethodByName(name); m.IsValid() {
			return m, true
		}
	}
	if t.Proxied && t.Value.IsValid() {
		if m := t.Value.MethodByName(name); m.IsValid() {
			return m, true
		}
	}
	return reflect.Value{}, false
}

// Receiver is the value used for struct field and map lookups.
func (t Target) Receiver() reflect.Value {
	if t.Proxied && t.Value.IsValid() {
		return t.Value
	}
	return t.Instance
}

// Resolver runs handlers in registration order; the first match wins.
type Resolver struct {
	handlers []Handler
}

func New(handlers ...Handler) *Resolver {
	return &Resolver{handlers: append([]Handler(nil), handlers...)}
}

// Default recognises Unwrap() decorators and types named like *Proxy that
// embed their target first.
func Default() *Resolver {
	return New(Unwrapper{}, NamePattern{})
}

// Register appends h after the existing handlers.
func (r *Resolver) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

// Resolve classifies resolver. Without a matching handler the instance's own
// type is used. A nil resolver gives the zero Target.
func (r *Resolver) Resolve(resolver any) Target {
	if resolver == nil {
		return Target{}
	}
	inst := reflect.ValueOf(resolver)
	for _, h := range r.handlers {
		if !h.CanHandle(resolver) {
			continue
		}
		t := Target{Class: h.TargetClass(resolver), Instance: inst, Proxied: true}
		if vh, ok := h.(ValueHandler); ok {
			t.Value = vh.TargetValue(resolver)
		}
		if t.Class == nil {
			break
		}
		return t
	}
	return Target{Class: inst.Type(), Value: inst, Instance: inst}
}

// Unwrapper handles decorators exposing the wrapped resolver through
// Unwrap() any.
type Unwrapper struct{}

type unwrapper interface{ Unwrap() any }

func (Unwrapper) CanHandle(resolver any) bool {
	u, ok := resolver.(unwrapper)
	return ok && u.Unwrap() != nil
}

func (Unwrapper) TargetClass(resolver any) reflect.Type {
	return reflect.TypeOf(resolver.(unwrapper).Unwrap())
}

func (Unwrapper) TargetValue(resolver any) reflect.Value {
	return reflect.ValueOf(resolver.(unwrapper).Unwrap())
}

var defaultProxyPattern = regexp.MustCompile(`Proxy$`)

// NamePattern handles generated proxy structs: the type name matches Pattern
// (default `Proxy$`) and the first field is embedded. The embedded field is
// the target.
type NamePattern struct {
	Pattern *regexp.Regexp
}

func (p NamePattern) pattern() *regexp.Regexp {
	if p.Pattern != nil {
		return p.Pattern
	}
	return defaultProxyPattern
}

func (p NamePattern) CanHandle(resolver any) bool {
	t := reflect.TypeOf(resolver)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct || t.NumField() == 0 {
		return false
	}
	return t.Field(0).Anonymous && p.pattern().MatchString(t.Name())
}

// TargetClass is the embedded type, as a pointer so its full method set is
// visible. Promoted methods and fields are reached through the proxy itself.
func (p NamePattern) TargetClass(resolver any) reflect.Type {
	t := reflect.TypeOf(resolver)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	f := t.Field(0).Type
	if f.Kind() != reflect.Pointer {
		f = reflect.PointerTo(f)
	}
	return f
}
