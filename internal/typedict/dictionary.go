package typedict

import (
	"fmt"
	"reflect"
	"strings"
)

// DuplicateMappingError reports a schema type or Go type that is already
// bound to something else.
type DuplicateMappingError struct {
	Type     string
	Classes  []reflect.Type
	Existing string
}

func (e *DuplicateMappingError) Error() string {
	names := make([]string, len(e.Classes))
	for i, c := range e.Classes {
		names[i] = c.String()
	}
	if e.Existing != "" {
		return fmt.Sprintf("type %s cannot be bound to %s: already bound to schema type %s", e.Type, strings.Join(names, ", "), e.Existing)
	}
	return fmt.Sprintf("type %s is bound to conflicting Go types %s", e.Type, strings.Join(names, ", "))
}

// Dictionary maps schema type names to Go types. Pointer types are stored as
// their element type so *Book and Book resolve to the same entry.
type Dictionary struct {
	m *BiMap[string, reflect.Type]
}

func NewDictionary() *Dictionary {
	return &Dictionary{m: NewBiMap[string, reflect.Type]()}
}

// Put binds name to t. The same pair again is a no-op; a conflict on either
// side fails with *DuplicateMappingError.
func (d *Dictionary) Put(name string, t reflect.Type) error {
	t = Base(t)
	if existing, ok := d.m.Get(name); ok {
		if existing == t {
			return nil
		}
		return &DuplicateMappingError{Type: name, Classes: []reflect.Type{existing, t}}
	}
	if owner, ok := d.m.Inverse().Get(t); ok {
		return &DuplicateMappingError{Type: name, Classes: []reflect.Type{t}, Existing: owner}
	}
	_, err := d.m.Put(name, t)
	return err
}

// Add binds name to the dynamic type of sample.
func (d *Dictionary) Add(name string, sample any) error {
	if sample == nil {
		return fmt.Errorf("type %s: nil sample", name)
	}
	return d.Put(name, reflect.TypeOf(sample))
}

func (d *Dictionary) TypeFor(name string) (reflect.Type, bool) { return d.m.Get(name) }

func (d *Dictionary) NameFor(t reflect.Type) (string, bool) {
	if t == nil {
		return "", false
	}
	return d.m.Inverse().Get(Base(t))
}

func (d *Dictionary) Remove(name string) error {
	_, _, err := d.m.Remove(name)
	return err
}

func (d *Dictionary) Names() []string { return d.m.Keys() }

func (d *Dictionary) Len() int { return d.m.Len() }

// Freeze returns a read-only dictionary sharing d's entries.
func (d *Dictionary) Freeze() *Dictionary {
	return &Dictionary{m: d.m.Freeze()}
}

// Base strips pointer indirections.
func Base(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
