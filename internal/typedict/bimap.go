// Package typedict keeps the two-way association between schema type names
// and the Go types that implement them.
package typedict

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicateValue is returned when a value is already bound to another key.
	ErrDuplicateValue = errors.New("value already present")
	// ErrReadOnly is returned by mutations on a frozen map.
	ErrReadOnly = errors.New("read-only map")
)

// BiMap is a map whose values are unique, so it can be looked up in both
// directions. The zero value is not usable; use NewBiMap.
//
// A BiMap and its Inverse share storage: a change through one is visible
// through the other.
type BiMap[K comparable, V comparable] struct {
	s       *store[K, V]
	frozen  bool
	inverse *BiMap[V, K]
}

type store[K comparable, V comparable] struct {
	forward  map[K]V
	backward map[V]K
}

func NewBiMap[K comparable, V comparable]() *BiMap[K, V] {
	return linked(&store[K, V]{forward: map[K]V{}, backward: map[V]K{}}, false)
}

// linked builds a view over s together with its inverse, so that neither
// Inverse nor a lookup ever writes to a shared map.
func linked[K comparable, V comparable](s *store[K, V], frozen bool) *BiMap[K, V] {
	m := &BiMap[K, V]{s: s, frozen: frozen}
	m.inverse = &BiMap[V, K]{
		s:       &store[V, K]{forward: s.backward, backward: s.forward},
		frozen:  frozen,
		inverse: m,
	}
	return m
}

// Put binds k to v and returns the value k was bound to before.
// Putting the same pair again is a no-op. Binding a value that already belongs
// to a different key fails with ErrDuplicateValue. Rebinding an existing key
// replaces its value and drops the old value from the inverse.
func (m *BiMap[K, V]) Put(k K, v V) (prev V, err error) {
	if m.frozen {
		return prev, ErrReadOnly
	}
	old, hadKey := m.s.forward[k]
	if hadKey && old == v {
		return old, nil
	}
	if owner, taken := m.s.backward[v]; taken {
		return prev, fmt.Errorf("%w: %v is bound to %v", ErrDuplicateValue, v, owner)
	}
	if hadKey {
		delete(m.s.backward, old)
	}
	m.s.forward[k] = v
	m.s.backward[v] = k
	return old, nil
}

func (m *BiMap[K, V]) Get(k K) (V, bool) {
	v, ok := m.s.forward[k]
	return v, ok
}

func (m *BiMap[K, V]) ContainsKey(k K) bool {
	_, ok := m.s.forward[k]
	return ok
}

func (m *BiMap[K, V]) ContainsValue(v V) bool {
	_, ok := m.s.backward[v]
	return ok
}

// Remove deletes k and its value from both directions.
func (m *BiMap[K, V]) Remove(k K) (V, bool, error) {
	var zero V
	if m.frozen {
		return zero, false, ErrReadOnly
	}
	v, ok := m.s.forward[k]
	if !ok {
		return zero, false, nil
	}
	delete(m.s.forward, k)
	delete(m.s.backward, v)
	return v, true, nil
}

func (m *BiMap[K, V]) Clear() error {
	if m.frozen {
		return ErrReadOnly
	}
	clear(m.s.forward)
	clear(m.s.backward)
	return nil
}

func (m *BiMap[K, V]) Len() int { return len(m.s.forward) }

// Keys returns the keys ordered by their fmt representation.
func (m *BiMap[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.s.forward))
	for k := range m.s.forward {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j]) })
	return keys
}

// Inverse returns the value-to-key view. Inverse().Inverse() is m itself.
func (m *BiMap[K, V]) Inverse() *BiMap[V, K] { return m.inverse }

// Freeze returns a read-only view sharing m's storage.
func (m *BiMap[K, V]) Freeze() *BiMap[K, V] {
	if m.frozen {
		return m
	}
	return linked(m.s, true)
}
