package typedict

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestBiMapPut(t *testing.T) {
	t.Run("lookup works both ways", func(t *testing.T) {
		m := NewBiMap[string, int]()
		_, err := m.Put("a", 1)
		require.NoError(t, err)

		v, ok := m.Get("a")
		require.True(t, ok)
		require.Equal(t, 1, v)
		k, ok := m.Inverse().Get(1)
		require.True(t, ok)
		require.Equal(t, "a", k)
	})

	t.Run("same pair is a no-op", func(t *testing.T) {
		m := NewBiMap[string, int]()
		_, err := m.Put("a", 1)
		require.NoError(t, err)
		prev, err := m.Put("a", 1)
		require.NoError(t, err)
		require.Equal(t, 1, prev)
		require.Equal(t, 1, m.Len())
	})

	t.Run("duplicate value is rejected", func(t *testing.T) {
		m := NewBiMap[string, int]()
		_, err := m.Put("a", 1)
		require.NoError(t, err)
		_, err = m.Put("b", 1)
		require.ErrorIs(t, err, ErrDuplicateValue)
		require.False(t, m.ContainsKey("b"))
	})

	t.Run("rebinding a key drops the old value", func(t *testing.T) {
		m := NewBiMap[string, int]()
		_, _ = m.Put("a", 1)
		prev, err := m.Put("a", 2)
		require.NoError(t, err)
		require.Equal(t, 1, prev)
		require.False(t, m.ContainsValue(1))
		require.True(t, m.ContainsValue(2))
	})
}

func TestBiMapInverseIsLive(t *testing.T) {
	m := NewBiMap[string, int]()
	inv := m.Inverse()
	require.Same(t, m, inv.Inverse())

	_, err := inv.Put(7, "seven")
	require.NoError(t, err)
	v, ok := m.Get("seven")
	require.True(t, ok)
	require.Equal(t, 7, v)

	_, removed, err := m.Remove("seven")
	require.NoError(t, err)
	require.True(t, removed)
	require.False(t, inv.ContainsKey(7))
	require.Zero(t, inv.Len())
}

func TestBiMapFreeze(t *testing.T) {
	m := NewBiMap[string, int]()
	_, _ = m.Put("a", 1)
	ro := m.Freeze()

	_, err := ro.Put("b", 2)
	require.ErrorIs(t, err, ErrReadOnly)
	_, _, err = ro.Remove("a")
	require.ErrorIs(t, err, ErrReadOnly)
	require.ErrorIs(t, ro.Clear(), ErrReadOnly)
	_, err = ro.Inverse().Put(3, "c")
	require.ErrorIs(t, err, ErrReadOnly)

	_, _ = m.Put("c", 3)
	require.True(t, ro.ContainsKey("c"))
	require.Equal(t, []string{"a", "c"}, ro.Keys())
	require.Same(t, ro, ro.Inverse().Inverse())
	k, ok := ro.Inverse().Get(3)
	require.True(t, ok)
	require.Equal(t, "c", k)
}

func TestFrozenDictionaryConcurrentReads(t *testing.T) {
	d := NewDictionary()
	require.NoError(t, d.Add("Book", &book{}))
	require.NoError(t, d.Add("Author", &author{}))
	ro := d.Freeze()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				name, ok := ro.NameFor(reflect.TypeOf(&book{}))
				if !ok || name != "Book" {
					t.Errorf("NameFor(*book) = %q, %v", name, ok)
					return
				}
				if _, ok := ro.TypeFor("Author"); !ok {
					t.Error("Author is missing")
					return
				}
			}
		}()
	}
	wg.Wait()
}

type book struct{ Title string }
type author struct{ Name string }

func TestDictionary(t *testing.T) {
	bookT := reflect.TypeOf(book{})

	t.Run("pointer and value share an entry", func(t *testing.T) {
		d := NewDictionary()
		require.NoError(t, d.Add("Book", &book{}))
		require.NoError(t, d.Put("Book", bookT))

		name, ok := d.NameFor(reflect.TypeOf(&book{}))
		require.True(t, ok)
		require.Equal(t, "Book", name)
		got, ok := d.TypeFor("Book")
		require.True(t, ok)
		require.Equal(t, bookT, got)
	})

	t.Run("go type bound to two schema types", func(t *testing.T) {
		d := NewDictionary()
		require.NoError(t, d.Put("Book", bookT))
		err := d.Put("Novel", bookT)

		var dup *DuplicateMappingError
		require.True(t, errors.As(err, &dup))
		require.Equal(t, "Novel", dup.Type)
		require.Equal(t, "Book", dup.Existing)
		require.Contains(t, err.Error(), "already bound to schema type Book")
	})

	t.Run("schema type bound to two go types", func(t *testing.T) {
		d := NewDictionary()
		require.NoError(t, d.Put("Book", bookT))
		err := d.Add("Book", author{})

		var dup *DuplicateMappingError
		require.True(t, errors.As(err, &dup))
		want := []reflect.Type{bookT, reflect.TypeOf(author{})}
		if diff := cmp.Diff(want, dup.Classes, cmp.Comparer(func(a, b reflect.Type) bool { return a == b })); diff != "" {
			t.Fatalf("classes mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("remove cascades", func(t *testing.T) {
		d := NewDictionary()
		require.NoError(t, d.Put("Book", bookT))
		require.NoError(t, d.Remove("Book"))
		_, ok := d.NameFor(bookT)
		require.False(t, ok)
		require.NoError(t, d.Put("Novel", bookT))
	})

	t.Run("frozen dictionary rejects writes", func(t *testing.T) {
		d := NewDictionary()
		require.NoError(t, d.Put("Book", bookT))
		ro := d.Freeze()
		require.ErrorIs(t, ro.Add("Author", author{}), ErrReadOnly)
		require.Equal(t, []string{"Book"}, ro.Names())
	})
}
