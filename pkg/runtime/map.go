package runtime

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Map is the object map variant: string keys in insertion order. Entries are
// stored as *Value so chains can mutate them in place.
type Map struct {
	entries *linkedhashmap.Map
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{entries: linkedhashmap.New()}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return m.entries.Size()
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	ref, ok := m.Ref(key)
	if !ok {
		return UnitValue, false
	}
	return *ref, true
}

// Ref returns a pointer to the slot stored under key.
func (m *Map) Ref(key string) (*Value, bool) {
	if m == nil {
		return nil, false
	}
	raw, ok := m.entries.Get(key)
	if !ok {
		return nil, false
	}
	return raw.(*Value), true
}

// Contains reports whether key is present.
func (m *Map) Contains(key string) bool {
	_, ok := m.Ref(key)
	return ok
}

// Set stores v under key. Existing keys keep their position.
func (m *Map) Set(key string, v Value) {
	if ref, ok := m.Ref(key); ok {
		*ref = v
		return
	}
	slot := v
	m.entries.Put(Intern(key), &slot)
}

// Remove deletes key, returning the removed value.
func (m *Map) Remove(key string) (Value, bool) {
	ref, ok := m.Ref(key)
	if !ok {
		return UnitValue, false
	}
	m.entries.Remove(key)
	return *ref, true
}

// Clear removes every entry.
func (m *Map) Clear() {
	m.entries.Clear()
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	raw := m.entries.Keys()
	keys := make([]string, len(raw))
	for i, k := range raw {
		keys[i] = k.(string)
	}
	return keys
}

// Values returns the values in insertion order.
func (m *Map) Values() []Value {
	if m == nil {
		return nil
	}
	raw := m.entries.Values()
	values := make([]Value, len(raw))
	for i, v := range raw {
		values[i] = *v.(*Value)
	}
	return values
}

// Each calls fn for every entry in order until fn returns false.
func (m *Map) Each(fn func(key string, value *Value) bool) {
	if m == nil {
		return
	}
	it := m.entries.Iterator()
	for it.Next() {
		if !fn(it.Key().(string), it.Value().(*Value)) {
			return
		}
	}
}

// Clone deep-copies the map.
func (m *Map) Clone() *Map {
	out := NewMap()
	m.Each(func(key string, value *Value) bool {
		out.Set(key, value.Clone())
		return true
	})
	return out
}

// Merge copies every entry of other into m, overwriting duplicates.
func (m *Map) Merge(other *Map) {
	other.Each(func(key string, value *Value) bool {
		m.Set(key, value.Clone())
		return true
	})
}
