package params

import (
	"fmt"
	"sort"

	"github.com/keboola/go-utils/pkg/orderedmap"
)

// Map is a string key to Value map.
// Keys are unique, a later write overwrites the previous value and keeps the key position.
// Iteration follows the insertion order, so encoding of a Map is deterministic.
//
// The zero value is not usable, use NewMap. Methods are safe to call on a nil *Map for reading.
type Map struct {
	values *orderedmap.OrderedMap
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{values: orderedmap.New()}
}

// FromMap converts a Go map to a Map, keys are inserted in sorted order.
func FromMap(in map[string]any) (*Map, error) {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := NewMap()
	for _, k := range keys {
		v, err := FromAny(in[k])
		if err != nil {
			return nil, &UnsupportedTypeError{Key: k, Value: in[k]}
		}
		out.Set(k, v)
	}
	return out, nil
}

// Set value of the key and returns the map.
func (m *Map) Set(key string, value Value) *Map {
	if value == nil {
		panic(fmt.Errorf(`value of the parameter "%s" cannot be nil`, key))
	}
	m.values.Set(key, value)
	return m
}

// Get returns value of the key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return nil, false
	}
	v, found := m.values.Get(key)
	if !found {
		return nil, false
	}
	return v.(Value), true
}

// Delete removes the key.
func (m *Map) Delete(key string) {
	m.values.Delete(key)
}

// Keys in the insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return m.values.Keys()
}

// Len returns the number of keys.
func (m *Map) Len() int {
	return len(m.Keys())
}

// Merge copies all values from the other map into m, values of the other map win.
// The m is modified and returned. A nil other is a no-op.
func (m *Map) Merge(other *Map) *Map {
	for _, k := range other.Keys() {
		v, _ := other.Get(k)
		m.Set(k, v)
	}
	return m
}

// Extend returns a new map with values of m and other, values of the other map win.
// Neither m nor other is modified.
func (m *Map) Extend(other *Map) *Map {
	return m.Clone().Merge(other)
}

// Clone returns a shallow copy, values are immutable so it is sufficient.
func (m *Map) Clone() *Map {
	out := NewMap()
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		out.Set(k, v)
	}
	return out
}

// Native converts the map to an ordered map of plain Go values.
func (m *Map) Native() *orderedmap.OrderedMap {
	out := orderedmap.New()
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		out.Set(k, v.Native())
	}
	return out
}

// MarshalJSON encodes the map as a JSON object, keys keep the insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	return m.Native().MarshalJSON()
}
