// Package series provides the ordered key→value mapping that indicator
// engines write and the rendering layer reads.
//
// Keys arrive almost always in increasing order (appends), with the
// occasional in-place replacement of the newest entry, so the series is
// backed by a sorted slice with binary search rather than a tree: O(1)
// append, O(log n) lookup, cheap range iteration.
package series

import "sort"

// Map is an ordered mapping from candle key to an indicator value.
// Not safe for concurrent use; the engines drive it from one goroutine.
type Map[V any] struct {
	keys []uint64
	vals []V
}

// NewMap returns an empty series.
func NewMap[V any]() *Map[V] {
	return &Map[V]{}
}

// Len returns the number of entries.
func (m *Map[V]) Len() int { return len(m.keys) }

// Clear removes all entries, keeping allocated capacity.
func (m *Map[V]) Clear() {
	m.keys = m.keys[:0]
	m.vals = m.vals[:0]
}

// search returns the insertion index for key.
func (m *Map[V]) search(key uint64) int {
	return sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= key })
}

// Set inserts or replaces the value at key.
func (m *Map[V]) Set(key uint64, v V) {
	n := len(m.keys)
	// Append fast path: new largest key.
	if n == 0 || key > m.keys[n-1] {
		m.keys = append(m.keys, key)
		m.vals = append(m.vals, v)
		return
	}
	// Replace fast path: newest entry revised in place.
	if key == m.keys[n-1] {
		m.vals[n-1] = v
		return
	}
	i := m.search(key)
	if i < n && m.keys[i] == key {
		m.vals[i] = v
		return
	}
	m.keys = append(m.keys, 0)
	m.vals = append(m.vals, v)
	copy(m.keys[i+1:], m.keys[i:])
	copy(m.vals[i+1:], m.vals[i:])
	m.keys[i] = key
	m.vals[i] = v
}

// Get returns the value at key.
func (m *Map[V]) Get(key uint64) (V, bool) {
	i := m.search(key)
	if i < len(m.keys) && m.keys[i] == key {
		return m.vals[i], true
	}
	var zero V
	return zero, false
}

// Before returns the entry with the greatest key strictly less than key.
// This is the predecessor lookup that revision updates chain from.
func (m *Map[V]) Before(key uint64) (uint64, V, bool) {
	i := m.search(key)
	if i == 0 {
		var zero V
		return 0, zero, false
	}
	return m.keys[i-1], m.vals[i-1], true
}

// Last returns the entry with the greatest key.
func (m *Map[V]) Last() (uint64, V, bool) {
	n := len(m.keys)
	if n == 0 {
		var zero V
		return 0, zero, false
	}
	return m.keys[n-1], m.vals[n-1], true
}

// Ascend calls fn for every entry with from <= key <= to, in key order.
// Iteration stops early if fn returns false.
func (m *Map[V]) Ascend(from, to uint64, fn func(key uint64, v V) bool) {
	for i := m.search(from); i < len(m.keys) && m.keys[i] <= to; i++ {
		if !fn(m.keys[i], m.vals[i]) {
			return
		}
	}
}
