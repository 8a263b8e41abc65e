package concurrent_map

import "sync"

// Map is a typed wrapper around sync.Map. The zero value is ready to use
// and must not be copied after first use.
type Map[K comparable, V any] struct {
	m sync.Map
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	v, exists := m.m.Load(k)
	if !exists {
		var zero V
		return zero, false
	}

	return v.(V), true
}

func (m *Map[K, V]) Set(k K, v V) {
	m.m.Store(k, v)
}

func (m *Map[K, V]) Len() int {
	n := 0
	m.m.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}
