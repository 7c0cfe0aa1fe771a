// Package diff computes three-way differences between natural-keyed maps.
package diff

// Pair holds the two versions of a key present in both maps with unequal
// values.
type Pair[V any] struct {
	Left  V
	Right V
}

// Result partitions the keys of two maps. Every key of either map lands in
// exactly one of OnlyInLeft, OnlyInRight, Differing, or is unchanged and
// omitted.
type Result[K comparable, V any] struct {
	OnlyInLeft  map[K]V
	OnlyInRight map[K]V
	Differing   map[K]Pair[V]
}

// Empty reports whether the two maps were equal.
func (r Result[K, V]) Empty() bool {
	return len(r.OnlyInLeft) == 0 && len(r.OnlyInRight) == 0 && len(r.Differing) == 0
}

// Maps partitions left and right by key, using eq to compare values present
// on both sides.
func Maps[K comparable, V any](left, right map[K]V, eq func(a, b V) bool) Result[K, V] {
	result := Result[K, V]{
		OnlyInLeft:  make(map[K]V),
		OnlyInRight: make(map[K]V),
		Differing:   make(map[K]Pair[V]),
	}
	for k, lv := range left {
		rv, ok := right[k]
		if !ok {
			result.OnlyInLeft[k] = lv
			continue
		}
		if !eq(lv, rv) {
			result.Differing[k] = Pair[V]{Left: lv, Right: rv}
		}
	}
	for k, rv := range right {
		if _, ok := left[k]; !ok {
			result.OnlyInRight[k] = rv
		}
	}
	return result
}

// Slices indexes two slices by key and partitions them like Maps. Duplicate
// keys keep the first occurrence, matching the loader's merge discipline.
func Slices[K comparable, V any](left, right []V, key func(V) K, eq func(a, b V) bool) Result[K, V] {
	return Maps(indexByKey(left, key), indexByKey(right, key), eq)
}

func indexByKey[K comparable, V any](items []V, key func(V) K) map[K]V {
	m := make(map[K]V, len(items))
	for _, item := range items {
		k := key(item)
		if _, ok := m[k]; !ok {
			m[k] = item
		}
	}
	return m
}
