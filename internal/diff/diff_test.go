package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaps(t *testing.T) {
	eq := func(a, b int) bool { return a == b }

	t.Run("partitions keys into exactly one bucket", func(t *testing.T) {
		left := map[string]int{"removed": 1, "changed": 2, "same": 3}
		right := map[string]int{"changed": 20, "same": 3, "added": 4}

		result := Maps(left, right, eq)

		assert.Equal(t, map[string]int{"removed": 1}, result.OnlyInLeft)
		assert.Equal(t, map[string]int{"added": 4}, result.OnlyInRight)
		assert.Equal(t, map[string]Pair[int]{"changed": {Left: 2, Right: 20}}, result.Differing)
	})

	t.Run("equal maps yield an empty result", func(t *testing.T) {
		m := map[string]int{"a": 1, "b": 2}
		result := Maps(m, m, eq)
		assert.True(t, result.Empty())
	})

	t.Run("empty left means everything is added", func(t *testing.T) {
		result := Maps(nil, map[string]int{"a": 1}, eq)
		assert.Empty(t, result.OnlyInLeft)
		assert.Empty(t, result.Differing)
		assert.Len(t, result.OnlyInRight, 1)
	})

	t.Run("empty right means everything is removed", func(t *testing.T) {
		result := Maps(map[string]int{"a": 1}, nil, eq)
		assert.Len(t, result.OnlyInLeft, 1)
		assert.Empty(t, result.OnlyInRight)
		assert.Empty(t, result.Differing)
	})
}

func TestSlices(t *testing.T) {
	type item struct {
		key string
		val int
	}
	key := func(i item) string { return i.key }
	eq := func(a, b item) bool { return a == b }

	t.Run("partitions by extracted key", func(t *testing.T) {
		left := []item{{"a", 1}, {"b", 2}}
		right := []item{{"b", 20}, {"c", 3}}

		result := Slices(left, right, key, eq)

		assert.Equal(t, item{"a", 1}, result.OnlyInLeft["a"])
		assert.Equal(t, item{"c", 3}, result.OnlyInRight["c"])
		assert.Equal(t, Pair[item]{Left: item{"b", 2}, Right: item{"b", 20}}, result.Differing["b"])
	})

	t.Run("duplicate keys keep the first occurrence", func(t *testing.T) {
		left := []item{{"a", 1}, {"a", 99}}
		right := []item{{"a", 1}}

		result := Slices(left, right, key, eq)
		assert.True(t, result.Empty())
	})
}
