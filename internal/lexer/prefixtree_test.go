package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixTreeLongestMatch(t *testing.T) {
	tree := NewPrefixTree[int](-1)
	tree.Insert("&", 1)
	tree.Insert("&&", 2)
	tree.Insert("&&=", 3)

	cases := []struct {
		input string
		value int
		size  int
	}{
		{"&", 1, 1},
		{"&&", 2, 2},
		{"&&=", 3, 3},
		{"&&&", 2, 2},
		{"&x", 1, 1},
		{"x&", -1, 0},
	}

	for _, tc := range cases {
		value, size := tree.Find(tc.input, 0)
		assert.Equal(t, tc.value, value, "input %q", tc.input)
		assert.Equal(t, tc.size, size, "input %q", tc.input)
	}
}

func TestPrefixTreeValuedAncestorFallback(t *testing.T) {
	tree := NewPrefixTree[string]("")
	tree.Insert("re", "re")
	tree.Insert("return", "return")

	// "retry" walks past "re" and exhausts at 't'/'r' mismatch; the
	// deepest valued ancestor wins.
	value, size := tree.Find("retry", 0)
	assert.Equal(t, "re", value)
	assert.Equal(t, 2, size)
}

func TestPrefixTreeStartIndex(t *testing.T) {
	tree := NewPrefixTree[int](0)
	tree.Insert("->", 7)

	value, size := tree.Find("a->b", 1)
	assert.Equal(t, 7, value)
	assert.Equal(t, 2, size)

	value, size = tree.Find("ab", 5)
	assert.Equal(t, 0, value)
	assert.Equal(t, 0, size)
}

func TestPrefixTreeEmptyAndMisses(t *testing.T) {
	tree := NewPrefixTree[int](-1)
	tree.Insert("", 9) // ignored

	value, size := tree.Find("anything", 0)
	assert.Equal(t, -1, value)
	assert.Equal(t, 0, size)
}
