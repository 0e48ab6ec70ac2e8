package codegen

import (
	"fmt"
	"strings"

	"github.com/xcc-lang/xcc/internal/ast"
	"github.com/xcc-lang/xcc/internal/types"
)

// OrderedMap is a map that preserves insertion order. Function argument
// registries need both by-name lookup and positional iteration.
type OrderedMap[K comparable, V any] struct {
	keys   []K
	values map[K]V
}

// NewOrderedMap creates an empty ordered map.
func NewOrderedMap[K comparable, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{values: make(map[K]V)}
}

// Set inserts or updates a key.
func (m *OrderedMap[K, V]) Set(key K, value V) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key.
func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of entries.
func (m *OrderedMap[K, V]) Len() int { return len(m.keys) }

// Keys returns keys in insertion order.
func (m *OrderedMap[K, V]) Keys() []K { return m.keys }

// At returns the i-th entry in insertion order.
func (m *OrderedMap[K, V]) At(i int) (K, V) {
	k := m.keys[i]
	return k, m.values[k]
}

// Function is the cross-module metadata for a declared function: enough to
// re-generate its declaration into another module and to type calls.
type Function struct {
	Name   string
	Return *types.Type
	Args   *OrderedMap[string, *types.Type]
	Decl   *ast.FnDecl
}

// NewFunction creates function metadata.
func NewFunction(name string, ret *types.Type, args *OrderedMap[string, *types.Type], decl *ast.FnDecl) *Function {
	return &Function{Name: name, Return: ret, Args: args, Decl: decl}
}

// ArgAt returns the type of the i-th argument.
func (f *Function) ArgAt(i int) *types.Type {
	_, t := f.Args.At(i)
	return t
}

// Variadic reports whether the function takes a trailing "...".
func (f *Function) Variadic() bool {
	return f.Decl != nil && f.Decl.Variadic
}

// String renders the signature the way it is declared in source.
func (f *Function) String() string {
	parts := make([]string, 0, f.Args.Len())
	for i := 0; i < f.Args.Len(); i++ {
		name, t := f.Args.At(i)
		parts = append(parts, name+": "+t.String())
	}
	if f.Variadic() {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("fn %s(%s): %s", f.Name, strings.Join(parts, ", "), f.Return)
}
