// Package rendering turns structured data into contract source literals.
//
// Domain data is first converted into a Value tree (ToValue, or a type's own Valuer
// implementation) and the tree is then serialized by Render. Rendering never fails and is
// deterministic: map entries are emitted in ascending key order and set elements in
// ascending Value order, because the output ends up inside signed envelopes.
package rendering

import (
	"bytes"
	"cmp"
	"slices"
	"strings"
)

// Value is a node of the intermediate value model
type Value interface {
	// kind orders variants when values of different kinds are compared
	kind() kind
	render(b *strings.Builder)
	// String renders the value as contract source
	String() string
}

type kind int

const (
	kindTuple kind = iota
	kindList
	kindSet
	kindMap
	kindNil
	kindBool
	kindInt
	kindString
	kindBytes
	kindURI
	kindInline
)

type (
	// Nil is the absent value
	Nil struct{}
	// Bool is a boolean literal
	Bool bool
	// Int is a signed integer literal
	Int int64
	// String holds raw text; escaping happens only when rendering
	String string
	// Bytes renders as a hex literal converted back to a byte array on chain
	Bytes []byte
	// URI renders in backtick form
	URI string
	// Inline is already rendered source spliced verbatim
	Inline string
	// Tuple is a fixed size positional literal
	Tuple []Value
	// List is an ordered collection
	List []Value
	// Set is rendered sorted and without duplicates
	Set []Value
	// Map is keyed by string and rendered in key order
	Map map[string]Value
)

func (Nil) kind() kind    { return kindNil }
func (Bool) kind() kind   { return kindBool }
func (Int) kind() kind    { return kindInt }
func (String) kind() kind { return kindString }
func (Bytes) kind() kind  { return kindBytes }
func (URI) kind() kind    { return kindURI }
func (Inline) kind() kind { return kindInline }
func (Tuple) kind() kind  { return kindTuple }
func (List) kind() kind   { return kindList }
func (Set) kind() kind    { return kindSet }
func (Map) kind() kind    { return kindMap }

func (v Nil) String() string    { return Render(v) }
func (v Bool) String() string   { return Render(v) }
func (v Int) String() string    { return Render(v) }
func (v String) String() string { return Render(v) }
func (v Bytes) String() string  { return Render(v) }
func (v URI) String() string    { return Render(v) }
func (v Inline) String() string { return Render(v) }
func (v Tuple) String() string  { return Render(v) }
func (v List) String() string   { return Render(v) }
func (v Set) String() string    { return Render(v) }
func (v Map) String() string    { return Render(v) }

// Compare orders two values. Values of different variants are ordered by variant
// (tuple, list, set, map, nil, bool, int, string, bytes, uri, inline), values of the
// same variant by content. A nil interface sorts like Nil.
func Compare(a, b Value) int {
	a, b = orNil(a), orNil(b)
	if c := cmp.Compare(a.kind(), b.kind()); c != 0 {
		return c
	}

	switch x := a.(type) {
	case Nil:
		return 0
	case Bool:
		y := b.(Bool)
		switch {
		case x == y:
			return 0
		case !bool(x):
			return -1
		default:
			return 1
		}
	case Int:
		return cmp.Compare(x, b.(Int))
	case String:
		return strings.Compare(string(x), string(b.(String)))
	case Bytes:
		return bytes.Compare(x, b.(Bytes))
	case URI:
		return strings.Compare(string(x), string(b.(URI)))
	case Inline:
		return strings.Compare(string(x), string(b.(Inline)))
	case Tuple:
		return slices.CompareFunc(x, b.(Tuple), Compare)
	case List:
		return slices.CompareFunc(x, b.(List), Compare)
	case Set:
		return slices.CompareFunc(x.normalized(), b.(Set).normalized(), Compare)
	case Map:
		return compareMaps(x, b.(Map))
	}
	return 0
}

// Equal reports whether two values render identically
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// NewSet builds a set from the given elements, dropping duplicates
func NewSet(values ...Value) Set {
	return Set(values).normalized()
}

// normalized returns the elements sorted and deduplicated without touching the receiver
func (s Set) normalized() Set {
	out := make(Set, 0, len(s))
	for _, v := range s {
		out = append(out, orNil(v))
	}
	slices.SortFunc(out, Compare)
	return slices.CompactFunc(out, Equal)
}

// sortedKeys returns the map keys in ascending order
func (m Map) sortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func compareMaps(a, b Map) int {
	ak, bk := a.sortedKeys(), b.sortedKeys()
	for i := 0; i < len(ak) && i < len(bk); i++ {
		if c := strings.Compare(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := Compare(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(ak), len(bk))
}

func orNil(v Value) Value {
	if v == nil {
		return Nil{}
	}
	return v
}
