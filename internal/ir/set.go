package ir

import (
	"slices"
	"strings"
)

// Set is a SET/<elem> value: an ordered collection of distinct elements of
// a single simple or range type.
type Set struct {
	ElemType Type
	Elements []Value
}

// NewSet builds a set, dropping duplicate elements while keeping the first
// occurrence order. When elemType is unknown it is taken from the first
// non-null element.
func NewSet(elemType Type, elems ...Value) Set {
	seen := make(map[string]bool, len(elems))
	out := make([]Value, 0, len(elems))
	for _, e := range elems {
		if e == nil {
			e = Null{}
		}
		k := KeyOf(e)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
		if !elemType.Known() && !IsNull(e) {
			elemType = e.Type()
		}
	}
	return Set{ElemType: elemType, Elements: out}
}

func (Set) value() {}

func (s Set) Type() Type {
	if !s.ElemType.Known() {
		return SetOf(TypeNull)
	}
	return SetOf(s.ElemType)
}

func (s Set) String() string {
	parts := make([]string, len(s.Elements))
	for i, e := range s.Elements {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Size returns the number of distinct elements.
func (s Set) Size() int {
	return len(s.Elements)
}

// Contains reports whether v is an element of the set. When the set holds
// ranges, v is contained if any range contains it.
func (s Set) Contains(v Value) bool {
	for _, e := range s.Elements {
		if Equal(e, v) {
			return true
		}
		if e.Type().IsRange() && RangeContains(e, v) {
			return true
		}
	}
	return false
}

// Equal reports whether both sets hold the same elements, regardless of
// order.
func (s Set) Equal(o Set) bool {
	if len(s.Elements) != len(o.Elements) {
		return false
	}
	return s.key() == o.key()
}

// Union returns the elements of s followed by those of o not already in s.
func (s Set) Union(o Set) Set {
	t := s.ElemType
	if !t.Known() {
		t = o.ElemType
	}
	return NewSet(t, append(slices.Clone(s.Elements), o.Elements...)...)
}

// Intersect returns the elements of s that are also in o.
func (s Set) Intersect(o Set) Set {
	var out []Value
	for _, e := range s.Elements {
		if o.Contains(e) {
			out = append(out, e)
		}
	}
	return NewSet(s.ElemType, out...)
}

func (s Set) key() string {
	keys := make([]string, len(s.Elements))
	for i, e := range s.Elements {
		keys[i] = KeyOf(e)
	}
	slices.Sort(keys)
	return strings.Join(keys, "\x00")
}
