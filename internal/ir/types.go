package ir

import (
	"fmt"
	"strings"
)

// Type is the static type of a value or expression.
//
// The set of types is closed: the simple types, their RANGE variants,
// SET/<elem> over a simple or range type, and DATASET. The empty Type
// means "not yet known" and is only ever seen on unresolved references.
type Type string

const (
	TypeNull        Type = "NULL"
	TypeBoolean     Type = "BOOLEAN"
	TypeNumber      Type = "NUMBER"
	TypeTime        Type = "TIME"
	TypeString      Type = "STRING"
	TypeNumberRange Type = "NUMBER_RANGE"
	TypeTimeRange   Type = "TIME_RANGE"
	TypeStringRange Type = "STRING_RANGE"
	TypeDataset     Type = "DATASET"

	// TypeUnknown is the type of a reference before resolution.
	TypeUnknown Type = ""
)

const setPrefix = "SET/"

var simpleTypes = map[Type]bool{
	TypeNull:        true,
	TypeBoolean:     true,
	TypeNumber:      true,
	TypeTime:        true,
	TypeString:      true,
	TypeNumberRange: true,
	TypeTimeRange:   true,
	TypeStringRange: true,
}

// SetOf returns the SET type whose elements have type t.
// SetOf of a set type returns the set type unchanged.
func SetOf(t Type) Type {
	if t.IsSet() {
		return t
	}
	return Type(setPrefix + string(t))
}

// IsSet reports whether t is a SET/<elem> type.
func (t Type) IsSet() bool {
	return strings.HasPrefix(string(t), setPrefix)
}

// Elem returns the element type of a set type, or t itself otherwise.
func (t Type) Elem() Type {
	if t.IsSet() {
		return Type(strings.TrimPrefix(string(t), setPrefix))
	}
	return t
}

// IsRange reports whether t is one of the RANGE types.
func (t Type) IsRange() bool {
	switch t {
	case TypeNumberRange, TypeTimeRange, TypeStringRange:
		return true
	}
	return false
}

// RangeOf returns the range type over t, or TypeUnknown when t has no
// range variant.
func RangeOf(t Type) Type {
	switch t {
	case TypeNumber:
		return TypeNumberRange
	case TypeTime:
		return TypeTimeRange
	case TypeString:
		return TypeStringRange
	}
	if t.IsRange() {
		return t
	}
	return TypeUnknown
}

// Unrange returns the endpoint type of a range type, or t otherwise.
func (t Type) Unrange() Type {
	switch t {
	case TypeNumberRange:
		return TypeNumber
	case TypeTimeRange:
		return TypeTime
	case TypeStringRange:
		return TypeString
	}
	return t
}

// Known reports whether the type has been determined.
func (t Type) Known() bool {
	return t != TypeUnknown
}

// Valid reports whether t is a member of the closed type set.
func (t Type) Valid() bool {
	if t == TypeDataset || simpleTypes[t] {
		return true
	}
	if t.IsSet() {
		elem := t.Elem()
		return simpleTypes[elem] && elem != TypeNull
	}
	return false
}

// In reports whether t is one of the given types. An unknown type is
// never a member; callers decide how to treat unresolved operands.
func (t Type) In(types ...Type) bool {
	for _, c := range types {
		if t == c {
			return true
		}
	}
	return false
}

// ParseType parses the textual form of a type ("NUMBER", "SET/STRING", ...).
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return TypeUnknown, fmt.Errorf("unknown type %q", s)
	}
	return t, nil
}

// Unify returns the type that values of a and b both conform to.
//
// NULL unifies with every type, identical types unify with themselves and
// a SET/T unifies with T (a singleton promotes to a set). Any other pair
// does not unify and ok is false.
func Unify(a, b Type) (Type, bool) {
	switch {
	case !a.Known():
		return b, true
	case !b.Known():
		return a, true
	case a == b:
		return a, true
	case a == TypeNull:
		return b, true
	case b == TypeNull:
		return a, true
	case a.IsSet() && a.Elem() == b:
		return a, true
	case b.IsSet() && b.Elem() == a:
		return b, true
	}
	return TypeUnknown, false
}
