package ir

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Value is a sealed interface representing a runtime value.
// Only Null, Bool, Number, Time, String, the three ranges, Set and
// *Dataset implement it.
type Value interface {
	// Type returns the static type of the value.
	Type() Type
	// String returns a human readable rendering of the value.
	String() string

	value() // Sealed - only these types implement it
}

// Null is the absent value.
type Null struct{}

func (Null) value()         {}
func (Null) Type() Type     { return TypeNull }
func (Null) String() string { return "null" }

// Bool is a BOOLEAN value.
type Bool bool

func (Bool) value()     {}
func (Bool) Type() Type { return TypeBoolean }
func (b Bool) String() string {
	return strconv.FormatBool(bool(b))
}

// Number is a NUMBER value. All numbers are float64; integers survive
// exactly up to 2^53.
type Number float64

func (Number) value()     {}
func (Number) Type() Type { return TypeNumber }
func (n Number) String() string {
	return formatNumber(float64(n))
}

// String is a STRING value.
type String string

func (String) value()           {}
func (String) Type() Type       { return TypeString }
func (s String) String() string { return string(s) }

// Time is a TIME value, always held in UTC.
type Time struct {
	time.Time
}

// NewTime returns the TIME value for t, normalised to UTC.
func NewTime(t time.Time) Time {
	return Time{Time: t.UTC()}
}

func (Time) value()     {}
func (Time) Type() Type { return TypeTime }
func (t Time) String() string {
	return t.Time.UTC().Format(time.RFC3339Nano)
}

func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// TypeOf returns the type of v, treating a nil interface as NULL.
func TypeOf(v Value) Type {
	if v == nil {
		return TypeNull
	}
	return v.Type()
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Truthy reports whether v is the boolean true.
func Truthy(v Value) bool {
	b, ok := v.(Bool)
	return ok && bool(b)
}

// Equal reports whether two values are structurally equal.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if a.Type() != b.Type() {
		return false
	}
	switch av := a.(type) {
	case Bool, Number, String:
		return a == b
	case Time:
		return av.Time.Equal(b.(Time).Time)
	case NumberRange:
		return av.Equal(b.(NumberRange))
	case TimeRange:
		return av.Equal(b.(TimeRange))
	case StringRange:
		return av == b.(StringRange)
	case Set:
		return av.Equal(b.(Set))
	case *Dataset:
		return av.Equal(b.(*Dataset))
	}
	return false
}

// Compare orders two values. NULL sorts before everything; values of
// different types order by type name so that the order is total.
func Compare(a, b Value) int {
	an, bn := IsNull(a), IsNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	if a.Type() != b.Type() {
		return cmp.Compare(a.Type(), b.Type())
	}
	switch av := a.(type) {
	case Bool:
		bv := b.(Bool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		}
		return 1
	case Number:
		return cmp.Compare(float64(av), float64(b.(Number)))
	case String:
		return cmp.Compare(string(av), string(b.(String)))
	case Time:
		return av.Time.Compare(b.(Time).Time)
	case NumberRange:
		bv := b.(NumberRange)
		if c := cmp.Compare(av.Start, bv.Start); c != 0 {
			return c
		}
		return cmp.Compare(av.End, bv.End)
	case TimeRange:
		bv := b.(TimeRange)
		if c := av.Start.Compare(bv.Start); c != 0 {
			return c
		}
		return av.End.Compare(bv.End)
	case StringRange:
		bv := b.(StringRange)
		if c := cmp.Compare(av.Start, bv.Start); c != 0 {
			return c
		}
		return cmp.Compare(av.End, bv.End)
	}
	return cmp.Compare(KeyOf(a), KeyOf(b))
}

// KeyOf returns the grouping key of a value: two values have the same key
// iff they are Equal.
func KeyOf(v Value) string {
	if IsNull(v) {
		return "null"
	}
	switch x := v.(type) {
	case String:
		return "s:" + string(x)
	case Set:
		return "S:" + x.key()
	}
	return string(v.Type()) + ":" + v.String()
}

// FromNative converts a Go value into a Value.
//
// Supported inputs are nil, bool, all integer and float kinds, string,
// time.Time, json-decoded maps describing ranges, and Values themselves.
func FromNative(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Number(v), nil
	case int32:
		return Number(v), nil
	case int64:
		return Number(v), nil
	case uint32:
		return Number(v), nil
	case uint64:
		return Number(v), nil
	case float32:
		return Number(v), nil
	case float64:
		return Number(v), nil
	case string:
		return String(v), nil
	case []byte:
		return String(v), nil
	case time.Time:
		return NewTime(v), nil
	case []string:
		elems := make([]Value, len(v))
		for i, s := range v {
			elems[i] = String(s)
		}
		return NewSet(TypeString, elems...), nil
	}
	return nil, fmt.Errorf("cannot convert %T to a value", x)
}

// ToNative converts a Value into plain Go data suitable for encoding/json.
// Times become time.Time, ranges become {start,end,bounds} maps and
// datasets become slices of maps.
func ToNative(v Value) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(x)
	case Number:
		return float64(x)
	case String:
		return string(x)
	case Time:
		return x.Time
	case NumberRange:
		return map[string]any{"start": nullableFloat(x.Start), "end": nullableFloat(x.End), "bounds": x.bounds()}
	case TimeRange:
		return map[string]any{"start": nullableTime(x.Start), "end": nullableTime(x.End), "bounds": x.bounds()}
	case StringRange:
		return map[string]any{"start": x.Start, "end": x.End, "bounds": x.bounds()}
	case Set:
		elems := make([]any, len(x.Elements))
		for i, e := range x.Elements {
			elems[i] = ToNative(e)
		}
		return map[string]any{"setType": string(x.ElemType), "elements": elems}
	case *Dataset:
		return x.ToNative()
	}
	return nil
}

func nullableFloat(f float64) any {
	if math.IsInf(f, 0) {
		return nil
	}
	return f
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
