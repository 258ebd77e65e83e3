package ir

import (
	"math"
	"time"
)

// DefaultBounds is the bounds of a range unless stated otherwise:
// start inclusive, end exclusive.
const DefaultBounds = "[)"

func normBounds(b string) string {
	switch b {
	case "[)", "()", "[]", "(]":
		return b
	}
	return DefaultBounds
}

func startOK(bounds string, c int) bool {
	if bounds[0] == '[' {
		return c >= 0
	}
	return c > 0
}

func endOK(bounds string, c int) bool {
	if bounds[1] == ']' {
		return c <= 0
	}
	return c < 0
}

// NumberRange is a NUMBER_RANGE value. An open start is -Inf and an open
// end is +Inf.
type NumberRange struct {
	Start  float64
	End    float64
	Bounds string
}

// NewNumberRange returns the range [start, end).
func NewNumberRange(start, end float64) NumberRange {
	return NumberRange{Start: start, End: end, Bounds: DefaultBounds}
}

func (NumberRange) value()     {}
func (NumberRange) Type() Type { return TypeNumberRange }

func (r NumberRange) bounds() string { return normBounds(r.Bounds) }

func (r NumberRange) String() string {
	b := r.bounds()
	return string(b[0]) + formatNumber(r.Start) + "," + formatNumber(r.End) + string(b[1])
}

// Contains reports whether n falls within the range.
func (r NumberRange) Contains(n float64) bool {
	b := r.bounds()
	return (math.IsInf(r.Start, -1) || startOK(b, compareFloat(n, r.Start))) &&
		(math.IsInf(r.End, 1) || endOK(b, compareFloat(n, r.End)))
}

// Equal reports whether the two ranges have the same endpoints and bounds.
func (r NumberRange) Equal(o NumberRange) bool {
	return r.Start == o.Start && r.End == o.End && r.bounds() == o.bounds()
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// TimeRange is a TIME_RANGE value. A zero Start or End is open.
type TimeRange struct {
	Start  time.Time
	End    time.Time
	Bounds string
}

// NewTimeRange returns the range [start, end) in UTC.
func NewTimeRange(start, end time.Time) TimeRange {
	return TimeRange{Start: start.UTC(), End: end.UTC(), Bounds: DefaultBounds}
}

func (TimeRange) value()     {}
func (TimeRange) Type() Type { return TypeTimeRange }

func (r TimeRange) bounds() string { return normBounds(r.Bounds) }

func (r TimeRange) String() string {
	b := r.bounds()
	return string(b[0]) + formatTimeEnd(r.Start) + "," + formatTimeEnd(r.End) + string(b[1])
}

func formatTimeEnd(t time.Time) string {
	if t.IsZero() {
		return "null"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Contains reports whether t falls within the range.
func (r TimeRange) Contains(t time.Time) bool {
	b := r.bounds()
	return (r.Start.IsZero() || startOK(b, t.Compare(r.Start))) &&
		(r.End.IsZero() || endOK(b, t.Compare(r.End)))
}

// Equal reports whether the two ranges have the same endpoints and bounds.
func (r TimeRange) Equal(o TimeRange) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End) && r.bounds() == o.bounds()
}

// StringRange is a STRING_RANGE value. An empty Start or End is open.
type StringRange struct {
	Start  string
	End    string
	Bounds string
}

// NewStringRange returns the range [start, end).
func NewStringRange(start, end string) StringRange {
	return StringRange{Start: start, End: end, Bounds: DefaultBounds}
}

func (StringRange) value()     {}
func (StringRange) Type() Type { return TypeStringRange }

func (r StringRange) bounds() string { return normBounds(r.Bounds) }

func (r StringRange) String() string {
	b := r.bounds()
	return string(b[0]) + r.Start + "," + r.End + string(b[1])
}

// Contains reports whether s falls within the range.
func (r StringRange) Contains(s string) bool {
	b := r.bounds()
	return (r.Start == "" || startOK(b, compareString(s, r.Start))) &&
		(r.End == "" || endOK(b, compareString(s, r.End)))
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// RangeContains reports whether value v lies inside range r. It returns
// false when the value type does not match the range endpoints.
func RangeContains(r Value, v Value) bool {
	switch rv := r.(type) {
	case NumberRange:
		n, ok := v.(Number)
		return ok && rv.Contains(float64(n))
	case TimeRange:
		t, ok := v.(Time)
		return ok && rv.Contains(t.Time)
	case StringRange:
		s, ok := v.(String)
		return ok && rv.Contains(string(s))
	}
	return false
}

// RangeBounds returns the normalised bounds of a range value, or
// DefaultBounds for any other value.
func RangeBounds(r Value) string {
	switch rv := r.(type) {
	case NumberRange:
		return rv.bounds()
	case TimeRange:
		return rv.bounds()
	case StringRange:
		return rv.bounds()
	}
	return DefaultBounds
}
