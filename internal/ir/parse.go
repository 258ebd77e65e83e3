package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// timeLayouts are the textual time formats accepted from backends and files,
// tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime converts a backend time representation into a UTC instant.
// Strings are parsed with the common ISO/SQL layouts and numbers are taken
// as milliseconds since the epoch.
func ParseTime(x any) (time.Time, error) {
	switch v := x.(type) {
	case time.Time:
		return v.UTC(), nil
	case Time:
		return v.Time, nil
	case String:
		return ParseTime(string(v))
	case Number:
		return time.UnixMilli(int64(v)).UTC(), nil
	case float64:
		return time.UnixMilli(int64(v)).UTC(), nil
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time %q: %w", v, err)
		}
		return time.UnixMilli(n).UTC(), nil
	case []byte:
		return ParseTime(string(v))
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid time %q", v)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to a time", x)
}

func parseNumber(x any) (float64, error) {
	switch v := x.(type) {
	case Number:
		return float64(v), nil
	case String:
		return parseNumber(string(v))
	case json.Number:
		return v.Float64()
	case []byte:
		return parseNumber(string(v))
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	n, err := FromNative(x)
	if err != nil {
		return 0, err
	}
	if num, ok := n.(Number); ok {
		return float64(num), nil
	}
	return 0, fmt.Errorf("cannot convert %T to a number", x)
}

// ParseValue converts plain data (as decoded from JSON, YAML or a database
// driver) into a Value of type t.
func ParseValue(t Type, x any) (Value, error) {
	if x == nil || t == TypeNull {
		return Null{}, nil
	}
	if v, ok := x.(Value); ok && v.Type() == t {
		return v, nil
	}
	switch {
	case t.IsSet():
		return parseSet(t.Elem(), x)
	case t == TypeBoolean:
		switch v := x.(type) {
		case bool:
			return Bool(v), nil
		case Bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid boolean %q", v)
			}
			return Bool(b), nil
		}
		n, err := parseNumber(x)
		if err != nil {
			return nil, err
		}
		return Bool(n != 0), nil
	case t == TypeNumber:
		n, err := parseNumber(x)
		if err != nil {
			return nil, err
		}
		return Number(n), nil
	case t == TypeTime:
		ts, err := ParseTime(x)
		if err != nil {
			return nil, err
		}
		return NewTime(ts), nil
	case t == TypeString:
		switch v := x.(type) {
		case string:
			return String(v), nil
		case []byte:
			return String(v), nil
		case Value:
			return String(v.String()), nil
		}
		return String(fmt.Sprint(x)), nil
	case t.IsRange():
		return parseRange(t, x)
	case t == TypeDataset:
		return parseDataset(x)
	}
	return FromNative(x)
}

func parseSet(elem Type, x any) (Value, error) {
	var raw []any
	switch v := x.(type) {
	case Set:
		return v, nil
	case []any:
		raw = v
	case []string:
		for _, s := range v {
			raw = append(raw, s)
		}
	case map[string]any:
		if st, ok := v["setType"].(string); ok && st != "" {
			parsed, err := ParseType(st)
			if err != nil {
				return nil, err
			}
			elem = parsed
		}
		els, _ := v["elements"].([]any)
		raw = els
	default:
		raw = []any{x}
	}
	elems := make([]Value, 0, len(raw))
	for i, r := range raw {
		e, err := ParseValue(elem, r)
		if err != nil {
			return nil, fmt.Errorf("set element %d: %w", i, err)
		}
		elems = append(elems, e)
	}
	return NewSet(elem, elems...), nil
}

func parseRange(t Type, x any) (Value, error) {
	switch v := x.(type) {
	case NumberRange, TimeRange, StringRange:
		return v.(Value), nil
	case map[string]any:
		bounds, _ := v["bounds"].(string)
		bounds = normBounds(bounds)
		start, end := v["start"], v["end"]
		switch t {
		case TypeNumberRange:
			r := NumberRange{Start: math.Inf(-1), End: math.Inf(1), Bounds: bounds}
			if start != nil {
				n, err := parseNumber(start)
				if err != nil {
					return nil, err
				}
				r.Start = n
			}
			if end != nil {
				n, err := parseNumber(end)
				if err != nil {
					return nil, err
				}
				r.End = n
			}
			return r, nil
		case TypeTimeRange:
			r := TimeRange{Bounds: bounds}
			if start != nil {
				ts, err := ParseTime(start)
				if err != nil {
					return nil, err
				}
				r.Start = ts
			}
			if end != nil {
				ts, err := ParseTime(end)
				if err != nil {
					return nil, err
				}
				r.End = ts
			}
			return r, nil
		case TypeStringRange:
			r := StringRange{Bounds: bounds}
			if s, ok := start.(string); ok {
				r.Start = s
			}
			if s, ok := end.(string); ok {
				r.End = s
			}
			return r, nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", x, t)
}

func parseDataset(x any) (Value, error) {
	switch v := x.(type) {
	case *Dataset:
		return v, nil
	case []map[string]any:
		rows := make([]any, len(v))
		for i, r := range v {
			rows[i] = r
		}
		return parseDataset(rows)
	case []any:
		data := make([]Datum, 0, len(v))
		for i, r := range v {
			m, ok := r.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("dataset row %d: expected object, got %T", i, r)
			}
			row := make(Datum, len(m))
			for k, cell := range m {
				val, err := nativeCell(cell)
				if err != nil {
					return nil, fmt.Errorf("dataset row %d column %q: %w", i, k, err)
				}
				row[k] = val
			}
			data = append(data, row)
		}
		return NewDataset(data), nil
	}
	return nil, fmt.Errorf("cannot convert %T to a dataset", x)
}

// nativeCell converts one decoded JSON cell, recognising nested datasets.
func nativeCell(x any) (Value, error) {
	switch v := x.(type) {
	case []any:
		if len(v) > 0 {
			if _, ok := v[0].(map[string]any); ok {
				return parseDataset(v)
			}
		}
		return parseSet(TypeUnknown, v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	case map[string]any:
		if _, ok := v["setType"]; ok {
			return parseSet(TypeUnknown, v)
		}
		return nil, fmt.Errorf("unexpected object cell")
	}
	return FromNative(x)
}
