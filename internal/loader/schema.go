package loader

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/strata/internal/ir"
)

// inferred builds a dataset typing each column by its values.
func inferred(columns []string, records []map[string]ir.Value) *ir.Dataset {
	attrs := make(ir.Attributes, len(columns))
	for i, col := range columns {
		attrs[i] = inferAttribute(col, records)
	}

	data := make([]ir.Datum, len(records))
	for i, rec := range records {
		row := make(ir.Datum, len(attrs))
		for _, a := range attrs {
			row[a.Name] = coerce(a.Type, rec[a.Name])
		}
		data[i] = row
	}
	return &ir.Dataset{Attributes: attrs, Data: data}
}

func inferAttribute(col string, records []map[string]ir.Value) ir.Attribute {
	attr := ir.Attribute{Name: col, Type: ir.TypeNull}
	allTimes := true
	for _, rec := range records {
		v, ok := rec[col]
		if !ok || ir.IsNull(v) {
			attr.Nullable = true
			continue
		}
		t, unified := ir.Unify(attr.Type, v.Type())
		if !unified {
			t = ir.TypeString
			allTimes = false
		}
		attr.Type = t
		if s, isString := v.(ir.String); isString {
			if _, err := ir.ParseTime(string(s)); err != nil {
				allTimes = false
			}
		}
	}
	switch {
	case attr.Type == ir.TypeNull:
		attr.Type = ir.TypeString
	case attr.Type == ir.TypeString && allTimes:
		attr.Type = ir.TypeTime
	}
	return attr
}

// coerce converts v to t; values that do not convert become their text.
func coerce(t ir.Type, v ir.Value) ir.Value {
	if v == nil || ir.IsNull(v) {
		return ir.Null{}
	}
	if v.Type() == t {
		return v
	}
	if t == ir.TypeString {
		return ir.String(v.String())
	}
	out, err := ir.ParseValue(t, ir.ToNative(v))
	if err != nil {
		return ir.String(v.String())
	}
	return out
}

// withSchema converts every record to the declared attributes.
func withSchema(attrs ir.Attributes, records []map[string]ir.Value) (*ir.Dataset, error) {
	data := make([]ir.Datum, len(records))
	for i, rec := range records {
		row := make(ir.Datum, len(attrs))
		for _, a := range attrs {
			v, ok := rec[a.Name]
			if !ok || ir.IsNull(v) {
				row[a.Name] = ir.Null{}
				continue
			}
			out, err := ir.ParseValue(a.Type, ir.ToNative(v))
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, a.Name, err)
			}
			row[a.Name] = out
		}
		data[i] = row
	}
	return &ir.Dataset{Attributes: attrs, Data: data}, nil
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
