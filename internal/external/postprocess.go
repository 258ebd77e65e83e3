package external

import (
	"fmt"

	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
)

// PostProcess turns the flat rows returned for a query into the External's
// value: a *ir.Dataset, or a scalar in value mode.
type PostProcess func(rows []ir.Datum) (ir.Value, error)

// IntrospectPostProcess turns schema rows into attributes.
type IntrospectPostProcess func(rows []ir.Datum) (ir.Attributes, error)

// postProcess builds the post-processor for the External's mode. columns
// maps output names to the raw column holding them when they differ.
func (e *External) postProcess(columns map[string]string) PostProcess {
	get := func(row ir.Datum, name string) ir.Value {
		if raw, ok := columns[name]; ok {
			return row.Get(raw)
		}
		return row.Get(name)
	}
	subject := e.desc.Source

	switch e.mode {
	case ModeValue:
		t := e.Type()
		return func(rows []ir.Datum) (ir.Value, error) {
			if len(rows) != 1 {
				return nil, ir.NewMalformedError(subject, "value query returned %d rows", len(rows))
			}
			return typed(subject, valueColumn, t, get(rows[0], valueColumn))
		}

	case ModeTotal:
		attrs := e.Attributes()
		return func(rows []ir.Datum) (ir.Value, error) {
			if len(rows) != 1 {
				return nil, ir.NewMalformedError(subject, "total query returned %d rows", len(rows))
			}
			row := make(ir.Datum, len(attrs))
			for _, a := range attrs {
				v, err := typed(subject, a.Name, a.Type, get(rows[0], a.Name))
				if err != nil {
					return nil, err
				}
				row[a.Name] = v
			}
			return &ir.Dataset{Attributes: attrs, Data: []ir.Datum{row}}, nil
		}

	case ModeSplit:
		attrs := e.Attributes()
		attrs = attrs[:len(attrs)-1] // group rows are bound per row, not returned
		keys := make([]string, len(e.splits))
		buckets := map[string]bucket{}
		for i, k := range e.splits {
			keys[i] = k.Name
			if b, ok := bucketOf(k.Expr); ok {
				buckets[k.Name] = b
			}
		}
		return func(rows []ir.Datum) (ir.Value, error) {
			data := make([]ir.Datum, len(rows))
			for i, raw := range rows {
				row := make(ir.Datum, len(attrs))
				for _, a := range attrs {
					v := get(raw, a.Name)
					var err error
					if b, ok := buckets[a.Name]; ok {
						v, err = b.expand(subject, a.Name, v)
					} else {
						v, err = typed(subject, a.Name, a.Type, v)
					}
					if err != nil {
						return nil, err
					}
					row[a.Name] = v
				}
				data[i] = row
			}
			return &ir.Dataset{Keys: keys, Attributes: attrs, Data: data}, nil
		}
	}

	attrs := e.rawAttributes()
	return func(rows []ir.Datum) (ir.Value, error) {
		data := make([]ir.Datum, len(rows))
		for i, raw := range rows {
			row := make(ir.Datum, len(attrs))
			for _, a := range attrs {
				v, err := typed(subject, a.Name, a.Type, get(raw, a.Name))
				if err != nil {
					return nil, err
				}
				row[a.Name] = v
			}
			data[i] = row
		}
		return &ir.Dataset{Attributes: attrs, Data: data}, nil
	}
}

// typed converts a backend value to type t. Unknown types are kept as
// returned.
func typed(subject, column string, t ir.Type, v ir.Value) (ir.Value, error) {
	if v == nil || ir.IsNull(v) {
		return ir.Null{}, nil
	}
	if !t.Known() || t == ir.TypeNull || v.Type() == t {
		return v, nil
	}
	out, err := ir.ParseValue(t, ir.ToNative(v))
	if err != nil {
		return nil, ir.NewMalformedError(subject, "column %q: %v", column, err)
	}
	return out, nil
}

// bucket re-expands the start of a bucket into the range it stands for.
type bucket struct {
	duration ir.Duration
	timezone string
	size     float64
	isTime   bool
}

func bucketOf(key expr.Expression) (bucket, bool) {
	c, ok := key.(*expr.Chain)
	if !ok {
		return bucket{}, false
	}
	last := c.Last()
	switch last.Op {
	case expr.OpTimeBucket:
		return bucket{duration: last.Duration, timezone: last.Timezone, isTime: true}, true
	case expr.OpNumberBucket:
		return bucket{size: last.Size}, true
	}
	return bucket{}, false
}

func (b bucket) expand(subject, column string, v ir.Value) (ir.Value, error) {
	if v == nil || ir.IsNull(v) {
		return ir.Null{}, nil
	}
	if !b.isTime {
		start, err := ir.ParseValue(ir.TypeNumber, ir.ToNative(v))
		if err != nil {
			return nil, ir.NewMalformedError(subject, "bucket %q: %v", column, err)
		}
		n := float64(start.(ir.Number))
		return ir.NewNumberRange(n, n+b.size), nil
	}
	start, err := ir.ParseTime(ir.ToNative(v))
	if err != nil {
		return nil, ir.NewMalformedError(subject, "bucket %q: %v", column, err)
	}
	loc, err := ir.LoadTimezone(b.timezone)
	if err != nil {
		return nil, fmt.Errorf("bucket %q: %w", column, err)
	}
	return ir.NewTimeRange(start, b.duration.Shift(start, loc, 1)), nil
}
