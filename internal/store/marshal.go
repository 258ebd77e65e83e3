package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/dialect"
	"github.com/roach88/strata/internal/ir"
)

// marshalAttributes converts attributes to JSON TEXT for the catalog.
func marshalAttributes(attrs ir.Attributes) (string, error) {
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attributes: %w", err)
	}
	return string(data), nil
}

// unmarshalAttributes parses catalog JSON TEXT.
func unmarshalAttributes(data string) (ir.Attributes, error) {
	if data == "" {
		return nil, nil
	}
	var attrs ir.Attributes
	if err := json.Unmarshal([]byte(data), &attrs); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	return attrs, nil
}

// columnType is the declared SQLite type for an attribute. The declared
// names round-trip through introspection to the same attribute type.
func columnType(t ir.Type) string {
	switch t {
	case ir.TypeNumber:
		return "REAL"
	case ir.TypeBoolean:
		return "BOOLEAN"
	case ir.TypeTime:
		return "DATETIME"
	}
	return "TEXT"
}

// cellValue converts a value to the form stored in its column. Times are
// TimeLayout text in UTC, the form the dialect compares against.
func cellValue(v ir.Value) (any, error) {
	switch x := v.(type) {
	case nil, ir.Null:
		return nil, nil
	case ir.Bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.Number:
		return float64(x), nil
	case ir.String:
		return string(x), nil
	case ir.Time:
		return x.Time.UTC().Format(dialect.TimeLayout), nil
	case ir.Set:
		elems := make([]string, len(x.Elements))
		for i, e := range x.Elements {
			elems[i] = e.String()
		}
		return strings.Join(elems, ","), nil
	}
	return nil, fmt.Errorf("cannot store %s value %s", v.Type(), v)
}
