package external

import (
	"time"

	"github.com/roach88/strata/internal/ir"
)

var simulatedTime = time.Date(2015, 3, 12, 0, 0, 0, 0, time.UTC)

// Simulate returns the rows a backend could plausibly answer the External's
// query with. The rows are deterministic and keyed the way the backend
// names its columns, so they pass through the post-processor.
func (e *External) Simulate() []ir.Datum {
	var columns map[string]string
	if e.desc.Engine == EngineDruid {
		if _, cols, err := (&druidBuilder{e: e}).build(); err == nil {
			columns = cols
		}
	}
	column := func(name string) string {
		if c, ok := columns[name]; ok {
			return c
		}
		return name
	}

	switch e.mode {
	case ModeValue:
		return []ir.Datum{{valueColumn: simulatedValue(valueColumn, e.Type())}}
	case ModeTotal, ModeSplit:
		row := ir.Datum{}
		attrs := e.Attributes()
		if e.mode == ModeSplit {
			attrs = attrs[:len(attrs)-1]
		}
		for _, a := range attrs {
			row[column(a.Name)] = simulatedValue(a.Name, a.Type)
		}
		return []ir.Datum{row}
	}
	row := ir.Datum{}
	for _, a := range e.rawAttributes() {
		row[column(a.Name)] = simulatedValue(a.Name, a.Type)
	}
	return []ir.Datum{row}
}

// simulatedValue returns a stand-in value of type t. Ranges are given by
// their start, as backends return bucket starts.
func simulatedValue(name string, t ir.Type) ir.Value {
	switch {
	case t == ir.TypeNumber || t == ir.TypeNumberRange:
		return ir.Number(4)
	case t == ir.TypeTime || t == ir.TypeTimeRange:
		return ir.NewTime(simulatedTime)
	case t == ir.TypeBoolean:
		return ir.Bool(true)
	case t == ir.TypeString || t == ir.TypeStringRange:
		return ir.String("some_" + name)
	case t.IsSet():
		return ir.NewSet(t.Elem(), simulatedValue(name, t.Elem()))
	}
	return ir.Null{}
}
