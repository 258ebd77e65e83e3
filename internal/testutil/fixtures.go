// Package testutil provides fixtures shared by package tests: a small
// diamonds dataset, its source descriptions and deterministic clocks and
// ID generators.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/ir"
)

// Day is the date every fixture row falls on.
var Day = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

// At returns the instant hh:mm on Day.
func At(clock string) ir.Time {
	ts, err := time.Parse("15:04", clock)
	if err != nil {
		panic(err)
	}
	return ir.NewTime(Day.Add(time.Duration(ts.Hour())*time.Hour + time.Duration(ts.Minute())*time.Minute))
}

// DiamondAttributes is the schema of Diamonds.
func DiamondAttributes() ir.Attributes {
	return ir.Attributes{
		{Name: "time", Type: ir.TypeTime},
		{Name: "cut", Type: ir.TypeString},
		{Name: "color", Type: ir.TypeString},
		{Name: "price", Type: ir.TypeNumber},
		{Name: "carat", Type: ir.TypeNumber},
	}
}

// Diamonds returns eight rows spread over three hours and four cuts.
func Diamonds() *ir.Dataset {
	row := func(ts, cut, color string, price, carat float64) ir.Datum {
		return ir.Datum{
			"time":  At(ts),
			"cut":   ir.String(cut),
			"color": ir.String(color),
			"price": ir.Number(price),
			"carat": ir.Number(carat),
		}
	}
	return &ir.Dataset{
		Attributes: DiamondAttributes(),
		Data: []ir.Datum{
			row("00:10", "Ideal", "D", 100, 0.5),
			row("00:40", "Ideal", "E", 300, 0.7),
			row("00:55", "Ideal", "D", 250, 0.6),
			row("01:05", "Good", "D", 200, 1.0),
			row("01:30", "Fair", "G", 80, 0.4),
			row("02:00", "Premium", "D", 50, 0.3),
			row("02:30", "Good", "F", 400, 1.2),
			row("02:45", "Premium", "E", 520, 1.5),
		},
	}
}

// DiamondsSource describes Diamonds as table or datasource "diamonds".
func DiamondsSource(engine string) external.SourceDescription {
	return external.SourceDescription{
		Engine:        engine,
		Source:        "diamonds",
		TimeAttribute: "time",
		Attributes:    DiamondAttributes(),
	}
}

// DiamondsExternal is a raw External over DiamondsSource.
func DiamondsExternal(engine string) *external.External {
	return external.MustNew(DiamondsSource(engine))
}

// AssertRowsEqual compares rows by value, so equal instants in different
// representations match. DATASET columns are skipped: a pushed split binds
// its group rows lazily and never returns them.
func AssertRowsEqual(t testing.TB, want, got []ir.Datum) bool {
	t.Helper()
	if !assert.Len(t, got, len(want)) {
		return false
	}
	ok := true
	for i := range want {
		w, g := scalarColumns(want[i]), scalarColumns(got[i])
		if !w.Equal(g) {
			ok = assert.Fail(t, "rows differ", "row %d:\nwant %v\ngot  %v", i, w, g)
		}
	}
	return ok
}

func scalarColumns(row ir.Datum) ir.Datum {
	out := make(ir.Datum, len(row))
	for k, v := range row {
		if _, nested := v.(*ir.Dataset); !nested {
			out[k] = v
		}
	}
	return out
}
