package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/strata/internal/ir"
)

func TestAt(t *testing.T) {
	assert.Equal(t, time.Date(2015, 1, 1, 2, 45, 0, 0, time.UTC), At("02:45").Time)
}

func TestDiamonds_MatchSchema(t *testing.T) {
	ds := Diamonds()
	for i, row := range ds.Data {
		for _, a := range ds.Attributes {
			assert.Equal(t, a.Type, row.Get(a.Name).Type(), "row %d column %s", i, a.Name)
		}
	}
}

func TestClock(t *testing.T) {
	c := NewClock(Day)
	c.Advance(time.Minute)
	assert.Equal(t, Day.Add(time.Minute), c.Now())
}

func TestFixedIDGenerator(t *testing.T) {
	g := NewFixedIDGenerator("")
	assert.Equal(t, "test-request", g.Generate())
	assert.Equal(t, "test-request", g.Generate())
}

func TestAssertRowsEqual(t *testing.T) {
	a := []ir.Datum{{"t": ir.NewTime(Day)}}
	b := []ir.Datum{{"t": ir.NewTime(Day.In(time.FixedZone("X", 3600)))}}
	assert.True(t, AssertRowsEqual(t, a, b))

	grouped := []ir.Datum{{"Cut": ir.String("Ideal"), "data": ir.NewDataset(nil)}}
	flat := []ir.Datum{{"Cut": ir.String("Ideal")}}
	assert.True(t, AssertRowsEqual(t, grouped, flat))
}
