package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/dialect"
	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/testutil"
)

// native evaluates e with $diamonds bound to the fixture rows, without any
// backend.
func native(t *testing.T, e expr.Expression) ir.Value {
	t.Helper()
	ds := testutil.Diamonds()
	root := expr.NewScope(ir.Attributes{{Name: "diamonds", Type: ir.TypeDataset, Nested: ds.Attributes}})
	resolved, err := expr.Resolve(e, root)
	require.NoError(t, err)
	bound, err := expr.ResolveValues(resolved, expr.NewEnv(map[string]expr.Expression{"diamonds": expr.NewLiteral(ds)}))
	require.NoError(t, err)
	v, err := expr.Compute(context.Background(), bound, nil, nil)
	require.NoError(t, err)
	return v
}

func rowsOf(t *testing.T, v ir.Value) []ir.Datum {
	t.Helper()
	ds, ok := v.(*ir.Dataset)
	require.True(t, ok, "expected a dataset, got %T", v)
	return ds.Data
}

func TestPushdownMatchesNative(t *testing.T) {
	d := func() expr.Builder { return expr.R("diamonds") }
	// Ply applies run in the basis row frame, one level below the root.
	top := func() expr.Builder { return expr.R("^diamonds") }
	tests := []struct {
		name string
		e    expr.Builder
	}{
		{
			name: "filter split count sort limit",
			e: d().Filter(expr.R("color").Is("D")).
				Split(expr.R("cut"), "Cut").
				Apply("Count", d().Count()).
				Sort(expr.R("Count"), ir.Descending).
				Limit(1),
		},
		{
			name: "split sum and min",
			e: d().Split(expr.R("cut"), "Cut").
				Apply("Total", d().Sum(expr.R("price"))).
				Apply("MinCarat", d().Min(expr.R("carat"))).
				Sort(expr.R("Cut"), ir.Ascending),
		},
		{
			name: "totals",
			e: expr.Ply().
				Apply("Count", top().Count()).
				Apply("MaxPrice", top().Max(expr.R("price"))).
				Apply("DCount", top().Filter(expr.R("color").Is("D")).Count()),
		},
		{
			name: "hourly buckets",
			e: d().Split(expr.R("time").TimeBucket("PT1H", "Etc/UTC"), "Hour").
				Apply("Count", d().Count()).
				Sort(expr.R("Hour"), ir.Ascending),
		},
		{
			name: "number buckets",
			e: d().Split(expr.R("price").NumberBucket(200, 0), "Band").
				Apply("Count", d().Count()).
				Sort(expr.R("Band"), ir.Ascending),
		},
		{
			name: "regexp and time filter",
			e: d().Filter(expr.R("cut").Match("^(Ideal|Good)$").And(expr.R("time").GreaterThanOrEqual(testutil.At("00:40")))).
				Split(expr.R("color"), "Color").
				Apply("Count", d().Count()).
				Sort(expr.R("Color"), ir.Ascending),
		},
		{
			name: "split join",
			e: d().Split(expr.R("cut"), "Cut").
				Apply("Count", d().Count()).
				Join(d().Filter(expr.R("color").Is("D")).
					Split(expr.R("cut"), "Cut").
					Apply("DCount", d().Count())).
				Sort(expr.R("Cut"), ir.Ascending).
				Select("Cut", "Count", "DCount"),
		},
		{
			name: "raw rows",
			e: d().Filter(expr.R("price").GreaterThan(250)).
				Sort(expr.R("price"), ir.Ascending).
				Select("cut", "price"),
		},
	}

	s := createDiamondStore(t)
	x := engine.NewExecutor(s, engine.WithIDGenerator(testutil.NewFixedIDGenerator("")))
	sources := map[string]*external.External{"diamonds": testutil.DiamondsExternal(dialect.EngineSQLite)}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.e.Must()
			pushed, err := x.Compute(context.Background(), e, sources)
			require.NoError(t, err)
			testutil.AssertRowsEqual(t, rowsOf(t, native(t, e)), rowsOf(t, pushed))
		})
	}
}
