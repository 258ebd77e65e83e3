package external

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/dialect"
	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
)

func diamondAttributes() ir.Attributes {
	return ir.Attributes{
		{Name: "time", Type: ir.TypeTime},
		{Name: "cut", Type: ir.TypeString},
		{Name: "color", Type: ir.TypeString},
		{Name: "price", Type: ir.TypeNumber},
		{Name: "carat", Type: ir.TypeNumber},
	}
}

func diamonds(engine string) *External {
	return MustNew(SourceDescription{
		Engine:        engine,
		Source:        "diamonds",
		TimeAttribute: "time",
		Attributes:    diamondAttributes(),
	})
}

func at(clock string) ir.Time {
	ts, err := time.Parse(time.RFC3339, "2015-01-01T"+clock+":00Z")
	if err != nil {
		panic(err)
	}
	return ir.NewTime(ts)
}

func diamondRows() *ir.Dataset {
	row := func(ts, cut, color string, price, carat float64) ir.Datum {
		return ir.Datum{
			"time":  at(ts),
			"cut":   ir.String(cut),
			"color": ir.String(color),
			"price": ir.Number(price),
			"carat": ir.Number(carat),
		}
	}
	return &ir.Dataset{
		Attributes: diamondAttributes(),
		Data: []ir.Datum{
			row("00:10", "Ideal", "D", 100, 0.5),
			row("00:40", "Ideal", "E", 300, 0.7),
			row("01:05", "Good", "D", 200, 1.0),
			row("02:00", "Premium", "D", 50, 0.3),
			row("02:30", "Good", "F", 400, 1.2),
		},
	}
}

// plan resolves the built expression with $diamonds bound to src and
// simplifies it, the way the executor prepares a query.
func plan(t *testing.T, src *External, build func(d expr.Builder) expr.Builder) expr.Expression {
	t.Helper()
	root := expr.NewScope(ir.Attributes{{Name: "diamonds", Type: ir.TypeDataset, Nested: src.Attributes()}})
	resolved, err := expr.Resolve(build(expr.R("diamonds")).Must(), root)
	require.NoError(t, err)
	bound, err := expr.ResolveValues(resolved, expr.NewEnv(map[string]expr.Expression{
		"diamonds": &expr.ExternalExpr{Source: src},
	}))
	require.NoError(t, err)
	return expr.Simplify(bound)
}

func absorbed(t *testing.T, e expr.Expression) *External {
	t.Helper()
	ext, ok := e.(*expr.ExternalExpr)
	require.True(t, ok, "expected a fully absorbed expression, got %s", e)
	out, ok := ext.Source.(*External)
	require.True(t, ok)
	return out
}

func residual(t *testing.T, e expr.Expression) (*External, []expr.Action) {
	t.Helper()
	c, ok := e.(*expr.Chain)
	require.True(t, ok, "expected a residual chain, got %s", e)
	return absorbed(t, c.Base), c.Actions
}

func TestSplitCountSortLimit_SingleQuery(t *testing.T) {
	out := plan(t, diamonds(dialect.EngineSQLite), func(d expr.Builder) expr.Builder {
		return d.Filter(expr.R("color").Is("D")).
			Split(expr.R("cut"), "Cut").
			Apply("Count", expr.R("diamonds").Count()).
			Sort(expr.R("Count"), ir.Descending).
			Limit(2)
	})

	ext := absorbed(t, out)
	q, _, err := ext.QueryAndPostProcess()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "cut" AS "Cut", COUNT(*) AS "Count" FROM "diamonds" WHERE ("color"='D') GROUP BY 1 ORDER BY "Count" DESC LIMIT 2`, q.SQL)
	assert.Equal(t, dialect.EngineSQLite, q.Engine)
	assert.Nil(t, q.Druid)
}

func TestSplitCount_Shape(t *testing.T) {
	out := plan(t, diamonds(dialect.EngineSQLite), func(d expr.Builder) expr.Builder {
		return d.Split(expr.R("cut"), "Cut").Apply("Count", expr.R("diamonds").Count())
	})

	ext := absorbed(t, out)
	assert.Equal(t, ModeSplit, ext.Mode())
	require.Len(t, ext.Splits(), 1)
	assert.Equal(t, "Cut", ext.Splits()[0].Name)
	require.Len(t, ext.Applies(), 1)
	assert.Equal(t, "Count", ext.Applies()[0].Name)
	assert.Equal(t, "diamonds", ext.DataName())
	assert.Equal(t, -1, ext.Limit())

	attrs := ext.Attributes()
	require.Len(t, attrs, 3)
	assert.Equal(t, ir.TypeString, attrs[0].Type)
	assert.Equal(t, ir.TypeNumber, attrs[1].Type)
	assert.Equal(t, ir.TypeDataset, attrs[2].Type)
}

func TestSplitApply_Absorption(t *testing.T) {
	sqlite := diamonds(dialect.EngineSQLite)

	t.Run("arithmetic over earlier applies", func(t *testing.T) {
		out := plan(t, sqlite, func(d expr.Builder) expr.Builder {
			return d.Split(expr.R("cut"), "Cut").
				Apply("Count", expr.R("diamonds").Count()).
				Apply("Double", expr.R("Count").Multiply(2))
		})
		ext := absorbed(t, out)
		require.Len(t, ext.Applies(), 2)
		assert.Equal(t, "Double", ext.Applies()[1].Name)
	})

	t.Run("constant", func(t *testing.T) {
		out := plan(t, sqlite, func(d expr.Builder) expr.Builder {
			return d.Split(expr.R("cut"), "Cut").Apply("One", expr.L(1))
		})
		ext := absorbed(t, out)
		require.Len(t, ext.Applies(), 1)
	})

	t.Run("group rows stay local", func(t *testing.T) {
		out := plan(t, sqlite, func(d expr.Builder) expr.Builder {
			return d.Split(expr.R("cut"), "Cut").
				Apply("Rows", expr.R("diamonds").Filter(expr.R("color").Is("D")))
		})
		ext, actions := residual(t, out)
		assert.Equal(t, ModeSplit, ext.Mode())
		require.Len(t, actions, 1)
		assert.Equal(t, expr.OpApply, actions[0].Op)
	})
}

func TestTimeBucket_PostProcessRoundTrip(t *testing.T) {
	for _, engine := range []string{dialect.EngineSQLite, EngineDruid} {
		t.Run(engine, func(t *testing.T) {
			out := plan(t, diamonds(engine), func(d expr.Builder) expr.Builder {
				return d.Split(expr.R("time").TimeBucket("PT1H", ""), "TimeByHour").
					Apply("Count", expr.R("diamonds").Count())
			})
			ext := absorbed(t, out)
			_, pp, err := ext.QueryAndPostProcess()
			require.NoError(t, err)

			column := "TimeByHour"
			if engine == EngineDruid {
				column = druidTimestamp
			}
			v, err := pp([]ir.Datum{{column: ir.String("2015-01-01T00:00:00Z"), "Count": ir.Number(2)}})
			require.NoError(t, err)

			ds, ok := v.(*ir.Dataset)
			require.True(t, ok)
			require.Equal(t, 1, ds.Len())
			assert.Equal(t, []string{"TimeByHour"}, ds.Keys)
			r, ok := ds.Data[0]["TimeByHour"].(ir.TimeRange)
			require.True(t, ok)
			assert.True(t, r.Equal(ir.NewTimeRange(at("00:00").Time, at("01:00").Time)), r.String())
			assert.Equal(t, ir.Number(2), ds.Data[0]["Count"])
		})
	}
}

func TestQuantileOnSQLite_StaysNative(t *testing.T) {
	build := func(d expr.Builder) expr.Builder {
		return d.Filter(expr.R("color").Is("D")).
			SplitInto(map[string]any{"Cut": expr.R("cut")}, "diamonds").
			Apply("P50", expr.R("diamonds").Quantile(expr.R("price"), 0.5)).
			Apply("Count", expr.R("diamonds").Count()).
			Sort(expr.R("Cut"), ir.Ascending).
			Select("Cut", "P50", "Count")
	}
	raw := diamondRows()
	ctx := context.Background()

	out := plan(t, diamonds(dialect.EngineSQLite), build)
	ext, rest := residual(t, out)
	assert.Equal(t, ModeSplit, ext.Mode())
	require.NotEmpty(t, rest)
	assert.Equal(t, expr.OpApply, rest[0].Op)
	assert.Equal(t, "P50", rest[0].Name)

	m := expr.MaterializerFunc(func(ctx context.Context, src expr.Source) (ir.Value, error) {
		return src.(*External).Compute(ctx, raw)
	})
	pushed, err := expr.Compute(ctx, out, nil, m)
	require.NoError(t, err)

	native, err := expr.Resolve(build(expr.From(expr.NewLiteral(raw))).Must(), expr.NewScope(nil))
	require.NoError(t, err)
	want, err := expr.Compute(ctx, native, nil, nil)
	require.NoError(t, err)

	require.IsType(t, &ir.Dataset{}, pushed)
	require.IsType(t, &ir.Dataset{}, want)
	assert.Equal(t, want.(*ir.Dataset).Data, pushed.(*ir.Dataset).Data)
	assert.Equal(t, []ir.Datum{
		{"Cut": ir.String("Good"), "P50": ir.Number(200), "Count": ir.Number(1)},
		{"Cut": ir.String("Ideal"), "P50": ir.Number(100), "Count": ir.Number(1)},
		{"Cut": ir.String("Premium"), "P50": ir.Number(50), "Count": ir.Number(1)},
	}, pushed.(*ir.Dataset).Data)
}

func TestSplitApply_RedefinedAfterHaving(t *testing.T) {
	build := func(d expr.Builder) expr.Builder {
		return d.SplitInto(map[string]any{"Cut": expr.R("cut")}, "diamonds").
			Apply("M", expr.R("diamonds").Count()).
			Filter(expr.R("M").GreaterThan(1)).
			Apply("M", expr.R("diamonds").Sum(expr.R("price"))).
			Sort(expr.R("Cut"), ir.Ascending).
			Select("Cut", "M")
	}
	raw := diamondRows()
	ctx := context.Background()

	out := plan(t, diamonds(dialect.EngineSQLite), build)
	ext, rest := residual(t, out)
	assert.Equal(t, ModeSplit, ext.Mode())
	require.NotEmpty(t, rest)
	assert.Equal(t, expr.OpApply, rest[0].Op)
	assert.Equal(t, "M", rest[0].Name)

	m := expr.MaterializerFunc(func(ctx context.Context, src expr.Source) (ir.Value, error) {
		return src.(*External).Compute(ctx, raw)
	})
	pushed, err := expr.Compute(ctx, out, nil, m)
	require.NoError(t, err)

	native, err := expr.Resolve(build(expr.From(expr.NewLiteral(raw))).Must(), expr.NewScope(nil))
	require.NoError(t, err)
	want, err := expr.Compute(ctx, native, nil, nil)
	require.NoError(t, err)

	require.IsType(t, &ir.Dataset{}, pushed)
	assert.Equal(t, want.(*ir.Dataset).Data, pushed.(*ir.Dataset).Data)
	assert.Equal(t, []ir.Datum{
		{"Cut": ir.String("Good"), "M": ir.Number(600)},
		{"Cut": ir.String("Ideal"), "M": ir.Number(400)},
	}, pushed.(*ir.Dataset).Data)

	t.Run("sorted output", func(t *testing.T) {
		out := plan(t, diamonds(dialect.EngineSQLite), func(d expr.Builder) expr.Builder {
			return d.SplitInto(map[string]any{"Cut": expr.R("cut")}, "diamonds").
				Apply("M", expr.R("diamonds").Count()).
				Sort(expr.R("M"), ir.Descending).
				Apply("M", expr.R("diamonds").Sum(expr.R("price")))
		})
		_, rest := residual(t, out)
		require.Len(t, rest, 1)
		assert.Equal(t, "M", rest[0].Name)
	})

	t.Run("unused name is replaced", func(t *testing.T) {
		out := plan(t, diamonds(dialect.EngineSQLite), func(d expr.Builder) expr.Builder {
			return d.SplitInto(map[string]any{"Cut": expr.R("cut")}, "diamonds").
				Apply("M", expr.R("diamonds").Count()).
				Apply("M", expr.R("diamonds").Sum(expr.R("price")))
		})
		ext := absorbed(t, out)
		require.Len(t, ext.Applies(), 1)
	})
}

func TestCapabilities(t *testing.T) {
	actions := func(t *testing.T, src *External, build func(d expr.Builder) expr.Builder) []expr.Action {
		t.Helper()
		root := expr.NewScope(nil)
		resolved, err := expr.Resolve(build(expr.From(&expr.ExternalExpr{Source: src})).Must(), root)
		require.NoError(t, err)
		return resolved.(*expr.Chain).Actions
	}
	sqlite := diamonds(dialect.EngineSQLite)
	druid := diamonds(EngineDruid)

	t.Run("raw", func(t *testing.T) {
		last := func(build func(d expr.Builder) expr.Builder) expr.Action {
			as := actions(t, sqlite, build)
			return as[len(as)-1]
		}
		filter := last(func(d expr.Builder) expr.Builder { return d.Filter(expr.R("color").Is("D")) })
		split := last(func(d expr.Builder) expr.Builder { return d.Split(expr.R("cut"), "Cut") })
		sort := last(func(d expr.Builder) expr.Builder { return d.Sort(expr.R("price"), ir.Descending) })
		limit := last(func(d expr.Builder) expr.Builder { return d.Limit(3) })
		apply := last(func(d expr.Builder) expr.Builder { return d.Apply("Double", expr.R("price").Multiply(2)) })

		assert.True(t, sqlite.CanHandleFilter(filter))
		assert.True(t, sqlite.CanHandleSplit(split))
		assert.True(t, sqlite.CanHandleSort(sort))
		assert.True(t, sqlite.CanHandleLimit(limit))
		assert.True(t, sqlite.CanHandleApply(apply))
		assert.False(t, sqlite.CanHandleTotal())
		assert.False(t, sqlite.CanHandleHavingFilter(filter))
		assert.False(t, sqlite.CanHandleFilter(split))
	})

	t.Run("quantile per dialect", func(t *testing.T) {
		for _, tt := range []struct {
			src  *External
			want bool
		}{
			{diamonds(dialect.EngineSQLite), false},
			{diamonds(dialect.EngineMySQL), false},
			{diamonds(dialect.EnginePostgres), true},
			{druid, true},
		} {
			t.Run(tt.src.Engine(), func(t *testing.T) {
				as := actions(t, tt.src, func(d expr.Builder) expr.Builder {
					return d.Quantile(expr.R("price"), 0.9)
				})
				_, ok := tt.src.Absorb(as[0])
				assert.Equal(t, tt.want, ok)
			})
		}
	})

	t.Run("value becomes total", func(t *testing.T) {
		as := actions(t, sqlite, func(d expr.Builder) expr.Builder { return d.Count() })
		v, ok := sqlite.Absorb(as[0])
		require.True(t, ok)
		value := v.(*External)
		assert.Equal(t, ModeValue, value.Mode())
		assert.Equal(t, ir.TypeNumber, value.Type())
		assert.True(t, value.CanHandleTotal())
		_, ok = value.Absorb(expr.Filter(expr.L(true).Must()))
		assert.False(t, ok, "filters are not absorbed after aggregation")
	})

	t.Run("no filter after limit", func(t *testing.T) {
		as := actions(t, sqlite, func(d expr.Builder) expr.Builder {
			return d.Limit(5).Filter(expr.R("color").Is("D"))
		})
		limited, ok := sqlite.Absorb(as[0])
		require.True(t, ok)
		assert.False(t, limited.(*External).CanHandleFilter(as[1]))
	})

	t.Run("unsplitable attribute", func(t *testing.T) {
		attrs := diamondAttributes().With(ir.Attribute{Name: "uniques", Type: ir.TypeNumber, Unsplitable: true})
		src := MustNew(SourceDescription{Engine: EngineDruid, Source: "diamonds", Attributes: attrs})
		as := actions(t, src, func(d expr.Builder) expr.Builder { return d.Split(expr.R("uniques"), "U") })
		assert.False(t, src.CanHandleSplit(as[0]))
	})

	t.Run("custom aggregation", func(t *testing.T) {
		src := MustNew(SourceDescription{
			Engine:     EngineDruid,
			Source:     "diamonds",
			Attributes: diamondAttributes(),
			CustomAggregations: map[string]CustomAggregation{
				"crazy": {Aggregation: map[string]any{"type": "javascript", "fieldNames": []any{"price"}}},
			},
		})
		as := actions(t, src, func(d expr.Builder) expr.Builder { return d.CustomAggregate("crazy") })
		v, ok := src.Absorb(as[0])
		require.True(t, ok)
		q, _, err := v.(*External).QueryAndPostProcess()
		require.NoError(t, err)
		aggs := q.Druid["aggregations"].([]any)
		require.Len(t, aggs, 1)
		assert.Equal(t, "javascript", aggs[0].(map[string]any)["type"])
		assert.Equal(t, valueColumn, aggs[0].(map[string]any)["name"])

		as = actions(t, druid, func(d expr.Builder) expr.Builder { return d.CustomAggregate("crazy") })
		_, ok = druid.Absorb(as[0])
		assert.False(t, ok)
	})
}

func TestTotal_FromPly(t *testing.T) {
	out := plan(t, diamonds(dialect.EngineSQLite), func(expr.Builder) expr.Builder {
		return expr.Ply().
			Apply("Count", expr.R("^diamonds").Count()).
			Apply("TotalPrice", expr.R("^diamonds").Sum(expr.R("price")))
	})
	ext := absorbed(t, out)
	assert.Equal(t, ModeTotal, ext.Mode())

	q, pp, err := ext.QueryAndPostProcess()
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) AS "Count", COALESCE(SUM("price"),0) AS "TotalPrice" FROM "diamonds"`, q.SQL)

	v, err := pp([]ir.Datum{{"Count": ir.Number(5), "TotalPrice": ir.String("1050")}})
	require.NoError(t, err)
	ds := v.(*ir.Dataset)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, ir.Number(5), ds.Data[0]["Count"])
	assert.Equal(t, ir.Number(1050), ds.Data[0]["TotalPrice"])
}

func TestTotal_AdoptsFilteredValue(t *testing.T) {
	out := plan(t, diamonds(dialect.EngineSQLite), func(expr.Builder) expr.Builder {
		return expr.Ply().
			Apply("Count", expr.R("^diamonds").Count()).
			Apply("DCount", expr.R("^diamonds").Filter(expr.R("color").Is("D")).Count())
	})
	ext := absorbed(t, out)
	q, _, err := ext.QueryAndPostProcess()
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) AS "Count", COUNT(CASE WHEN ("color"='D') THEN 1 END) AS "DCount" FROM "diamonds"`, q.SQL)
}

func TestRowBindings(t *testing.T) {
	src := diamonds(dialect.EngineSQLite)
	assert.Nil(t, src.RowBindings(ir.Datum{"cut": ir.String("Ideal")}))

	ext := absorbed(t, plan(t, src, func(d expr.Builder) expr.Builder {
		return d.Filter(expr.R("color").Is("D")).Split(expr.R("cut"), "Cut")
	}))
	bind := ext.RowBindings(ir.Datum{"Cut": ir.String("Ideal")})
	require.Contains(t, bind, "diamonds")
	group := bind["diamonds"].(*expr.ExternalExpr).Source.(*External)
	assert.Equal(t, ModeRaw, group.Mode())
	assert.Equal(t, `$color.is("D").and($cut.is("Ideal"))`, group.Filter().String())

	sel := group.Lower()
	assert.Equal(t, "diamonds", sel.From)
	assert.Len(t, sel.Columns, len(diamondAttributes()))
}

func TestPostProcess_Malformed(t *testing.T) {
	src := diamonds(dialect.EngineSQLite)

	value := absorbed(t, plan(t, src, func(d expr.Builder) expr.Builder { return d.Count() }))
	_, pp, err := value.QueryAndPostProcess()
	require.NoError(t, err)
	_, err = pp(nil)
	assert.True(t, ir.IsMalformedError(err))
	v, err := pp([]ir.Datum{{valueColumn: ir.String("12")}})
	require.NoError(t, err)
	assert.Equal(t, ir.Number(12), v)

	_, pp, err = src.QueryAndPostProcess()
	require.NoError(t, err)
	_, err = pp([]ir.Datum{{"price": ir.String("expensive")}})
	assert.True(t, ir.IsMalformedError(err))
}

func TestSimulate_PassesPostProcess(t *testing.T) {
	tests := []struct {
		name  string
		build func(d expr.Builder) expr.Builder
	}{
		{"raw", func(d expr.Builder) expr.Builder { return d.Filter(expr.R("color").Is("D")) }},
		{"value", func(d expr.Builder) expr.Builder { return d.Sum(expr.R("price")) }},
		{"split", func(d expr.Builder) expr.Builder {
			return d.Split(expr.R("time").TimeBucket("P1D", ""), "Day").Apply("Count", expr.R("diamonds").Count())
		}},
	}
	for _, engine := range []string{dialect.EngineSQLite, EngineDruid} {
		for _, tt := range tests {
			t.Run(engine+"/"+tt.name, func(t *testing.T) {
				ext := absorbed(t, plan(t, diamonds(engine), tt.build))
				_, pp, err := ext.QueryAndPostProcess()
				require.NoError(t, err)
				rows := ext.Simulate()
				require.Len(t, rows, 1)
				_, err = pp(rows)
				require.NoError(t, err)
			})
		}
	}
}

func TestIntrospect_SQL(t *testing.T) {
	src := diamonds(dialect.EngineSQLite)
	q, pp, err := src.IntrospectQueryAndPostProcess()
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "diamonds")

	attrs, err := pp([]ir.Datum{
		{"name": ir.String("time"), "sqlType": ir.String("TEXT")},
		{"name": ir.String("price"), "sqlType": ir.String("REAL")},
	})
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, ir.TypeTime, attrs[0].Type)
	assert.Equal(t, ir.TypeNumber, attrs[1].Type)
	assert.Equal(t, "REAL", attrs[1].NativeType)

	_, err = pp([]ir.Datum{{"sqlType": ir.String("TEXT")}})
	assert.True(t, ir.IsMalformedError(err))
}

func TestQuery_Fingerprint(t *testing.T) {
	a := Query{Engine: "sqlite", SQL: `SELECT 1`}
	b := Query{Engine: "sqlite", SQL: `SELECT 2`}
	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	again, err := a.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)
	assert.Equal(t, fa, again)
	assert.Equal(t, "SELECT 1", a.String())
}

func TestNew_InvalidDescription(t *testing.T) {
	tests := []struct {
		name string
		desc SourceDescription
	}{
		{"no source", SourceDescription{Engine: "sqlite"}},
		{"unknown engine", SourceDescription{Engine: "oracle", Source: "t"}},
		{"custom on sql", SourceDescription{Engine: "sqlite", Source: "t", CustomAggregations: map[string]CustomAggregation{"x": {}}}},
		{"time attribute not a time", SourceDescription{Engine: "sqlite", Source: "t", TimeAttribute: "cut", Attributes: diamondAttributes()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.desc)
			assert.Error(t, err)
		})
	}
}
