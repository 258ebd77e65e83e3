package expr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
)

func diamonds() *ir.Dataset {
	return ir.NewDataset([]ir.Datum{
		{"cut": ir.String("Ideal"), "color": ir.String("D"), "price": ir.Number(300)},
		{"cut": ir.String("Good"), "color": ir.String("E"), "price": ir.Number(100)},
		{"cut": ir.String("Ideal"), "color": ir.String("E"), "price": ir.Number(500)},
		{"cut": ir.String("Fair"), "color": ir.String("D"), "price": ir.Number(200)},
	})
}

func diamondsEnv() *Env {
	return NewEnv(map[string]Expression{"diamonds": NewLiteral(diamonds())})
}

func TestCompute_Totals(t *testing.T) {
	e := Ply().
		Apply("Count", R("^diamonds").Count()).
		Apply("TotalPrice", R("^diamonds").Sum(R("price"))).
		Apply("MinD", R("^diamonds").Filter(R("color").Is("D")).Min(R("price"))).
		Must()

	v, err := Compute(context.Background(), e, diamondsEnv(), nil)
	require.NoError(t, err)
	ds := v.(*ir.Dataset)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, ir.Number(4), ds.Data[0]["Count"])
	assert.Equal(t, ir.Number(1100), ds.Data[0]["TotalPrice"])
	assert.Equal(t, ir.Number(200), ds.Data[0]["MinD"])
}

func TestCompute_SplitSortLimit(t *testing.T) {
	e := R("diamonds").
		Split(R("cut"), "Cut").
		Apply("Count", R("diamonds").Count()).
		Sort(R("Count"), ir.Descending).
		Limit(2).
		Must()

	v, err := Compute(context.Background(), e, diamondsEnv(), nil)
	require.NoError(t, err)
	ds := v.(*ir.Dataset)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, ir.String("Ideal"), ds.Data[0]["Cut"])
	assert.Equal(t, ir.Number(2), ds.Data[0]["Count"])
	assert.Equal(t, ir.String("Good"), ds.Data[1]["Cut"])
	assert.Equal(t, []string{"Cut"}, ds.Keys)
}

func TestCompute_ResolvedMatchesUnresolved(t *testing.T) {
	e := R("diamonds").
		Filter(R("price").GreaterThan(150)).
		Split(R("color"), "Color").
		Apply("Avg", R("diamonds").Average(R("price"))).
		Must()
	env := diamondsEnv()

	resolved, err := Resolve(e, ScopeOf(env))
	require.NoError(t, err)

	want, err := Compute(context.Background(), e, env, nil)
	require.NoError(t, err)
	got, err := Compute(context.Background(), resolved, env, nil)
	require.NoError(t, err)
	assert.True(t, ir.Equal(want, got))

	ds := got.(*ir.Dataset)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, ir.Number(250), ds.Data[0]["Avg"])
	assert.Equal(t, ir.Number(500), ds.Data[1]["Avg"])
}

func TestCompute_CustomIsUnsupportedNatively(t *testing.T) {
	e := R("diamonds").CustomAggregate("crazy").Must()
	_, err := Compute(context.Background(), e, diamondsEnv(), nil)
	require.Error(t, err)
	assert.True(t, ir.IsUnsupportedError(err))
}

func TestCompute_Join(t *testing.T) {
	stock := ir.NewDataset([]ir.Datum{
		{"cut": ir.String("Ideal"), "units": ir.Number(5)},
		{"cut": ir.String("Premium"), "units": ir.Number(7)},
	})
	env := NewEnv(map[string]Expression{
		"diamonds": NewLiteral(diamonds()),
		"stock":    NewLiteral(stock),
		"n":        lit(3),
	})
	e := R("diamonds").
		Split(R("cut"), "Cut").
		Apply("Count", R("diamonds").Count()).
		Join(R("stock").Split(R("cut"), "Cut").Apply("Units", R("stock").Sum(R("units")))).
		Select("Cut", "Count", "Units").
		Must()

	v, err := Compute(context.Background(), e, env, nil)
	require.NoError(t, err)
	ds := v.(*ir.Dataset)
	assert.Equal(t, []string{"Cut"}, ds.Keys)
	assert.Equal(t, []ir.Datum{
		{"Cut": ir.String("Ideal"), "Count": ir.Number(2), "Units": ir.Number(5)},
		{"Cut": ir.String("Good"), "Count": ir.Number(1)},
		{"Cut": ir.String("Fair"), "Count": ir.Number(1)},
		{"Cut": ir.String("Premium"), "Units": ir.Number(7)},
	}, ds.Data)

	_, err = Compute(context.Background(), R("diamonds").Join(R("n")).Must(), env, nil)
	require.Error(t, err)
	assert.True(t, ir.IsTypeError(err), "got %v", err)
}

func TestCompute_Group(t *testing.T) {
	v, err := Compute(context.Background(), R("diamonds").Group(R("cut")).Must(), diamondsEnv(), nil)
	require.NoError(t, err)
	assert.Equal(t, ir.NewSet(ir.TypeString, ir.String("Ideal"), ir.String("Good"), ir.String("Fair")), v)

	e := R("diamonds").
		Split(R("color"), "Color").
		Apply("Cuts", R("diamonds").Group(R("cut"))).
		Apply("CutCount", R("Cuts").Cardinality()).
		Sort(R("Color"), ir.Ascending).
		Must()
	v, err = Compute(context.Background(), e, diamondsEnv(), nil)
	require.NoError(t, err)
	ds := v.(*ir.Dataset)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, ir.Number(2), ds.Data[0]["CutCount"])
	assert.Equal(t, ir.Number(2), ds.Data[1]["CutCount"])
}

func TestCompute_UnresolvedAndOverflow(t *testing.T) {
	_, err := Compute(context.Background(), R("nothing").Must(), diamondsEnv(), nil)
	assert.True(t, ir.IsUnresolvedError(err))

	_, err = Compute(context.Background(), R("^diamonds").Must(), diamondsEnv(), nil)
	assert.True(t, ir.IsScopeOverflowError(err))
}

func TestCompute_Materializes(t *testing.T) {
	src := newFake("diamonds", OpFilter)
	rec := &recorder{results: map[string]ir.Value{
		`diamonds[filter($color.is("D"))]`: ir.NewDataset([]ir.Datum{
			{"cut": ir.String("Ideal"), "color": ir.String("D"), "price": ir.Number(300)},
		}),
	}}
	e := From(&ExternalExpr{Source: src}).Filter(R("color").Is("D")).Count().Must()

	v, err := Compute(context.Background(), Simplify(e), NewEnv(nil), rec)
	require.NoError(t, err)
	assert.Equal(t, ir.Number(1), v)
	assert.Equal(t, []string{`diamonds[filter($color.is("D"))]`}, rec.seen)

	_, err = Compute(context.Background(), e, NewEnv(nil), nil)
	assert.True(t, ir.IsUnsupportedError(err))
}

func TestCompute_RowBindingsPushDown(t *testing.T) {
	split := newFake("split")
	split.bind = func(row ir.Datum) map[string]Expression {
		child := newFake("child-"+row.Get("Cut").String(), OpCount)
		return map[string]Expression{"data": &ExternalExpr{Source: child}}
	}
	rec := &recorder{results: map[string]ir.Value{
		"split[]": ir.NewDataset([]ir.Datum{
			{"Cut": ir.String("Ideal")},
			{"Cut": ir.String("Good")},
		}),
		"child-Ideal[count()]": ir.Number(7),
		"child-Good[count()]":  ir.Number(3),
	}}
	e := From(&ExternalExpr{Source: split}).Apply("Count", R("data").Count()).Must()

	v, err := Compute(context.Background(), e, NewEnv(nil), rec)
	require.NoError(t, err)
	ds := v.(*ir.Dataset)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, ir.Number(7), ds.Data[0]["Count"])
	assert.Equal(t, ir.Number(3), ds.Data[1]["Count"])
	assert.Equal(t, []string{"split[]", "child-Ideal[count()]", "child-Good[count()]"}, rec.seen)
}

func TestApplyScalar(t *testing.T) {
	at := time.Date(2015, 9, 12, 10, 37, 0, 0, time.UTC)
	pt1h := ir.MustParseDuration("PT1H")
	ranges := ir.NewSet(ir.TypeNumberRange, ir.NewNumberRange(0, 10), ir.NewNumberRange(20, 30))

	tests := []struct {
		name string
		a    Action
		in   ir.Value
		arg  ir.Value
		want ir.Value
	}{
		{"is", Binary(OpIs, nil), ir.Number(1), ir.Number(1), ir.Bool(true)},
		{"is null", Binary(OpIs, nil), ir.Null{}, ir.Null{}, ir.Bool(true)},
		{"lessThan", Binary(OpLessThan, nil), ir.Number(1), ir.Number(2), ir.Bool(true)},
		{"lessThan null", Binary(OpLessThan, nil), ir.Null{}, ir.Number(2), ir.Null{}},
		{"greaterThanOrEqual strings", Binary(OpGreaterThanOrEqual, nil), ir.String("b"), ir.String("a"), ir.Bool(true)},
		{"and short circuits null", Binary(OpAnd, nil), ir.Null{}, ir.Bool(false), ir.Bool(false)},
		{"and null", Binary(OpAnd, nil), ir.Null{}, ir.Bool(true), ir.Null{}},
		{"or", Binary(OpOr, nil), ir.Bool(false), ir.Bool(true), ir.Bool(true)},
		{"not", Not(), ir.Bool(true), nil, ir.Bool(false)},
		{"in set", Binary(OpIn, nil), ir.String("a"), ir.NewSet(ir.TypeString, ir.String("a")), ir.Bool(true)},
		{"in set of ranges", Binary(OpIn, nil), ir.Number(25), ranges, ir.Bool(true)},
		{"not in set of ranges", Binary(OpIn, nil), ir.Number(15), ranges, ir.Bool(false)},
		{"in range", Binary(OpIn, nil), ir.Number(10), ir.NewNumberRange(0, 10), ir.Bool(false)},
		{"add", Binary(OpAdd, nil), ir.Number(1), ir.Number(2), ir.Number(3)},
		{"divide by zero", Binary(OpDivide, nil), ir.Number(1), ir.Number(0), ir.Null{}},
		{"power", Binary(OpPower, nil), ir.Number(2), ir.Number(10), ir.Number(1024)},
		{"absolute", Absolute(), ir.Number(-4), nil, ir.Number(4)},
		{"concat", Binary(OpConcat, nil), ir.String("a"), ir.String("b"), ir.String("ab")},
		{"contains", Binary(OpContains, nil), ir.String("Ideal"), ir.String("de"), ir.Bool(true)},
		{"match", Match("^I"), ir.String("Ideal"), nil, ir.Bool(true)},
		{"extract group", Extract(`(\d+)`), ir.String("abc-123"), nil, ir.String("123")},
		{"extract no match", Extract(`\d+`), ir.String("abc"), nil, ir.Null{}},
		{"substr", Substr(1, 3), ir.String("Ideal"), nil, ir.String("dea")},
		{"substr past end", Substr(3, 10), ir.String("Ideal"), nil, ir.String("al")},
		{"length", Length(), ir.String("héllo"), nil, ir.Number(5)},
		{"fallback", Binary(OpFallback, nil), ir.Null{}, ir.String("x"), ir.String("x")},
		{"fallback keeps value", Binary(OpFallback, nil), ir.String("y"), ir.String("x"), ir.String("y")},
		{"null propagates", Length(), ir.Null{}, nil, ir.Null{}},
		{"numberBucket", NumberBucket(5, 1), ir.Number(17), nil, ir.NewNumberRange(16, 21)},
		{"numberBucket negative", NumberBucket(10, 0), ir.Number(-3), nil, ir.NewNumberRange(-10, 0)},
		{"timeFloor", TimeFloor(pt1h, ""), ir.NewTime(at), nil, ir.NewTime(time.Date(2015, 9, 12, 10, 0, 0, 0, time.UTC))},
		{"timeBucket", TimeBucket(pt1h, ""), ir.NewTime(at), nil, ir.NewTimeRange(
			time.Date(2015, 9, 12, 10, 0, 0, 0, time.UTC), time.Date(2015, 9, 12, 11, 0, 0, 0, time.UTC))},
		{"timeShift back", TimeShift(pt1h, -2, ""), ir.NewTime(at), nil, ir.NewTime(at.Add(-2 * time.Hour))},
		{"timePart day of week", TimePart("DAY_OF_WEEK", ""), ir.NewTime(at), nil, ir.Number(6)},
		{"timePart hour in LA", TimePart("HOUR_OF_DAY", "America/Los_Angeles"), ir.NewTime(at), nil, ir.Number(3)},
		{"cardinality", Cardinality(), ir.NewSet(ir.TypeString, ir.String("a"), ir.String("b")), nil, ir.Number(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyScalar(tt.a, tt.in, tt.arg)
			require.NoError(t, err)
			assert.True(t, ir.Equal(tt.want, got), "got %v want %v", got, tt.want)
		})
	}
}

func TestApplyScalar_TypeErrors(t *testing.T) {
	_, err := ApplyScalar(Binary(OpAdd, nil), ir.String("a"), ir.Number(1))
	assert.True(t, ir.IsTypeError(err))

	_, err = ApplyScalar(TimeFloor(ir.MustParseDuration("PT1H"), ""), ir.Number(1), nil)
	assert.True(t, ir.IsTypeError(err))
}
