package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func col(name string) RowFunc {
	return func(d Datum) (Value, error) { return d.Get(name), nil }
}

func sample() *Dataset {
	return NewDataset([]Datum{
		{"cut": String("Ideal"), "price": Number(300)},
		{"cut": String("Good"), "price": Number(100)},
		{"cut": String("Ideal"), "price": Number(500)},
		{"cut": String("Fair"), "price": Null{}},
		{"cut": String("Good"), "price": Number(200)},
	})
}

func TestDataset_InferAttributes(t *testing.T) {
	ds := sample()
	assert.Equal(t, []string{"cut", "price"}, ds.Columns())
	attr, ok := ds.Attributes.Find("price")
	require.True(t, ok)
	assert.Equal(t, TypeNumber, attr.Type)
}

func TestDataset_FilterSortLimit(t *testing.T) {
	ds := sample()
	filtered, err := ds.Filter(func(d Datum) (bool, error) {
		return Equal(d.Get("cut"), String("Good")), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, filtered.Len())

	sorted, err := ds.Sort(col("price"), Descending)
	require.NoError(t, err)
	assert.Equal(t, Number(500), sorted.Data[0].Get("price"))
	assert.True(t, IsNull(sorted.Data[4].Get("price")))

	assert.Equal(t, 2, sorted.Limit(2).Len())
	assert.Equal(t, 5, sorted.Limit(10).Len())
}

func TestDataset_SortIsStable(t *testing.T) {
	ds := sample()
	sorted, err := ds.Sort(col("cut"), Ascending)
	require.NoError(t, err)
	var prices []Value
	for _, row := range sorted.Data {
		if Equal(row.Get("cut"), String("Ideal")) {
			prices = append(prices, row.Get("price"))
		}
	}
	assert.Equal(t, []Value{Number(300), Number(500)}, prices)
}

func TestDataset_SplitFirstOccurrence(t *testing.T) {
	ds := sample()
	split, err := ds.Split([]SplitKey{{Name: "Cut", Type: TypeString, Fn: col("cut")}}, "data")
	require.NoError(t, err)
	require.Equal(t, 3, split.Len())
	assert.Equal(t, []string{"Cut"}, split.Keys)
	assert.Equal(t, String("Ideal"), split.Data[0].Get("Cut"))
	assert.Equal(t, String("Good"), split.Data[1].Get("Cut"))
	assert.Equal(t, String("Fair"), split.Data[2].Get("Cut"))

	inner := split.Data[0].Get("data").(*Dataset)
	assert.Equal(t, 2, inner.Len())
}

func TestDataset_Aggregates(t *testing.T) {
	ds := sample()

	assert.Equal(t, Number(5), ds.Count())

	sum, err := ds.Sum(col("price"))
	require.NoError(t, err)
	assert.Equal(t, Number(1100), sum)

	lo, err := ds.Min(col("price"))
	require.NoError(t, err)
	assert.Equal(t, Number(100), lo)

	hi, err := ds.Max(col("price"))
	require.NoError(t, err)
	assert.Equal(t, Number(500), hi)

	avg, err := ds.Average(col("price"))
	require.NoError(t, err)
	assert.Equal(t, Number(275), avg)

	distinct, err := ds.CountDistinct(col("cut"))
	require.NoError(t, err)
	assert.Equal(t, Number(3), distinct)

	_, err = ds.Sum(col("cut"))
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestDataset_EmptyAggregates(t *testing.T) {
	ds := NewDataset(nil)

	sum, err := ds.Sum(col("x"))
	require.NoError(t, err)
	assert.Equal(t, Number(0), sum)

	avg, err := ds.Average(col("x"))
	require.NoError(t, err)
	assert.True(t, IsNull(avg))

	q, err := ds.Quantile(col("x"), 0.5)
	require.NoError(t, err)
	assert.True(t, IsNull(q))
}

func TestDataset_QuantileNearestRank(t *testing.T) {
	var rows []Datum
	for _, n := range []float64{7, 1, 3, 9, 5} {
		rows = append(rows, Datum{"x": Number(n)})
	}
	ds := NewDataset(rows)

	tests := []struct {
		q    float64
		want Number
	}{
		{0, 1},
		{0.2, 1},
		{0.5, 5},
		{0.9, 9},
		{1, 9},
	}
	for _, tt := range tests {
		got, err := ds.Quantile(col("x"), tt.q)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "q=%v", tt.q)
	}

	_, err := ds.Quantile(col("x"), 1.5)
	require.Error(t, err)
}

func TestDataset_Join(t *testing.T) {
	left := &Dataset{Keys: []string{"k"}, Data: []Datum{
		{"k": String("a"), "x": Number(1)},
		{"k": String("b"), "x": Number(2)},
	}}
	right := &Dataset{Keys: []string{"k"}, Data: []Datum{
		{"k": String("b"), "y": Number(20)},
		{"k": String("c"), "y": Number(30)},
	}}
	joined := left.Join(right)
	require.Equal(t, 3, joined.Len())
	assert.True(t, IsNull(joined.Data[0].Get("y")))
	assert.Equal(t, Number(20), joined.Data[1].Get("y"))
	assert.Equal(t, Number(2), joined.Data[1].Get("x"))
	assert.Equal(t, String("c"), joined.Data[2].Get("k"))
}

func TestDataset_SelectAndApply(t *testing.T) {
	ds := sample()
	applied, err := ds.Apply("double", TypeNumber, func(d Datum) (Value, error) {
		if n, ok := d.Get("price").(Number); ok {
			return n * 2, nil
		}
		return Null{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Number(600), applied.Data[0].Get("double"))
	assert.NotContains(t, ds.Data[0], "double")

	sel := applied.Select([]string{"double"})
	assert.Equal(t, []string{"double"}, sel.Columns())
	assert.Len(t, sel.Data[0], 1)
}

func TestDataset_Group(t *testing.T) {
	s, err := sample().Group(col("cut"))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Size())
	assert.Equal(t, String("Ideal"), s.Elements[0])
}
