package ir

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare_NullsFirst(t *testing.T) {
	assert.Equal(t, -1, Compare(Null{}, Number(1)))
	assert.Equal(t, 1, Compare(String("a"), nil))
	assert.Equal(t, 0, Compare(nil, Null{}))
	assert.Equal(t, -1, Compare(Number(1), Number(2)))
	assert.Equal(t, -1, Compare(Bool(false), Bool(true)))
}

func TestEqual(t *testing.T) {
	ts := time.Date(2015, 9, 12, 0, 0, 0, 0, time.UTC)
	assert.True(t, Equal(NewTime(ts), NewTime(ts.In(time.FixedZone("x", 3600)))))
	assert.True(t, Equal(NewSet(TypeString, String("a"), String("b")), NewSet(TypeString, String("b"), String("a"))))
	assert.False(t, Equal(Number(1), String("1")))
	assert.True(t, Equal(Null{}, nil))
}

func TestSet(t *testing.T) {
	s := NewSet(TypeUnknown, String("a"), String("b"), String("a"))
	assert.Equal(t, 2, s.Size())
	assert.Equal(t, SetOf(TypeString), s.Type())
	assert.True(t, s.Contains(String("b")))
	assert.Equal(t, "{a,b}", s.String())

	u := s.Union(NewSet(TypeString, String("c")))
	assert.Equal(t, 3, u.Size())
	assert.Equal(t, 1, u.Intersect(NewSet(TypeString, String("c"), String("z"))).Size())

	ranges := NewSet(TypeNumberRange, NewNumberRange(0, 10), NewNumberRange(20, 30))
	assert.True(t, ranges.Contains(Number(5)))
	assert.False(t, ranges.Contains(Number(10)))
	assert.True(t, ranges.Contains(Number(20)))
}

func TestRanges(t *testing.T) {
	r := NumberRange{Start: math.Inf(-1), End: 5, Bounds: "(]"}
	assert.True(t, r.Contains(5))
	assert.True(t, r.Contains(-1e9))
	assert.Equal(t, "(-Infinity,5]", r.String())

	start := time.Date(2015, 9, 12, 0, 0, 0, 0, time.UTC)
	tr := NewTimeRange(start, start.Add(time.Hour))
	assert.True(t, tr.Contains(start))
	assert.False(t, tr.Contains(start.Add(time.Hour)))

	sr := NewStringRange("b", "")
	assert.True(t, sr.Contains("zzz"))
	assert.False(t, sr.Contains("a"))
}

func TestFromNativeToNative(t *testing.T) {
	v, err := FromNative(int64(3))
	require.NoError(t, err)
	assert.Equal(t, Number(3), v)

	v, err = FromNative([]string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, SetOf(TypeString), v.Type())

	_, err = FromNative(struct{}{})
	require.Error(t, err)

	native := ToNative(NumberRange{Start: 1, End: math.Inf(1), Bounds: "[)"})
	assert.Equal(t, map[string]any{"start": 1.0, "end": nil, "bounds": "[)"}, native)
}
