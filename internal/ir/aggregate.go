package ir

import (
	"math"
	"slices"
)

// column evaluates fn on every row and returns the non-null results.
func (d *Dataset) column(fn RowFunc) ([]Value, error) {
	out := make([]Value, 0, d.Len())
	for _, row := range d.Data {
		v, err := fn(row)
		if err != nil {
			return nil, err
		}
		if !IsNull(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (d *Dataset) numbers(fn RowFunc, op string) ([]float64, error) {
	vals, err := d.column(fn)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		n, ok := v.(Number)
		if !ok {
			return nil, NewTypeError(op, "expected NUMBER, got %s", v.Type())
		}
		out[i] = float64(n)
	}
	return out, nil
}

// Count returns the number of rows.
func (d *Dataset) Count() Number {
	return Number(d.Len())
}

// Sum adds the non-null values of fn. An empty input sums to 0.
func (d *Dataset) Sum(fn RowFunc) (Value, error) {
	nums, err := d.numbers(fn, "sum")
	if err != nil {
		return nil, err
	}
	var s float64
	for _, n := range nums {
		s += n
	}
	return Number(s), nil
}

// Min returns the smallest non-null value of fn, or Null for empty input.
func (d *Dataset) Min(fn RowFunc) (Value, error) {
	return d.extreme(fn, -1)
}

// Max returns the largest non-null value of fn, or Null for empty input.
func (d *Dataset) Max(fn RowFunc) (Value, error) {
	return d.extreme(fn, 1)
}

func (d *Dataset) extreme(fn RowFunc, want int) (Value, error) {
	vals, err := d.column(fn)
	if err != nil {
		return nil, err
	}
	var best Value = Null{}
	for _, v := range vals {
		if IsNull(best) || Compare(v, best) == want {
			best = v
		}
	}
	return best, nil
}

// Average returns the mean of the non-null values of fn, or Null when there
// are none.
func (d *Dataset) Average(fn RowFunc) (Value, error) {
	nums, err := d.numbers(fn, "average")
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return Null{}, nil
	}
	var s float64
	for _, n := range nums {
		s += n
	}
	return Number(s / float64(len(nums))), nil
}

// CountDistinct returns the number of distinct non-null values of fn.
func (d *Dataset) CountDistinct(fn RowFunc) (Value, error) {
	vals, err := d.column(fn)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		if s, ok := v.(Set); ok {
			for _, e := range s.Elements {
				seen[KeyOf(e)] = struct{}{}
			}
			continue
		}
		seen[KeyOf(v)] = struct{}{}
	}
	return Number(len(seen)), nil
}

// Quantile returns the nearest-rank q-quantile of the non-null values of fn:
// the value at sorted index ceil(q*n)-1, clamped to [0, n-1]. An empty input
// yields Null.
func (d *Dataset) Quantile(fn RowFunc, q float64) (Value, error) {
	if q < 0 || q > 1 || math.IsNaN(q) {
		return nil, NewTypeError("quantile", "quantile %v out of range [0,1]", q)
	}
	nums, err := d.numbers(fn, "quantile")
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return Null{}, nil
	}
	slices.Sort(nums)
	i := int(math.Ceil(q*float64(len(nums)))) - 1
	i = max(0, min(i, len(nums)-1))
	return Number(nums[i]), nil
}
