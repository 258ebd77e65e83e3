package expr

import (
	"maps"
	"slices"

	"github.com/roach88/strata/internal/ir"
)

// Builder composes expressions fluently. The first error encountered is
// carried along and reported by Expr; later calls become no-ops.
//
//	q := expr.Ply().
//		Apply("Count", expr.R("^diamonds").Count()).
//		Apply("TotalPrice", expr.R("^diamonds").Sum(expr.R("price")))
type Builder struct {
	e   Expression
	err error
}

// R starts from a reference; see NewRef for the '^' prefix.
func R(name string) Builder {
	return Builder{e: NewRef(name)}
}

// L starts from a literal converted with ir.FromNative.
func L(x any) Builder {
	v, err := ir.FromNative(x)
	if err != nil {
		return Builder{err: err}
	}
	return Builder{e: NewLiteral(v)}
}

// Ply starts from the basis dataset: one empty row.
func Ply() Builder {
	return Builder{e: NewLiteral(ir.Basis())}
}

// From starts from an existing expression.
func From(e Expression) Builder {
	return Builder{e: e}
}

// Expr returns the built expression or the first error.
func (b Builder) Expr() (Expression, error) {
	return b.e, b.err
}

// Must returns the built expression and panics on error. Meant for tests and
// static query definitions.
func (b Builder) Must() Expression {
	if b.err != nil {
		panic(b.err)
	}
	return b.e
}

// operand turns a builder argument into an expression.
func operand(x any) (Expression, error) {
	switch v := x.(type) {
	case Builder:
		return v.e, v.err
	case Expression:
		return v, nil
	}
	v, err := ir.FromNative(x)
	if err != nil {
		return nil, err
	}
	return NewLiteral(v), nil
}

// Then appends an action.
func (b Builder) Then(a Action) Builder {
	if b.err != nil {
		return b
	}
	var (
		c   *Chain
		err error
	)
	if base, ok := b.e.(*Chain); ok {
		c, err = NewChain(base.Base, append(append([]Action{}, base.Actions...), a)...)
	} else {
		c, err = NewChain(b.e, a)
	}
	if err != nil {
		return Builder{err: err}
	}
	return Builder{e: c}
}

func (b Builder) with(x any, mk func(Expression) Action) Builder {
	if b.err != nil {
		return b
	}
	e, err := operand(x)
	if err != nil {
		return Builder{err: err}
	}
	return b.Then(mk(e))
}

func (b Builder) Filter(pred any) Builder { return b.with(pred, Filter) }

func (b Builder) Apply(name string, x any) Builder {
	return b.with(x, func(e Expression) Action { return Apply(name, e) })
}

// Split groups by one key. The nested data keeps the name of the reference
// being split, or "data" when the base is not a reference.
func (b Builder) Split(key any, name string) Builder {
	dataName := "data"
	base := b.e
	if c, ok := base.(*Chain); ok {
		base = c.Base
	}
	if r, ok := base.(*Ref); ok {
		dataName = r.Name
	}
	return b.SplitInto(map[string]any{name: key}, dataName)
}

// SplitInto groups by several keys; keys are ordered by name.
func (b Builder) SplitInto(keys map[string]any, dataName string) Builder {
	if b.err != nil {
		return b
	}
	names := slices.Sorted(maps.Keys(keys))
	splits := make([]SplitKey, 0, len(keys))
	for _, name := range names {
		e, err := operand(keys[name])
		if err != nil {
			return Builder{err: err}
		}
		splits = append(splits, SplitKey{Name: name, Expr: e})
	}
	return b.Then(Split(splits, dataName))
}

func (b Builder) Sort(x any, dir ir.Direction) Builder {
	return b.with(x, func(e Expression) Action { return Sort(e, dir) })
}

func (b Builder) Limit(n int) Builder            { return b.Then(Limit(n)) }
func (b Builder) Select(names ...string) Builder { return b.Then(Select(names...)) }
func (b Builder) Count() Builder                 { return b.Then(Count()) }
func (b Builder) Sum(x any) Builder              { return b.with(x, Sum) }
func (b Builder) Min(x any) Builder              { return b.with(x, Min) }
func (b Builder) Max(x any) Builder              { return b.with(x, Max) }
func (b Builder) Average(x any) Builder          { return b.with(x, Average) }
func (b Builder) CountDistinct(x any) Builder    { return b.with(x, CountDistinct) }
func (b Builder) Group(x any) Builder            { return b.with(x, Group) }
func (b Builder) Join(x any) Builder             { return b.with(x, Join) }

func (b Builder) CustomAggregate(name string) Builder {
	return b.Then(Custom(name))
}

func (b Builder) Quantile(x any, q float64) Builder {
	return b.with(x, func(e Expression) Action { return Quantile(e, q) })
}

func (b Builder) binary(op Op, x any) Builder {
	return b.with(x, func(e Expression) Action { return Binary(op, e) })
}

func (b Builder) Is(x any) Builder                 { return b.binary(OpIs, x) }
func (b Builder) LessThan(x any) Builder           { return b.binary(OpLessThan, x) }
func (b Builder) LessThanOrEqual(x any) Builder    { return b.binary(OpLessThanOrEqual, x) }
func (b Builder) GreaterThan(x any) Builder        { return b.binary(OpGreaterThan, x) }
func (b Builder) GreaterThanOrEqual(x any) Builder { return b.binary(OpGreaterThanOrEqual, x) }
func (b Builder) In(x any) Builder                 { return b.binary(OpIn, x) }
func (b Builder) And(x any) Builder                { return b.binary(OpAnd, x) }
func (b Builder) Or(x any) Builder                 { return b.binary(OpOr, x) }
func (b Builder) Add(x any) Builder                { return b.binary(OpAdd, x) }
func (b Builder) Subtract(x any) Builder           { return b.binary(OpSubtract, x) }
func (b Builder) Multiply(x any) Builder           { return b.binary(OpMultiply, x) }
func (b Builder) Divide(x any) Builder             { return b.binary(OpDivide, x) }
func (b Builder) Power(x any) Builder              { return b.binary(OpPower, x) }
func (b Builder) Concat(x any) Builder             { return b.binary(OpConcat, x) }
func (b Builder) Contains(x any) Builder           { return b.binary(OpContains, x) }
func (b Builder) Fallback(x any) Builder           { return b.binary(OpFallback, x) }

func (b Builder) Not() Builder                   { return b.Then(Not()) }
func (b Builder) Absolute() Builder              { return b.Then(Absolute()) }
func (b Builder) Length() Builder                { return b.Then(Length()) }
func (b Builder) Cardinality() Builder           { return b.Then(Cardinality()) }
func (b Builder) Match(pattern string) Builder   { return b.Then(Match(pattern)) }
func (b Builder) Extract(pattern string) Builder { return b.Then(Extract(pattern)) }

func (b Builder) Substr(position, length int) Builder {
	return b.Then(Substr(position, length))
}

func (b Builder) NumberBucket(size, offset float64) Builder {
	return b.Then(NumberBucket(size, offset))
}

func (b Builder) TimeFloor(d string, tz string) Builder {
	return b.duration(d, func(d ir.Duration) Action { return TimeFloor(d, tz) })
}

func (b Builder) TimeBucket(d string, tz string) Builder {
	return b.duration(d, func(d ir.Duration) Action { return TimeBucket(d, tz) })
}

func (b Builder) TimeShift(d string, step int, tz string) Builder {
	return b.duration(d, func(d ir.Duration) Action { return TimeShift(d, step, tz) })
}

func (b Builder) TimePart(part, tz string) Builder {
	return b.Then(TimePart(part, tz))
}

func (b Builder) duration(s string, mk func(ir.Duration) Action) Builder {
	if b.err != nil {
		return b
	}
	d, err := ir.ParseDuration(s)
	if err != nil {
		return Builder{err: err}
	}
	return b.Then(mk(d))
}
