package expr

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/roach88/strata/internal/ir"
)

// Materializer turns a Source into a value by querying its backend.
type Materializer interface {
	Materialize(ctx context.Context, src Source) (ir.Value, error)
}

// MaterializerFunc adapts a function to Materializer.
type MaterializerFunc func(ctx context.Context, src Source) (ir.Value, error)

func (f MaterializerFunc) Materialize(ctx context.Context, src Source) (ir.Value, error) {
	return f(ctx, src)
}

// Compute evaluates e in env. Sources met along the way are materialised
// through m; with a nil m any Source is an error.
func Compute(ctx context.Context, e Expression, env *Env, m Materializer) (ir.Value, error) {
	if env == nil {
		env = NewEnv(nil)
	}
	ev := &evaluator{m: m}
	return ev.compute(ctx, e, env)
}

type evaluator struct {
	m Materializer
}

func (ev *evaluator) materialize(ctx context.Context, src Source) (ir.Value, error) {
	if ev.m == nil {
		return nil, ir.NewUnsupportedError(src.String(), "no materializer for remote source")
	}
	return ev.m.Materialize(ctx, src)
}

func (ev *evaluator) compute(ctx context.Context, e Expression, env *Env) (ir.Value, error) {
	switch x := e.(type) {
	case *Literal:
		return x.Value, nil
	case *Ref:
		start := env.Up(x.Nest)
		if start == nil {
			return nil, ir.NewScopeOverflowError(x.String(), x.Nest, env.Depth())
		}
		v, bound, ok := start.lookup(x.Name)
		if !ok {
			return nil, ir.NewUnresolvedError(x.String(), "no value for %s", x)
		}
		if bound != nil {
			return ev.compute(ctx, bound, start)
		}
		return v, nil
	case *ExternalExpr:
		return ev.materialize(ctx, x.Source)
	case *Chain:
		return ev.chain(ctx, x, env)
	}
	return nil, fmt.Errorf("compute: unknown expression %T", e)
}

func (ev *evaluator) chain(ctx context.Context, c *Chain, env *Env) (ir.Value, error) {
	// A chain over a bound source is composed with that source first so the
	// source gets the chance to absorb the actions.
	if r, ok := c.Base.(*Ref); ok {
		if start := env.Up(r.Nest); start != nil {
			if _, bound, found := start.lookup(r.Name); found && bound != nil {
				if _, isExt := bound.(*ExternalExpr); isExt {
					composed, err := NewChain(bound, c.Actions...)
					if err != nil {
						return nil, err
					}
					return ev.compute(ctx, Simplify(composed), env)
				}
			}
		}
	}

	var binder RowBinder
	if ext, ok := c.Base.(*ExternalExpr); ok {
		binder, _ = ext.Source.(RowBinder)
	}
	cur, err := ev.compute(ctx, c.Base, env)
	if err != nil {
		return nil, err
	}
	for _, a := range c.Actions {
		cur, err = ev.action(ctx, a, cur, env, binder)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.Op, err)
		}
		switch a.Op {
		case OpFilter, OpApply, OpSort, OpLimit, OpSelect:
		default:
			binder = nil
		}
	}
	return cur, nil
}

// rowFunc evaluates e once per row. When the rows came from a source that
// binds nested data, those bindings are substituted first so that nested
// chains can be pushed down to the source.
func (ev *evaluator) rowFunc(ctx context.Context, e Expression, env *Env, binder RowBinder) ir.RowFunc {
	return func(row ir.Datum) (ir.Value, error) {
		target := e
		if binder != nil {
			if bind := binder.RowBindings(row); len(bind) > 0 {
				sub, err := ResolveValues(e, NewEnv(bind))
				if err != nil {
					return nil, err
				}
				target = Simplify(sub)
			}
		}
		return ev.compute(ctx, target, env.Push(row))
	}
}

func (ev *evaluator) action(ctx context.Context, a Action, cur ir.Value, env *Env, binder RowBinder) (ir.Value, error) {
	sig := a.Op.sig()
	if sig.kind != kindScalar {
		ds, ok := cur.(*ir.Dataset)
		if !ok {
			if ir.IsNull(cur) {
				ds = ir.NewDataset(nil)
			} else {
				return nil, ir.NewTypeError(a.String(), "expected DATASET, got %s", ir.TypeOf(cur))
			}
		}
		return ev.datasetAction(ctx, a, ds, env, binder)
	}

	var arg ir.Value = ir.Null{}
	if a.Expr != nil {
		v, err := ev.compute(ctx, a.Expr, env)
		if err != nil {
			return nil, err
		}
		arg = v
	}
	return ApplyScalar(a, cur, arg)
}

func (ev *evaluator) datasetAction(ctx context.Context, a Action, ds *ir.Dataset, env *Env, binder RowBinder) (ir.Value, error) {
	rowFn := func(e Expression) ir.RowFunc { return ev.rowFunc(ctx, e, env, binder) }
	switch a.Op {
	case OpFilter:
		fn := rowFn(a.Expr)
		return ds.Filter(func(d ir.Datum) (bool, error) {
			v, err := fn(d)
			return ir.Truthy(v), err
		})
	case OpApply:
		out, err := ds.Apply(a.Name, a.Expr.Type(), rowFn(a.Expr))
		if err != nil || a.Expr.Type().Known() {
			return out, err
		}
		if inferred, ok := ir.InferAttributes(out.Data).Find(a.Name); ok {
			out.Attributes = out.Attributes.With(inferred)
		}
		return out, nil
	case OpSplit:
		keys := make([]ir.SplitKey, len(a.Splits))
		for i, k := range a.Splits {
			keys[i] = ir.SplitKey{Name: k.Name, Type: k.Expr.Type(), Fn: rowFn(k.Expr)}
		}
		return ds.Split(keys, a.DataName)
	case OpSort:
		return ds.Sort(rowFn(a.Expr), a.Direction)
	case OpLimit:
		return ds.Limit(a.Limit), nil
	case OpSelect:
		return ds.Select(a.Names), nil
	case OpJoin:
		v, err := ev.compute(ctx, a.Expr, env)
		if err != nil {
			return nil, err
		}
		if ir.IsNull(v) {
			return ds, nil
		}
		other, ok := v.(*ir.Dataset)
		if !ok {
			return nil, ir.NewTypeError(a.String(), "join needs a DATASET, got %s", ir.TypeOf(v))
		}
		return ds.Join(other), nil
	case OpGroup:
		return ds.Group(rowFn(a.Expr))
	case OpCount:
		return ds.Count(), nil
	case OpSum:
		return ds.Sum(rowFn(a.Expr))
	case OpMin:
		return ds.Min(rowFn(a.Expr))
	case OpMax:
		return ds.Max(rowFn(a.Expr))
	case OpAverage:
		return ds.Average(rowFn(a.Expr))
	case OpCountDistinct:
		return ds.CountDistinct(rowFn(a.Expr))
	case OpQuantile:
		return ds.Quantile(rowFn(a.Expr), a.Quantile)
	case OpCustom:
		return nil, ir.NewUnsupportedError(a.String(), "custom aggregation %q can only be computed by its backend", a.Custom)
	}
	return nil, ir.NewUnsupportedError(a.String(), "not a dataset operation")
}

// ApplyScalar evaluates a scalar action on its input and operand values.
// NULL inputs propagate to NULL except where the operation defines
// otherwise (is, fallback, the logical operators and in).
func ApplyScalar(a Action, in, arg ir.Value) (ir.Value, error) {
	switch a.Op {
	case OpIs:
		return ir.Bool(ir.Equal(in, arg)), nil
	case OpFallback:
		if ir.IsNull(in) {
			return arg, nil
		}
		return in, nil
	case OpAnd:
		l, r := in, arg
		if isFalse(l) || isFalse(r) {
			return ir.Bool(false), nil
		}
		if ir.IsNull(l) || ir.IsNull(r) {
			return ir.Null{}, nil
		}
		return ir.Bool(ir.Truthy(l) && ir.Truthy(r)), nil
	case OpOr:
		if ir.Truthy(in) || ir.Truthy(arg) {
			return ir.Bool(true), nil
		}
		if ir.IsNull(in) || ir.IsNull(arg) {
			return ir.Null{}, nil
		}
		return ir.Bool(false), nil
	case OpIn:
		return inValue(in, arg), nil
	}

	if ir.IsNull(in) {
		return ir.Null{}, nil
	}
	switch a.Op {
	case OpNot:
		return ir.Bool(!ir.Truthy(in)), nil
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		if ir.IsNull(arg) {
			return ir.Null{}, nil
		}
		c := ir.Compare(in, arg)
		switch a.Op {
		case OpLessThan:
			return ir.Bool(c < 0), nil
		case OpLessThanOrEqual:
			return ir.Bool(c <= 0), nil
		case OpGreaterThan:
			return ir.Bool(c > 0), nil
		}
		return ir.Bool(c >= 0), nil
	case OpAdd, OpSubtract, OpMultiply, OpDivide, OpPower:
		if ir.IsNull(arg) {
			return ir.Null{}, nil
		}
		l, lok := in.(ir.Number)
		r, rok := arg.(ir.Number)
		if !lok || !rok {
			return nil, ir.NewTypeError(a.String(), "arithmetic on %s and %s", in.Type(), arg.Type())
		}
		return arith(a.Op, float64(l), float64(r)), nil
	case OpAbsolute:
		n, ok := in.(ir.Number)
		if !ok {
			return nil, ir.NewTypeError(a.String(), "absolute of %s", in.Type())
		}
		return ir.Number(math.Abs(float64(n))), nil
	case OpConcat:
		if ir.IsNull(arg) {
			return ir.Null{}, nil
		}
		return ir.String(in.String() + arg.String()), nil
	case OpContains:
		if ir.IsNull(arg) {
			return ir.Null{}, nil
		}
		return ir.Bool(strings.Contains(in.String(), arg.String())), nil
	case OpMatch:
		re, err := regexp.Compile(a.Pattern)
		if err != nil {
			return nil, err
		}
		return ir.Bool(re.MatchString(in.String())), nil
	case OpExtract:
		re, err := regexp.Compile(a.Pattern)
		if err != nil {
			return nil, err
		}
		m := re.FindStringSubmatch(in.String())
		switch {
		case m == nil:
			return ir.Null{}, nil
		case len(m) > 1:
			return ir.String(m[1]), nil
		}
		return ir.String(m[0]), nil
	case OpSubstr:
		r := []rune(in.String())
		start := min(a.Position, len(r))
		end := min(start+a.Length, len(r))
		return ir.String(string(r[start:end])), nil
	case OpLength:
		return ir.Number(utf8.RuneCountInString(in.String())), nil
	case OpTimeFloor, OpTimeBucket, OpTimeShift, OpTimePart:
		t, ok := in.(ir.Time)
		if !ok {
			return nil, ir.NewTypeError(a.String(), "expected TIME, got %s", in.Type())
		}
		return timeOp(a, t)
	case OpNumberBucket:
		n, ok := in.(ir.Number)
		if !ok {
			return nil, ir.NewTypeError(a.String(), "expected NUMBER, got %s", in.Type())
		}
		start := math.Floor((float64(n)-a.Offset)/a.Size)*a.Size + a.Offset
		return ir.NewNumberRange(start, start+a.Size), nil
	case OpCardinality:
		s, ok := in.(ir.Set)
		if !ok {
			return ir.Number(1), nil
		}
		return ir.Number(s.Size()), nil
	}
	return nil, ir.NewUnsupportedError(a.String(), "not a scalar operation")
}

func isFalse(v ir.Value) bool {
	b, ok := v.(ir.Bool)
	return ok && !bool(b)
}

func arith(op Op, l, r float64) ir.Value {
	var out float64
	switch op {
	case OpAdd:
		out = l + r
	case OpSubtract:
		out = l - r
	case OpMultiply:
		out = l * r
	case OpDivide:
		if r == 0 {
			return ir.Null{}
		}
		out = l / r
	case OpPower:
		out = math.Pow(l, r)
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return ir.Null{}
	}
	return ir.Number(out)
}

func inValue(in, arg ir.Value) ir.Value {
	if ir.IsNull(arg) {
		return ir.Null{}
	}
	switch set := arg.(type) {
	case ir.Set:
		if !set.ElemType.IsRange() {
			return ir.Bool(set.Contains(in))
		}
		for _, r := range set.Elements {
			if ir.RangeContains(r, in) {
				return ir.Bool(true)
			}
		}
		return ir.Bool(false)
	case ir.NumberRange, ir.TimeRange, ir.StringRange:
		if ir.IsNull(in) {
			return ir.Bool(false)
		}
		return ir.Bool(ir.RangeContains(set, in))
	}
	return ir.Bool(ir.Equal(in, arg))
}

func timeOp(a Action, t ir.Time) (ir.Value, error) {
	loc, err := ir.LoadTimezone(a.Timezone)
	if err != nil {
		return nil, err
	}
	switch a.Op {
	case OpTimeFloor:
		f, err := a.Duration.Floor(t.Time, loc)
		if err != nil {
			return nil, err
		}
		return ir.NewTime(f), nil
	case OpTimeBucket:
		f, err := a.Duration.Floor(t.Time, loc)
		if err != nil {
			return nil, err
		}
		return ir.NewTimeRange(f, a.Duration.Shift(f, loc, 1)), nil
	case OpTimeShift:
		return ir.NewTime(a.Duration.Shift(t.Time, loc, a.Step)), nil
	}
	n, err := ir.TimePart(t.Time, loc, a.Part)
	if err != nil {
		return nil, err
	}
	return ir.Number(n), nil
}
