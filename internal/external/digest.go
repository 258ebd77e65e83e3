package external

import (
	"fmt"
	"slices"

	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
)

// Absorb implements expr.Source. It routes a to the matching capability
// check and returns the evolved External when the check passes. The
// receiver is never modified.
func (e *External) Absorb(a expr.Action) (expr.Source, bool) {
	next, err := e.digest(a)
	if err != nil {
		return nil, false
	}
	return next, true
}

func (e *External) digest(a expr.Action) (*External, error) {
	var next *External
	var err error
	switch {
	case a.Op == expr.OpFilter && e.mode == ModeSplit:
		next, err = e.absorbHaving(a)
	case a.Op == expr.OpFilter:
		next, err = e.absorbFilter(a)
	case a.Op == expr.OpSplit:
		next, err = e.absorbSplit(a)
	case a.Op == expr.OpApply:
		next, err = e.absorbApply(a)
	case a.Op == expr.OpSort:
		next, err = e.absorbSort(a)
	case a.Op == expr.OpLimit:
		next, err = e.absorbLimit(a)
	case a.Op == expr.OpSelect:
		next, err = e.absorbSelect(a)
	case a.Op.IsAggregate():
		next, err = e.absorbAggregate(a)
	case e.mode == ModeValue:
		next, err = e.absorbValueStep(a)
	default:
		return nil, ir.NewUnsupportedError(a.String(), "%s cannot absorb %s", e.mode, a.Op)
	}
	if err != nil {
		return nil, err
	}
	// The evolved state must still render for the backend.
	if _, _, err := next.backend.query(next); err != nil {
		return nil, err
	}
	return next, nil
}

// CanHandleFilter reports whether a filter (a row filter, or a having
// filter in split mode) can be absorbed.
func (e *External) CanHandleFilter(a expr.Action) bool {
	return a.Op == expr.OpFilter && e.can(a)
}

// CanHandleTotal reports whether the External can become a one-row total.
func (e *External) CanHandleTotal() bool {
	return e.mode == ModeValue
}

// CanHandleSplit reports whether a split can be absorbed.
func (e *External) CanHandleSplit(a expr.Action) bool {
	return a.Op == expr.OpSplit && e.can(a)
}

// CanHandleApply reports whether an apply can be absorbed.
func (e *External) CanHandleApply(a expr.Action) bool {
	return a.Op == expr.OpApply && e.can(a)
}

// CanHandleSort reports whether a sort can be absorbed.
func (e *External) CanHandleSort(a expr.Action) bool {
	return a.Op == expr.OpSort && e.can(a)
}

// CanHandleLimit reports whether a limit can be absorbed.
func (e *External) CanHandleLimit(a expr.Action) bool {
	return a.Op == expr.OpLimit && e.can(a)
}

// CanHandleHavingFilter reports whether a filter on split results can be
// absorbed.
func (e *External) CanHandleHavingFilter(a expr.Action) bool {
	return a.Op == expr.OpFilter && e.mode == ModeSplit && e.can(a)
}

func (e *External) can(a expr.Action) bool {
	_, err := e.digest(a)
	return err == nil
}

func (e *External) absorbFilter(a expr.Action) (*External, error) {
	if e.mode != ModeRaw {
		return nil, ir.NewUnsupportedError(a.String(), "filter on a %s query", e.mode)
	}
	if e.limit != nil {
		return nil, ir.NewUnsupportedError(a.String(), "filter after limit")
	}
	pred, err := e.rowExpression(a.Expr)
	if err != nil {
		return nil, err
	}
	out := e.clone()
	out.filter = and(e.filter, pred)
	return out, nil
}

func (e *External) absorbSplit(a expr.Action) (*External, error) {
	if e.mode != ModeRaw {
		return nil, ir.NewUnsupportedError(a.String(), "split of a %s query", e.mode)
	}
	if e.limit != nil || e.sort != nil {
		return nil, ir.NewUnsupportedError(a.String(), "split after sort or limit")
	}
	keys := make([]expr.SplitKey, len(a.Splits))
	for i, k := range a.Splits {
		ke, err := e.rowExpression(k.Expr)
		if err != nil {
			return nil, err
		}
		if t := ke.Type(); t == ir.TypeDataset || t.IsSet() {
			return nil, ir.NewUnsupportedError(k.Expr.String(), "split on %s", t)
		}
		if r, ok := ke.(*expr.Ref); ok {
			if attr, found := e.desc.Attributes.Find(r.Name); found && attr.Unsplitable {
				return nil, ir.NewUnsupportedError(r.String(), "attribute %q is not splitable", r.Name)
			}
		}
		keys[i] = expr.SplitKey{Name: k.Name, Expr: ke}
	}
	out := e.clone()
	out.mode = ModeSplit
	out.splits = keys
	out.dataName = a.DataName
	return out, nil
}

func (e *External) absorbAggregate(a expr.Action) (*External, error) {
	if e.mode != ModeRaw {
		return nil, ir.NewUnsupportedError(a.String(), "aggregate of a %s query", e.mode)
	}
	if e.limit != nil {
		return nil, ir.NewUnsupportedError(a.String(), "aggregate after limit")
	}
	if a.Op == expr.OpGroup {
		return nil, ir.NewUnsupportedError(a.String(), "group labels are collected locally")
	}
	if a.Op == expr.OpCustom {
		if _, ok := e.desc.CustomAggregations[a.Custom]; !ok {
			return nil, ir.NewUnsupportedError(a.String(), "unknown custom aggregation %q", a.Custom)
		}
	}
	agg, err := a.WithOperands(e.rowExpression)
	if err != nil {
		return nil, err
	}
	value, err := expr.NewChain(dataReference(), agg)
	if err != nil {
		return nil, err
	}
	out := e.clone()
	out.mode = ModeValue
	out.value = value
	out.sort = nil
	return out, nil
}

// absorbValueStep extends a value aggregate with a scalar operation whose
// operand is a literal or another value on the same relation.
func (e *External) absorbValueStep(a expr.Action) (*External, error) {
	step, err := a.WithOperands(func(op expr.Expression) (expr.Expression, error) {
		return e.aggregateForm(op, nil)
	})
	if err != nil {
		return nil, err
	}
	value, err := expr.NewChain(e.value, step)
	if err != nil {
		return nil, err
	}
	out := e.clone()
	out.value = expr.Simplify(value)
	return out, nil
}

func (e *External) absorbApply(a expr.Action) (*External, error) {
	switch e.mode {
	case ModeRaw:
		return e.absorbDerived(a)
	case ModeTotal:
		return e.absorbTotalApply(a)
	case ModeSplit:
		return e.absorbSplitApply(a)
	}
	return nil, ir.NewUnsupportedError(a.String(), "apply on a %s query", e.mode)
}

// absorbDerived adds a computed column to a raw selection.
func (e *External) absorbDerived(a expr.Action) (*External, error) {
	x, err := e.rowExpression(a.Expr)
	if err != nil {
		return nil, err
	}
	out := e.clone()
	out.derived = slices.DeleteFunc(out.derived, func(d Apply) bool { return d.Name == a.Name })
	out.derived = append(out.derived, Apply{Name: a.Name, Expr: x})
	if out.selected != nil && !slices.Contains(out.selected, a.Name) {
		out.selected = append(out.selected, a.Name)
	}
	return out, nil
}

func (e *External) absorbTotalApply(a expr.Action) (*External, error) {
	x, err := e.aggregateForm(a.Expr, e.applies)
	if err != nil {
		return nil, err
	}
	if x.Type() == ir.TypeDataset {
		return nil, ir.NewUnsupportedError(a.String(), "dataset apply on a total")
	}
	out := e.clone()
	out.applies = withApply(out.applies, Apply{Name: a.Name, Expr: x})
	return out, nil
}

// absorbSplitApply adds a per-group aggregate. The expression may combine
// aggregates of the group's rows ($<dataName>), literals, earlier applies and
// split keys; anything referring outside the group stays local.
func (e *External) absorbSplitApply(a expr.Action) (*External, error) {
	if a.Expr.Type() == ir.TypeDataset {
		return nil, ir.NewUnsupportedError(a.String(), "nested dataset applies are computed per group")
	}
	x, err := e.groupExpression(a.Expr)
	if err != nil {
		return nil, err
	}
	if !queryir.IsAggregate(x, e.dataName) && len(expr.FreeReferences(x)) > 0 {
		return nil, ir.NewUnsupportedError(a.String(), "apply is neither an aggregate nor a constant")
	}
	if _, ok := e.findSplit(a.Name); ok {
		return nil, ir.NewUnsupportedError(a.String(), "apply redefines split key %q", a.Name)
	}
	if e.outputUsed(a.Name) {
		return nil, ir.NewUnsupportedError(a.String(), "apply redefines %q after a filter or sort on it", a.Name)
	}
	out := e.clone()
	out.applies = withApply(out.applies, Apply{Name: a.Name, Expr: x})
	return out, nil
}

func (e *External) absorbHaving(a expr.Action) (*External, error) {
	if e.limit != nil {
		return nil, ir.NewUnsupportedError(a.String(), "filter after limit")
	}
	if err := e.outputExpression(a.Expr); err != nil {
		return nil, err
	}
	out := e.clone()
	out.having = and(e.having, a.Expr)
	return out, nil
}

func (e *External) absorbSort(a expr.Action) (*External, error) {
	if e.sort != nil || e.limit != nil {
		return nil, ir.NewUnsupportedError(a.String(), "sort after sort or limit")
	}
	var key expr.Expression
	switch e.mode {
	case ModeRaw:
		x, err := e.rowExpression(a.Expr)
		if err != nil {
			return nil, err
		}
		key = x
	case ModeSplit:
		r, ok := a.Expr.(*expr.Ref)
		if !ok || r.Nest != 0 || !slices.Contains(e.outputNames(), r.Name) {
			return nil, ir.NewUnsupportedError(a.String(), "split results sort on an output column")
		}
		key = r
	default:
		return nil, ir.NewUnsupportedError(a.String(), "sort of a %s query", e.mode)
	}
	out := e.clone()
	out.sort = &SortKey{Expr: key, Direction: a.Direction}
	return out, nil
}

func (e *External) absorbLimit(a expr.Action) (*External, error) {
	if e.mode != ModeRaw && e.mode != ModeSplit {
		return nil, ir.NewUnsupportedError(a.String(), "limit of a %s query", e.mode)
	}
	n := a.Limit
	if e.limit != nil {
		n = min(n, *e.limit)
	}
	out := e.clone()
	out.limit = &n
	return out, nil
}

func (e *External) absorbSelect(a expr.Action) (*External, error) {
	if e.mode != ModeRaw {
		return nil, ir.NewUnsupportedError(a.String(), "select on a %s query", e.mode)
	}
	attrs := e.rawAttributes()
	for _, n := range a.Names {
		if _, ok := attrs.Find(n); !ok {
			return nil, ir.NewUnresolvedError(a.String(), "select of unknown column %q", n)
		}
	}
	out := e.clone()
	out.selected = slices.Clone(a.Names)
	return out, nil
}

// outputUsed reports whether the absorbed having filter or sort reads the
// output column name. Those were checked against its current definition.
func (e *External) outputUsed(name string) bool {
	if e.sort != nil {
		if r, ok := e.sort.Expr.(*expr.Ref); ok && r.Nest == 0 && r.Name == name {
			return true
		}
	}
	if e.having != nil {
		for _, r := range expr.FreeReferences(e.having) {
			if r.Nest == 0 && r.Name == name {
				return true
			}
		}
	}
	return false
}

func withApply(applies []Apply, a Apply) []Apply {
	for i := range applies {
		if applies[i].Name == a.Name {
			applies[i] = a
			return applies
		}
	}
	return append(applies, a)
}

func dataReference() *expr.Ref {
	return &expr.Ref{Name: dataRef, T: ir.TypeDataset}
}

// rowExpression checks that x is computed from one raw row (columns and
// derived columns at nest 0, no aggregates, no other sources) and inlines
// derived columns.
func (e *External) rowExpression(x expr.Expression) (expr.Expression, error) {
	if x == nil {
		return nil, nil
	}
	derived := map[string]expr.Expression{}
	for _, d := range e.derived {
		derived[d.Name] = d.Expr
	}
	inlined, err := expr.Substitute(x, func(r *expr.Ref, depth int) expr.Expression {
		if depth == 0 && r.Nest == 0 {
			return derived[r.Name]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	attrs := e.rawAttributes()
	var problem error
	expr.Walk(inlined, func(n expr.Expression, depth int) bool {
		switch x := n.(type) {
		case *expr.ExternalExpr:
			problem = ir.NewUnsupportedError(x.String(), "expression uses another source")
		case *expr.Ref:
			if x.Nest != 0 || depth != 0 {
				problem = ir.NewUnsupportedError(x.String(), "reference outside the row")
			} else if _, ok := attrs.Find(x.Name); !ok {
				problem = ir.NewUnresolvedError(x.String(), "no column %q in %s", x.Name, e.desc.Source)
			}
		case *expr.Chain:
			for _, a := range x.Actions {
				if a.Op.IsDatasetOp() || a.Op.IsAggregate() {
					problem = ir.NewUnsupportedError(a.String(), "dataset operation in a row expression")
				}
			}
		}
		return problem == nil
	})
	if problem != nil {
		return nil, problem
	}
	return inlined, nil
}

// aggregateForm rewrites x as an aggregate over $__data: values of the
// same relation are adopted and references to earlier applies are inlined.
func (e *External) aggregateForm(x expr.Expression, applies []Apply) (expr.Expression, error) {
	var problem error
	out, err := substituteAll(x, func(n expr.Expression, depth int) expr.Expression {
		switch v := n.(type) {
		case *expr.ExternalExpr:
			o, ok := v.Source.(*External)
			if !ok {
				problem = ir.NewUnsupportedError(v.String(), "unknown source")
				return nil
			}
			adopted, err := e.adopt(o)
			if err != nil {
				problem = err
				return nil
			}
			return adopted
		case *expr.Ref:
			if depth == 0 && v.Nest == 0 {
				for _, a := range applies {
					if a.Name == v.Name {
						return a.Expr
					}
				}
			}
			if v.Nest >= depth {
				problem = ir.NewUnsupportedError(v.String(), "free reference in a total")
			}
		}
		return nil
	})
	if problem != nil {
		return nil, problem
	}
	if err != nil {
		return nil, err
	}
	return expr.Simplify(out), nil
}

// adopt returns the aggregate of a value External o as an expression of
// e's query. Values under a different filter become filtered aggregates
// when e itself carries no filter beyond the base filter.
func (e *External) adopt(o *External) (expr.Expression, error) {
	if o.mode != ModeValue || !e.sameRelation(o) {
		return nil, ir.NewUnsupportedError(o.String(), "not a value of %s", e.desc.Source)
	}
	if equalOrNil(o.filter, e.filter) {
		return o.value, nil
	}
	if e.userFiltered() {
		return nil, ir.NewUnsupportedError(o.String(), "value filtered differently from %s", e.String())
	}
	filtered, err := expr.Substitute(o.value, func(r *expr.Ref, depth int) expr.Expression {
		if r.Name != dataRef || r.Nest != depth {
			return nil
		}
		c, err := expr.NewChain(r, expr.Filter(o.filter))
		if err != nil {
			return nil
		}
		return c
	})
	if err != nil {
		return nil, err
	}
	return expr.Simplify(filtered), nil
}

// groupExpression rewrites a split apply expression: earlier applies and
// split keys are inlined, derived columns are inlined inside aggregates,
// and anything else that escapes the group is rejected.
func (e *External) groupExpression(x expr.Expression) (expr.Expression, error) {
	derived := map[string]expr.Expression{}
	for _, d := range e.derived {
		derived[d.Name] = d.Expr
	}
	attrs := e.rawAttributes()
	bases := map[*expr.Ref]bool{}
	var problem error
	fail := func(err error) expr.Expression {
		if problem == nil {
			problem = err
		}
		return nil
	}

	expr.Walk(x, func(n expr.Expression, depth int) bool {
		if c, ok := n.(*expr.Chain); ok && depth == 0 {
			if r, ok := c.Base.(*expr.Ref); ok && r.Name == e.dataName && r.Nest == 0 {
				bases[r] = true
			}
		}
		return true
	})

	out, err := substituteAll(x, func(n expr.Expression, depth int) expr.Expression {
		switch v := n.(type) {
		case *expr.ExternalExpr:
			return fail(ir.NewUnsupportedError(v.String(), "apply uses another source"))
		case *expr.Ref:
			switch {
			case depth == 0 && v.Nest == 0 && v.Name == e.dataName:
				if !bases[v] {
					return fail(ir.NewUnsupportedError(v.String(), "group rows are only usable through an aggregate"))
				}
			case depth == 0 && v.Nest == 0:
				if a, i := e.findApply(v.Name); i >= 0 {
					return a.Expr
				}
				if k, ok := e.findSplit(v.Name); ok {
					return k.Expr
				}
				return fail(ir.NewUnresolvedError(v.String(), "no output column %q", v.Name))
			case v.Nest == 0:
				if d, ok := derived[v.Name]; ok {
					return d
				}
				if _, ok := attrs.Find(v.Name); !ok {
					return fail(ir.NewUnresolvedError(v.String(), "no column %q in %s", v.Name, e.desc.Source))
				}
			default:
				return fail(ir.NewUnsupportedError(v.String(), "reference outside the group"))
			}
		}
		return nil
	})
	if problem != nil {
		return nil, problem
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// outputExpression checks that x only reads split output columns.
func (e *External) outputExpression(x expr.Expression) error {
	names := e.outputNames()
	var problem error
	expr.Walk(x, func(n expr.Expression, depth int) bool {
		switch v := n.(type) {
		case *expr.ExternalExpr:
			problem = ir.NewUnsupportedError(v.String(), "filter uses another source")
		case *expr.Ref:
			if v.Nest != 0 || depth != 0 || !slices.Contains(names, v.Name) {
				problem = ir.NewUnsupportedError(v.String(), "filter on split results must use output columns")
			}
		case *expr.Chain:
			for _, a := range v.Actions {
				if a.Op.IsDatasetOp() || a.Op.IsAggregate() {
					problem = ir.NewUnsupportedError(a.String(), "dataset operation in a having filter")
				}
			}
		}
		return problem == nil
	})
	return problem
}

// substituteAll rewrites the leaves of x (references and sources) with fn,
// tracking row depth like expr.Substitute.
func substituteAll(x expr.Expression, fn func(n expr.Expression, depth int) expr.Expression) (expr.Expression, error) {
	return substituteAt(x, 0, fn)
}

func substituteAt(x expr.Expression, depth int, fn func(expr.Expression, int) expr.Expression) (expr.Expression, error) {
	switch v := x.(type) {
	case *expr.Ref, *expr.ExternalExpr:
		if r := fn(v, depth); r != nil {
			return r, nil
		}
		return v, nil
	case *expr.Chain:
		base, err := substituteAt(v.Base, depth, fn)
		if err != nil {
			return nil, err
		}
		actions := make([]expr.Action, len(v.Actions))
		for i, a := range v.Actions {
			d := depth
			if a.Op.RowOperand() || a.Op == expr.OpSplit {
				d++
			}
			na, err := a.WithOperands(func(op expr.Expression) (expr.Expression, error) {
				return substituteAt(op, d, fn)
			})
			if err != nil {
				return nil, err
			}
			actions[i] = na
		}
		return expr.NewChain(base, actions...)
	case nil:
		return nil, fmt.Errorf("nil expression")
	}
	return x, nil
}
