package expr

import (
	"context"

	"github.com/roach88/strata/internal/ir"
)

const maxSimplifyPasses = 64

// Simplify rewrites e to a fixed point of the simplification rules:
// operands first, then chain flattening, no-op removal, merging of adjacent
// filters and limits, constant folding, basis folding and absorption of
// actions into a leading remote source. It never fails; a rule that cannot
// be applied leaves its node unchanged.
func Simplify(e Expression) Expression {
	if e == nil {
		return nil
	}
	for i := 0; i < maxSimplifyPasses; i++ {
		next := simplifyOnce(e)
		if next.Equals(e) {
			return next
		}
		e = next
	}
	return e
}

func simplifyOnce(e Expression) Expression {
	c, ok := e.(*Chain)
	if !ok {
		return e
	}
	base := simplifyOnce(c.Base)
	actions := make([]Action, 0, len(c.Actions))
	for _, a := range c.Actions {
		sa, err := a.WithOperands(func(op Expression) (Expression, error) {
			return simplifyOnce(op), nil
		})
		if err != nil {
			return c
		}
		actions = append(actions, sa)
	}

	if inner, ok := base.(*Chain); ok {
		actions = append(append([]Action{}, inner.Actions...), actions...)
		base = inner.Base
	}

	actions = dropNoOps(base.Type(), actions)
	actions = inlineBasisDatasets(base, actions)
	base, actions = foldConstants(base, actions)
	base, actions = foldBasis(base, actions)
	base, actions = absorb(base, actions)

	if len(actions) == 0 {
		return base
	}
	out, err := NewChain(base, actions...)
	if err != nil {
		return c
	}
	return out
}

// dropNoOps removes actions that return their input unchanged and merges
// adjacent filters and limits.
func dropNoOps(t ir.Type, actions []Action) []Action {
	out := make([]Action, 0, len(actions))
	types := make([]ir.Type, 0, len(actions)+1)
	types = append(types, t)
	for _, a := range actions {
		cur := types[len(types)-1]
		if isNoOp(a, cur) {
			continue
		}
		if n := len(out); n > 0 {
			prev := out[n-1]
			switch {
			case prev.Op == OpFilter && a.Op == OpFilter:
				if both, err := NewChain(prev.Expr, Binary(OpAnd, a.Expr)); err == nil {
					out[n-1] = Filter(both)
					continue
				}
			case prev.Op == OpLimit && a.Op == OpLimit:
				out[n-1] = Limit(min(prev.Limit, a.Limit))
				continue
			case prev.Op == OpNot && a.Op == OpNot:
				out = out[:n-1]
				types = types[:len(types)-1]
				continue
			}
		}
		next, err := a.outputType(cur)
		if err != nil {
			next = ir.TypeUnknown
		}
		out = append(out, a)
		types = append(types, next)
	}
	return out
}

func isNoOp(a Action, in ir.Type) bool {
	lit, ok := a.Expr.(*Literal)
	if !ok {
		return false
	}
	switch a.Op {
	case OpFilter:
		return ir.Truthy(lit.Value)
	case OpAnd:
		return in == ir.TypeBoolean && ir.Truthy(lit.Value)
	case OpOr:
		return in == ir.TypeBoolean && ir.Equal(lit.Value, ir.Bool(false))
	case OpAdd, OpSubtract:
		return in == ir.TypeNumber && ir.Equal(lit.Value, ir.Number(0))
	case OpMultiply, OpDivide, OpPower:
		return in == ir.TypeNumber && ir.Equal(lit.Value, ir.Number(1))
	}
	return false
}

// foldConstants evaluates the longest prefix of actions that needs nothing
// but the literal base.
func foldConstants(base Expression, actions []Action) (Expression, []Action) {
	if _, ok := base.(*Literal); !ok || len(actions) == 0 {
		return base, actions
	}
	n := 0
	for n < len(actions) && closedAction(actions[n]) {
		n++
	}
	for ; n > 0; n-- {
		prefix, err := NewChain(base, actions[:n]...)
		if err != nil {
			continue
		}
		if len(FreeReferences(prefix)) > 0 {
			continue
		}
		v, err := Compute(context.Background(), prefix, NewEnv(nil), nil)
		if err != nil {
			continue
		}
		return NewLiteral(v), actions[n:]
	}
	return base, actions
}

func closedAction(a Action) bool {
	if a.Op == OpCustom {
		return false
	}
	for _, op := range a.Operands() {
		if ContainsExternal(op) {
			return false
		}
	}
	return true
}

// foldBasis turns ply().apply(name, <remote single value>) into a total
// query on that source.
func foldBasis(base Expression, actions []Action) (Expression, []Action) {
	lit, ok := base.(*Literal)
	if !ok || len(actions) == 0 || actions[0].Op != OpApply {
		return base, actions
	}
	ds, ok := lit.Value.(*ir.Dataset)
	if !ok || !IsBasis(ds) {
		return base, actions
	}
	ext, ok := actions[0].Expr.(*ExternalExpr)
	if !ok || ext.Type() == ir.TypeDataset {
		return base, actions
	}
	total, ok := ext.Source.AsTotal(actions[0].Name)
	if !ok {
		return base, actions
	}
	return &ExternalExpr{Source: total}, actions[1:]
}

// inlineBasisDatasets replaces later references to a remote dataset applied
// onto the basis row with the source itself, so that the actions using it
// can be absorbed.
func inlineBasisDatasets(base Expression, actions []Action) []Action {
	lit, ok := base.(*Literal)
	if !ok {
		return actions
	}
	if ds, ok := lit.Value.(*ir.Dataset); !ok || !IsBasis(ds) {
		return actions
	}
	out := append([]Action{}, actions...)
	for i, a := range out {
		if a.Op != OpApply {
			continue
		}
		ext, ok := a.Expr.(*ExternalExpr)
		if !ok || ext.Type() != ir.TypeDataset {
			continue
		}
		for j := i + 1; j < len(out); j++ {
			if out[j].Op == OpApply && out[j].Name == a.Name {
				break
			}
			if !out[j].Op.RowOperand() && out[j].Op != OpSplit {
				continue
			}
			na, err := out[j].WithOperands(func(op Expression) (Expression, error) {
				return Substitute(op, func(r *Ref, depth int) Expression {
					if r.Name == a.Name && r.Nest == depth {
						return ext
					}
					return nil
				})
			})
			if err == nil {
				out[j] = na
			}
		}
	}
	return out
}

// absorb offers actions to a leading remote source in order. The first
// rejected action and everything after it stay local.
func absorb(base Expression, actions []Action) (Expression, []Action) {
	ext, ok := base.(*ExternalExpr)
	if !ok {
		return base, actions
	}
	src := ext.Source
	n := 0
	for ; n < len(actions); n++ {
		next, ok := src.Absorb(actions[n])
		if !ok {
			break
		}
		src = next
	}
	if n == 0 {
		return base, actions
	}
	return &ExternalExpr{Source: src}, actions[n:]
}
