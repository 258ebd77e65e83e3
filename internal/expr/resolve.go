package expr

import (
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// Resolve type-checks e against the type context s and returns a copy in
// which every Ref carries its resolved type.
//
// Entering a row operand of a DATASET-typed chain step pushes a frame seeded
// with that dataset's attributes. A Ref with nest k walks exactly k frames
// outward and must find its name in that frame. Resolution fails on the
// first unresolved reference, scope overflow or type mismatch; each error
// names the offending reference or action.
func Resolve(e Expression, s *Scope) (Expression, error) {
	out, _, err := resolve(e, s)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resolve returns the resolved expression and, when it is a dataset, the
// attributes of its rows.
func resolve(e Expression, s *Scope) (Expression, ir.Attributes, error) {
	switch x := e.(type) {
	case *Literal:
		if ds, ok := x.Value.(*ir.Dataset); ok {
			return x, ds.Attributes, nil
		}
		return x, nil, nil
	case *Ref:
		attr, err := s.Lookup(x.Name, x.Nest)
		if err != nil {
			return nil, nil, err
		}
		if x.T.Known() {
			if _, ok := ir.Unify(x.T, attr.Type); !ok {
				return nil, nil, ir.NewTypeError(x.String(), "declared %s but resolves to %s", x.T, attr.Type)
			}
		}
		return &Ref{Name: x.Name, Nest: x.Nest, T: attr.Type}, attr.Nested, nil
	case *ExternalExpr:
		return x, x.Source.Attributes(), nil
	case *Chain:
		return resolveChain(x, s)
	case nil:
		return nil, nil, fmt.Errorf("resolve: nil expression")
	}
	return nil, nil, fmt.Errorf("resolve: unknown expression %T", e)
}

func resolveChain(c *Chain, s *Scope) (Expression, ir.Attributes, error) {
	base, attrs, err := resolve(c.Base, s)
	if err != nil {
		return nil, nil, err
	}
	t := base.Type()
	actions := make([]Action, len(c.Actions))
	for i, a := range c.Actions {
		rows := s
		if t == ir.TypeDataset {
			rows = s.Push(attrs)
		}
		var applied ir.Attributes
		ra, err := a.WithOperands(func(op Expression) (Expression, error) {
			scope := s
			if a.Op.RowOperand() || a.Op == OpSplit {
				scope = rows
			}
			out, nested, err := resolve(op, scope)
			if err != nil {
				return nil, err
			}
			applied = nested
			return out, nil
		})
		if err != nil {
			return nil, nil, err
		}
		out, err := ra.outputType(t)
		if err != nil {
			return nil, nil, err
		}

		switch ra.Op {
		case OpApply:
			attr := ir.Attribute{Name: ra.Name, Type: ra.Expr.Type()}
			if attr.Type == ir.TypeDataset {
				attr.Nested = applied
			}
			attrs = attrs.With(attr)
		case OpSplit:
			next := make(ir.Attributes, 0, len(ra.Splits)+1)
			for _, k := range ra.Splits {
				next = append(next, ir.Attribute{Name: k.Name, Type: k.Expr.Type()})
			}
			attrs = append(next, ir.Attribute{Name: ra.DataName, Type: ir.TypeDataset, Nested: attrs})
		case OpSelect:
			var next ir.Attributes
			for _, n := range ra.Names {
				attr, ok := attrs.Find(n)
				if !ok {
					return nil, nil, ir.NewUnresolvedError(ra.String(), "select of unknown column %q", n)
				}
				next = append(next, attr)
			}
			attrs = next
		case OpJoin:
			for _, a := range applied {
				attrs = attrs.With(a)
			}
		case OpFilter, OpSort, OpLimit:
		default:
			attrs = nil
		}
		actions[i] = ra
		t = out
	}
	return &Chain{Base: base, Actions: actions, t: t}, attrs, nil
}

// Substitute rewrites the references of e. fn receives each Ref together
// with the number of row frames between the root of e and the reference,
// and returns a replacement or nil to keep the reference.
func Substitute(e Expression, fn func(r *Ref, depth int) Expression) (Expression, error) {
	return substitute(e, 0, fn)
}

func substitute(e Expression, depth int, fn func(*Ref, int) Expression) (Expression, error) {
	switch x := e.(type) {
	case *Ref:
		if r := fn(x, depth); r != nil {
			return r, nil
		}
		return x, nil
	case *Chain:
		base, err := substitute(x.Base, depth, fn)
		if err != nil {
			return nil, err
		}
		actions := make([]Action, len(x.Actions))
		for i, a := range x.Actions {
			d := depth
			if a.Op.RowOperand() || a.Op == OpSplit {
				d++
			}
			na, err := a.WithOperands(func(op Expression) (Expression, error) {
				return substitute(op, d, fn)
			})
			if err != nil {
				return nil, err
			}
			actions[i] = na
		}
		c, err := NewChain(base, actions...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return e, nil
}

// ResolveValues substitutes references that point into the materialised
// value context env with the bound values: row values become Literals and
// bound expressions (Externals) are inlined. References that env does not
// cover are left in place.
func ResolveValues(e Expression, env *Env) (Expression, error) {
	return Substitute(e, func(r *Ref, depth int) Expression {
		if r.Nest < depth {
			return nil
		}
		frame := env.Up(r.Nest - depth)
		if frame == nil {
			return nil
		}
		v, x, ok := frame.lookup(r.Name)
		switch {
		case !ok:
			return nil
		case x != nil:
			return x
		}
		return NewLiteral(v)
	})
}

// ShiftNest adds delta to the nest of every reference escaping e, so that e
// can be moved delta frames deeper.
func ShiftNest(e Expression, delta int) (Expression, error) {
	if delta == 0 {
		return e, nil
	}
	return Substitute(e, func(r *Ref, depth int) Expression {
		if r.Nest < depth {
			return nil
		}
		return &Ref{Name: r.Name, Nest: r.Nest + delta, T: r.T}
	})
}
