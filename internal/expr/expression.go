package expr

import (
	"strconv"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// Expression is a sealed interface for nodes of the query algebra.
// Only *Literal, *Ref, *Chain and *ExternalExpr implement it.
//
// Expressions are immutable. Every transformation (resolution,
// simplification, builder calls) returns a new tree.
type Expression interface {
	// Type returns the output type; TypeUnknown until references resolve.
	Type() ir.Type
	// String returns the canonical textual form.
	String() string
	// Equals reports structural equality.
	Equals(other Expression) bool

	expression() // Sealed
}

// Source is a remote relation that can absorb actions. It is implemented by
// *external.External; expr only needs the digestion contract.
type Source interface {
	// Type is DATASET, or the scalar type of a single-value query.
	Type() ir.Type
	String() string
	Equals(other Source) bool
	// Attributes describes the rows the source produces.
	Attributes() ir.Attributes
	// Absorb returns the source with the action folded in, or false when the
	// source cannot express the action. It never mutates the receiver.
	Absorb(a Action) (Source, bool)
	// AsTotal turns a single-value source into a one-row total query that
	// stores its value under name.
	AsTotal(name string) (Source, bool)
}

// RowBinder is implemented by sources whose result rows stand for groups of
// underlying data (splits). RowBindings returns, for one result row, the
// expressions that the row's nested data names are bound to.
type RowBinder interface {
	RowBindings(row ir.Datum) map[string]Expression
}

// Literal is a constant value.
type Literal struct {
	Value ir.Value
}

// NewLiteral wraps v; a nil value becomes NULL.
func NewLiteral(v ir.Value) *Literal {
	if v == nil {
		v = ir.Null{}
	}
	return &Literal{Value: v}
}

func (*Literal) expression()     {}
func (l *Literal) Type() ir.Type { return l.Value.Type() }

func (l *Literal) String() string {
	return literalString(l.Value)
}

func literalString(v ir.Value) string {
	switch x := v.(type) {
	case ir.String:
		return strconv.Quote(string(x))
	case ir.Time:
		return "t" + strconv.Quote(x.String())
	case ir.Set:
		parts := make([]string, len(x.Elements))
		for i, e := range x.Elements {
			parts[i] = literalString(e)
		}
		return "{" + strings.Join(parts, ",") + "}"
	case *ir.Dataset:
		if IsBasis(x) {
			return "ply()"
		}
		return x.String()
	}
	return v.String()
}

func (l *Literal) Equals(other Expression) bool {
	o, ok := other.(*Literal)
	return ok && ir.Equal(l.Value, o.Value)
}

// IsBasis reports whether ds is the single empty row that totals start from.
func IsBasis(ds *ir.Dataset) bool {
	return ds.Len() == 1 && len(ds.Data[0]) == 0
}

// Ref is a reference to a named value Nest scopes outward.
type Ref struct {
	Name string
	Nest int
	// T is the resolved type; TypeUnknown before resolution.
	T ir.Type
}

// NewRef returns an unresolved reference. Leading '^' characters in name
// each add one level of nesting, so NewRef("^cut") is $cut one scope out.
func NewRef(name string) *Ref {
	nest := 0
	for strings.HasPrefix(name, "^") {
		name = name[1:]
		nest++
	}
	return &Ref{Name: name, Nest: nest}
}

func (*Ref) expression()     {}
func (r *Ref) Type() ir.Type { return r.T }

func (r *Ref) String() string {
	return "$" + strings.Repeat("^", r.Nest) + r.Name
}

func (r *Ref) Equals(other Expression) bool {
	o, ok := other.(*Ref)
	return ok && r.Name == o.Name && r.Nest == o.Nest && r.T == o.T
}

// ExternalExpr places a remote Source in an expression tree.
type ExternalExpr struct {
	Source Source
}

func (*ExternalExpr) expression()     {}
func (e *ExternalExpr) Type() ir.Type { return e.Source.Type() }
func (e *ExternalExpr) String() string {
	return e.Source.String()
}

func (e *ExternalExpr) Equals(other Expression) bool {
	o, ok := other.(*ExternalExpr)
	return ok && e.Source.Equals(o.Source)
}

// Chain applies an ordered sequence of actions to a base expression.
type Chain struct {
	Base    Expression
	Actions []Action
	t       ir.Type
}

// NewChain builds a chain and computes its type. It fails with a TYPE_ERROR
// when an action does not accept its input or operand types.
func NewChain(base Expression, actions ...Action) (*Chain, error) {
	t := base.Type()
	for _, a := range actions {
		out, err := a.outputType(t)
		if err != nil {
			return nil, err
		}
		t = out
	}
	return &Chain{Base: base, Actions: actions, t: t}, nil
}

func (*Chain) expression()     {}
func (c *Chain) Type() ir.Type { return c.t }

func (c *Chain) String() string {
	var b strings.Builder
	b.WriteString(c.Base.String())
	for _, a := range c.Actions {
		b.WriteByte('.')
		b.WriteString(a.String())
	}
	return b.String()
}

func (c *Chain) Equals(other Expression) bool {
	o, ok := other.(*Chain)
	if !ok || c.t != o.t || len(c.Actions) != len(o.Actions) || !c.Base.Equals(o.Base) {
		return false
	}
	for i := range c.Actions {
		if !c.Actions[i].Equals(o.Actions[i]) {
			return false
		}
	}
	return true
}

// Last returns the final action of the chain.
func (c *Chain) Last() Action {
	return c.Actions[len(c.Actions)-1]
}

// equalExpr compares two possibly-nil expressions.
func equalExpr(a, b Expression) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equals(b)
}

// Walk calls fn for e and every expression nested in it, depth first, with
// the number of row frames pushed between the root and the node. Walk stops
// descending into a node when fn returns false.
func Walk(e Expression, fn func(e Expression, depth int) bool) {
	walk(e, 0, fn)
}

func walk(e Expression, depth int, fn func(Expression, int) bool) {
	if e == nil || !fn(e, depth) {
		return
	}
	c, ok := e.(*Chain)
	if !ok {
		return
	}
	walk(c.Base, depth, fn)
	for _, a := range c.Actions {
		d := depth
		if a.Op.RowOperand() || a.Op == OpSplit {
			d++
		}
		if a.Expr != nil {
			walk(a.Expr, d, fn)
		}
		for _, k := range a.Splits {
			walk(k.Expr, d, fn)
		}
	}
}

// FreeReferences returns the references that escape e, with their nest
// relative to the scope e is evaluated in. Each distinct reference appears
// once, in first-occurrence order.
func FreeReferences(e Expression) []*Ref {
	var out []*Ref
	seen := map[string]bool{}
	Walk(e, func(x Expression, depth int) bool {
		r, ok := x.(*Ref)
		if !ok || r.Nest < depth {
			return true
		}
		free := &Ref{Name: r.Name, Nest: r.Nest - depth, T: r.T}
		if k := free.String(); !seen[k] {
			seen[k] = true
			out = append(out, free)
		}
		return true
	})
	return out
}

// ContainsExternal reports whether any ExternalExpr occurs in e.
func ContainsExternal(e Expression) bool {
	found := false
	Walk(e, func(x Expression, _ int) bool {
		if _, ok := x.(*ExternalExpr); ok {
			found = true
		}
		return !found
	})
	return found
}

// Externals returns the ExternalExpr nodes of e in depth-first order.
func Externals(e Expression) []*ExternalExpr {
	var out []*ExternalExpr
	Walk(e, func(x Expression, _ int) bool {
		if ext, ok := x.(*ExternalExpr); ok {
			out = append(out, ext)
		}
		return true
	})
	return out
}
