package external

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
)

// Mode is the shape of the query an External will issue.
type Mode string

const (
	// ModeRaw selects filtered rows.
	ModeRaw Mode = "raw"
	// ModeValue computes one scalar aggregate.
	ModeValue Mode = "value"
	// ModeTotal computes named aggregates over the whole relation (one row).
	ModeTotal Mode = "total"
	// ModeSplit groups by keys and computes aggregates per group.
	ModeSplit Mode = "split"
)

// dataRef names the relation's rows inside value and total aggregates.
const dataRef = "__data"

// Apply is one named output column.
type Apply struct {
	Name string
	Expr expr.Expression
}

// SortKey orders a raw selection or the groups of a split.
type SortKey struct {
	Expr      expr.Expression
	Direction ir.Direction
}

// External is a remote relation plus the query state absorbed into it so
// far. Externals are immutable: every absorbed action yields a new
// External. An External starts in raw mode and only moves forward:
// raw to value to total, or raw to split.
type External struct {
	desc    SourceDescription
	backend backend
	mode    Mode

	// filter is the accumulated row filter, including the base filter.
	filter expr.Expression

	// derived holds raw-mode row expressions and selected the projected
	// columns (nil is every column).
	derived  []Apply
	selected []string

	// value is the value-mode aggregate, a chain over $__data.
	value expr.Expression

	splits   []expr.SplitKey
	dataName string

	// applies are the total or split output columns. Aggregates range over
	// $__data in total mode and over $<dataName> in split mode.
	applies []Apply

	having expr.Expression
	sort   *SortKey
	limit  *int
}

// New creates a raw External for desc.
func New(desc SourceDescription) (*External, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	b, err := backendFor(desc)
	if err != nil {
		return nil, err
	}
	return &External{desc: desc, backend: b, mode: ModeRaw, filter: desc.Filter}, nil
}

// MustNew is like New but panics on error.
// Use only in tests or with constant descriptions.
func MustNew(desc SourceDescription) *External {
	e, err := New(desc)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *External) clone() *External {
	out := *e
	out.derived = slices.Clone(e.derived)
	out.selected = slices.Clone(e.selected)
	out.splits = slices.Clone(e.splits)
	out.applies = slices.Clone(e.applies)
	return &out
}

// Description returns the source description.
func (e *External) Description() SourceDescription { return e.desc }

// Engine returns the backend engine name.
func (e *External) Engine() string { return e.desc.Engine }

// Mode returns the current query shape.
func (e *External) Mode() Mode { return e.mode }

// Filter returns the accumulated row filter, or nil.
func (e *External) Filter() expr.Expression { return e.filter }

// Splits returns the split keys.
func (e *External) Splits() []expr.SplitKey { return slices.Clone(e.splits) }

// DataName returns the name of each group's rows in split mode.
func (e *External) DataName() string { return e.dataName }

// Applies returns the total or split output columns.
func (e *External) Applies() []Apply { return slices.Clone(e.applies) }

// ValueExpression returns the value-mode aggregate.
func (e *External) ValueExpression() expr.Expression { return e.value }

// Having returns the post-aggregation filter, or nil.
func (e *External) Having() expr.Expression { return e.having }

// Sort returns the sort key, or nil.
func (e *External) Sort() *SortKey { return e.sort }

// Limit returns the row limit, or -1 when unlimited.
func (e *External) Limit() int {
	if e.limit == nil {
		return -1
	}
	return *e.limit
}

// Type implements expr.Source.
func (e *External) Type() ir.Type {
	if e.mode != ModeValue {
		return ir.TypeDataset
	}
	if t := e.value.Type(); t.Known() && t != ir.TypeNull {
		return t
	}
	return ir.TypeNumber
}

// Attributes implements expr.Source: the columns of the rows the External
// produces.
func (e *External) Attributes() ir.Attributes {
	switch e.mode {
	case ModeValue:
		return nil
	case ModeTotal:
		return applyAttributes(e.applies)
	case ModeSplit:
		attrs := make(ir.Attributes, 0, len(e.splits)+len(e.applies)+1)
		for _, k := range e.splits {
			attrs = append(attrs, ir.Attribute{Name: k.Name, Type: keyType(k.Expr)})
		}
		attrs = append(attrs, applyAttributes(e.applies)...)
		return append(attrs, ir.Attribute{Name: e.dataName, Type: ir.TypeDataset, Nested: e.rawAttributes()})
	}
	return e.rawAttributes()
}

// rawAttributes returns the row schema before any grouping.
func (e *External) rawAttributes() ir.Attributes {
	var attrs ir.Attributes
	for _, a := range e.desc.Attributes {
		if e.selected == nil || slices.Contains(e.selected, a.Name) {
			attrs = append(attrs, a)
		}
	}
	for _, d := range e.derived {
		if e.selected == nil || slices.Contains(e.selected, d.Name) {
			attrs = attrs.With(ir.Attribute{Name: d.Name, Type: keyType(d.Expr)})
		}
	}
	return attrs
}

func applyAttributes(applies []Apply) ir.Attributes {
	attrs := make(ir.Attributes, 0, len(applies))
	for _, a := range applies {
		t := a.Expr.Type()
		if !t.Known() || t == ir.TypeNull {
			t = ir.TypeNumber
		}
		attrs = append(attrs, ir.Attribute{Name: a.Name, Type: t})
	}
	return attrs
}

func keyType(e expr.Expression) ir.Type {
	if t := e.Type(); t.Known() {
		return t
	}
	if c, ok := e.(*expr.Chain); ok {
		switch c.Last().Op {
		case expr.OpTimeBucket:
			return ir.TypeTimeRange
		case expr.OpNumberBucket:
			return ir.TypeNumberRange
		case expr.OpTimeFloor, expr.OpTimeShift:
			return ir.TypeTime
		}
	}
	return ir.TypeUnknown
}

// String implements expr.Source. The form is stable and distinguishes
// every state, e.g. `sqlite:diamonds[split($cut,"Cut","diamonds");apply("Count",$diamonds.count())]`.
func (e *External) String() string {
	var steps []string
	add := func(s string) { steps = append(steps, s) }
	if e.filter != nil {
		add("filter(" + e.filter.String() + ")")
	}
	for _, d := range e.derived {
		add("apply(" + strconv.Quote(d.Name) + "," + d.Expr.String() + ")")
	}
	if e.selected != nil {
		add("select(" + strings.Join(quoteAll(e.selected), ",") + ")")
	}
	if e.value != nil {
		add("value(" + e.value.String() + ")")
	}
	if len(e.splits) > 0 {
		add(expr.Split(e.splits, e.dataName).String())
	}
	for _, a := range e.applies {
		add("apply(" + strconv.Quote(a.Name) + "," + a.Expr.String() + ")")
	}
	if e.having != nil {
		add("having(" + e.having.String() + ")")
	}
	if e.sort != nil {
		add(expr.Sort(e.sort.Expr, e.sort.Direction).String())
	}
	if e.limit != nil {
		add(expr.Limit(*e.limit).String())
	}
	return fmt.Sprintf("%s:%s[%s]", e.desc.Engine, e.desc.Source, strings.Join(steps, ";"))
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strconv.Quote(n)
	}
	return out
}

// Equals implements expr.Source.
func (e *External) Equals(other expr.Source) bool {
	o, ok := other.(*External)
	if !ok || o == nil {
		return false
	}
	return e.mode == o.mode && e.desc.equal(o.desc) && e.String() == o.String()
}

// sameRelation reports whether o queries the same relation as e.
func (e *External) sameRelation(o *External) bool {
	return e.desc.equal(o.desc)
}

// userFiltered reports whether filters beyond the base filter were
// absorbed.
func (e *External) userFiltered() bool {
	return !equalOrNil(e.filter, e.desc.Filter)
}

func equalOrNil(a, b expr.Expression) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equals(b)
}

// outputNames lists the columns of a split result.
func (e *External) outputNames() []string {
	names := make([]string, 0, len(e.splits)+len(e.applies))
	for _, k := range e.splits {
		names = append(names, k.Name)
	}
	for _, a := range e.applies {
		names = append(names, a.Name)
	}
	return names
}

func (e *External) findApply(name string) (Apply, int) {
	for i, a := range e.applies {
		if a.Name == name {
			return a, i
		}
	}
	return Apply{}, -1
}

func (e *External) findSplit(name string) (expr.SplitKey, bool) {
	for _, k := range e.splits {
		if k.Name == name {
			return k, true
		}
	}
	return expr.SplitKey{}, false
}

// RowBindings implements expr.RowBinder. In split mode each result row
// binds the data name to a raw External restricted to the row's group, so
// nested queries on a group can themselves be pushed down.
func (e *External) RowBindings(row ir.Datum) map[string]expr.Expression {
	if e.mode != ModeSplit {
		return nil
	}
	group := &External{
		desc:     e.desc,
		backend:  e.backend,
		mode:     ModeRaw,
		filter:   e.filter,
		derived:  slices.Clone(e.derived),
		selected: slices.Clone(e.selected),
	}
	for _, k := range e.splits {
		pred, err := groupPredicate(k.Expr, row.Get(k.Name))
		if err != nil {
			return nil
		}
		group.filter = and(group.filter, pred)
	}
	return map[string]expr.Expression{e.dataName: &expr.ExternalExpr{Source: group}}
}

// groupPredicate selects the rows whose key expression produced v.
func groupPredicate(key expr.Expression, v ir.Value) (expr.Expression, error) {
	if c, ok := key.(*expr.Chain); ok && len(c.Actions) > 0 {
		last := c.Last()
		if last.Op == expr.OpTimeBucket || last.Op == expr.OpNumberBucket {
			inner := c.Base
			if len(c.Actions) > 1 {
				var err error
				if inner, err = expr.NewChain(c.Base, c.Actions[:len(c.Actions)-1]...); err != nil {
					return nil, err
				}
			}
			if ir.IsNull(v) {
				return expr.NewChain(inner, expr.Binary(expr.OpIs, expr.NewLiteral(ir.Null{})))
			}
			return expr.NewChain(inner, expr.Binary(expr.OpIn, expr.NewLiteral(v)))
		}
	}
	return expr.NewChain(key, expr.Binary(expr.OpIs, expr.NewLiteral(v)))
}

// and conjoins two optional predicates.
func and(a, b expr.Expression) expr.Expression {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	c, err := expr.NewChain(a, expr.Binary(expr.OpAnd, b))
	if err != nil {
		return a
	}
	return expr.Simplify(c)
}

// AsTotal implements expr.Source: a value External becomes a one-row total
// holding its value under name.
func (e *External) AsTotal(name string) (expr.Source, bool) {
	if !e.CanHandleTotal() {
		return nil, false
	}
	out := e.clone()
	out.mode = ModeTotal
	out.applies = []Apply{{Name: name, Expr: e.value}}
	out.value = nil
	return out, true
}
