// Package querysql renders queryir queries as SQL text for a dialect.
package querysql

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/strata/internal/dialect"
	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
)

// SQLCompiler compiles queryir queries to SQL text.
//
// Literals are rendered inline through the dialect's escaping so that the
// query text alone identifies the query (it is fingerprinted for caching
// and shown by simulation).
type SQLCompiler struct {
	Dialect dialect.Dialect
}

// NewSQLCompiler creates a compiler for d.
func NewSQLCompiler(d dialect.Dialect) *SQLCompiler {
	return &SQLCompiler{Dialect: d}
}

// Compile converts a query to SQL. The query is validated first.
func (c *SQLCompiler) Compile(q queryir.Query) (string, error) {
	if q == nil {
		return "", fmt.Errorf("cannot compile nil query")
	}
	if err := queryir.Validate(q).Err(); err != nil {
		return "", err
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Describe:
		return c.Dialect.DescribeTable(query.Table), nil
	case *queryir.Describe:
		return c.Dialect.DescribeTable(query.Table), nil
	default:
		return "", fmt.Errorf("unsupported query type: %T", q)
	}
}

// clause selects how references are rendered.
type clause int

const (
	// clauseRow renders references as source columns.
	clauseRow clause = iota
	// clauseHaving renders references to output columns as their
	// expressions.
	clauseHaving
	// clauseOrder renders references as output column aliases.
	clauseOrder
)

type scope struct {
	sel    *queryir.Select
	clause clause
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, error) {
	row := scope{sel: &q, clause: clauseRow}

	cols := make([]string, len(q.Columns))
	for i, col := range q.Columns {
		sql, err := c.expr(col.Expr, row)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", col.Name, err)
		}
		cols[i] = sql + " AS " + c.Dialect.EscapeName(col.Name)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(c.Dialect.EscapeName(q.From))

	if q.Where != nil {
		sql, err := c.expr(q.Where, row)
		if err != nil {
			return "", fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(sql)
	}

	switch {
	case len(q.GroupBy) > 0:
		ords := make([]string, len(q.GroupBy))
		for i, o := range q.GroupBy {
			ords[i] = strconv.Itoa(o)
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(ords, ","))
	case q.Having != nil:
		b.WriteString(" ")
		b.WriteString(c.Dialect.ConstantGroupBy())
	}

	if q.Having != nil {
		sql, err := c.expr(q.Having, scope{sel: &q, clause: clauseHaving})
		if err != nil {
			return "", fmt.Errorf("compile having: %w", err)
		}
		b.WriteString(" HAVING ")
		b.WriteString(sql)
	}

	if len(q.OrderBy) > 0 {
		keys := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			sql, err := c.expr(o.Expr, scope{sel: &q, clause: clauseOrder})
			if err != nil {
				return "", fmt.Errorf("compile sort: %w", err)
			}
			dir := "ASC"
			if o.Direction == ir.Descending {
				dir = "DESC"
			}
			keys[i] = sql + " " + dir
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(keys, ", "))
	}

	if q.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*q.Limit))
	}
	return b.String(), nil
}

// expr renders e in scope s.
func (c *SQLCompiler) expr(e expr.Expression, s scope) (string, error) {
	switch x := e.(type) {
	case *expr.Literal:
		return c.literal(x.Value)
	case *expr.Ref:
		return c.ref(x, s)
	case *expr.Chain:
		if r, ok := x.Base.(*expr.Ref); ok && s.clause == clauseRow && s.sel.Data != "" &&
			r.Name == s.sel.Data && r.Nest == 0 {
			return c.aggregate(x.Actions, s)
		}
		sql, err := c.expr(x.Base, s)
		if err != nil {
			return "", err
		}
		for _, a := range x.Actions {
			if sql, err = c.scalar(a, sql, s); err != nil {
				return "", err
			}
		}
		return sql, nil
	case *expr.ExternalExpr:
		return "", ir.NewUnsupportedError(x.String(), "nested remote source cannot be rendered as SQL")
	}
	return "", fmt.Errorf("unsupported expression type: %T", e)
}

func (c *SQLCompiler) ref(r *expr.Ref, s scope) (string, error) {
	if r.Nest != 0 {
		return "", ir.NewUnsupportedError(r.String(), "outer reference cannot be rendered as SQL")
	}
	if s.clause == clauseHaving {
		for _, col := range s.sel.Columns {
			if col.Name == r.Name {
				return c.expr(col.Expr, scope{sel: s.sel, clause: clauseRow})
			}
		}
		return "", ir.NewUnresolvedError(r.String(), "HAVING references an unknown column")
	}
	return c.Dialect.EscapeName(r.Name), nil
}

func (c *SQLCompiler) literal(v ir.Value) (string, error) {
	switch x := v.(type) {
	case nil, ir.Null:
		return c.Dialect.Null(), nil
	case ir.Bool:
		return c.Dialect.Bool(bool(x)), nil
	case ir.Number:
		return c.Dialect.Number(float64(x)), nil
	case ir.String:
		return c.Dialect.EscapeString(string(x)), nil
	case ir.Time:
		return c.Dialect.Time(x.Time), nil
	}
	return "", ir.NewUnsupportedError(v.String(), "%s literal only valid as the operand of in", v.Type())
}

// aggregate renders a chain over the dataset reference: leading filters,
// one aggregate, then scalar steps applied to the aggregate's result.
func (c *SQLCompiler) aggregate(actions []expr.Action, s scope) (string, error) {
	var filters []string
	i := 0
	for ; i < len(actions) && actions[i].Op == expr.OpFilter; i++ {
		f, err := c.expr(actions[i].Expr, s)
		if err != nil {
			return "", err
		}
		filters = append(filters, f)
	}
	if i == len(actions) || !actions[i].Op.IsAggregate() {
		return "", ir.NewUnsupportedError(s.sel.Data, "only filtered aggregates of the data can be rendered as SQL")
	}
	filter := strings.Join(filters, " AND ")

	a := actions[i]
	operand := func() (string, error) {
		v, err := c.expr(a.Expr, s)
		if err != nil || filter == "" {
			return v, err
		}
		return c.Dialect.Conditional(filter, v, ""), nil
	}

	var sql string
	switch a.Op {
	case expr.OpCount:
		if filter == "" {
			sql = "COUNT(*)"
		} else {
			sql = "COUNT(" + c.Dialect.Conditional(filter, "1", "") + ")"
		}
	case expr.OpSum, expr.OpMin, expr.OpMax, expr.OpAverage, expr.OpCountDistinct, expr.OpQuantile:
		v, err := operand()
		if err != nil {
			return "", err
		}
		switch a.Op {
		case expr.OpSum:
			sql = "COALESCE(SUM(" + v + "),0)"
		case expr.OpMin:
			sql = "MIN(" + v + ")"
		case expr.OpMax:
			sql = "MAX(" + v + ")"
		case expr.OpAverage:
			sql = "AVG(" + v + ")"
		case expr.OpCountDistinct:
			sql = c.Dialect.CountDistinct(v)
		case expr.OpQuantile:
			if sql, err = c.Dialect.Quantile(v, a.Quantile); err != nil {
				return "", err
			}
		}
	default:
		return "", ir.NewUnsupportedError(a.String(), "aggregate not supported by %s", c.Dialect.Name())
	}

	for _, rest := range actions[i+1:] {
		var err error
		if sql, err = c.scalar(rest, sql, s); err != nil {
			return "", err
		}
	}
	return sql, nil
}

var infix = map[expr.Op]string{
	expr.OpLessThan:           "<",
	expr.OpLessThanOrEqual:    "<=",
	expr.OpGreaterThan:        ">",
	expr.OpGreaterThanOrEqual: ">=",
	expr.OpAdd:                "+",
	expr.OpSubtract:           "-",
	expr.OpMultiply:           "*",
	expr.OpAnd:                " AND ",
	expr.OpOr:                 " OR ",
}

// scalar applies one scalar action to the rendered operand x.
func (c *SQLCompiler) scalar(a expr.Action, x string, s scope) (string, error) {
	d := c.Dialect
	arg := func() (string, error) { return c.expr(a.Expr, s) }

	if op, ok := infix[a.Op]; ok {
		y, err := arg()
		if err != nil {
			return "", err
		}
		return "(" + x + op + y + ")", nil
	}

	switch a.Op {
	case expr.OpIs:
		if l, ok := a.Expr.(*expr.Literal); ok && ir.IsNull(l.Value) {
			return "(" + x + " IS NULL)", nil
		}
		y, err := arg()
		if err != nil {
			return "", err
		}
		return "(" + x + "=" + y + ")", nil
	case expr.OpIn:
		return c.in(x, a.Expr)
	case expr.OpNot:
		return "NOT(" + x + ")", nil
	case expr.OpDivide:
		y, err := arg()
		if err != nil {
			return "", err
		}
		return "(" + x + "/NULLIF(" + y + ",0))", nil
	case expr.OpPower:
		y, err := arg()
		if err != nil {
			return "", err
		}
		return d.Power(x, y), nil
	case expr.OpAbsolute:
		return "ABS(" + x + ")", nil
	case expr.OpConcat:
		y, err := arg()
		if err != nil {
			return "", err
		}
		return d.Concat(x, y), nil
	case expr.OpContains:
		y, err := arg()
		if err != nil {
			return "", err
		}
		return d.Contains(x, y), nil
	case expr.OpFallback:
		y, err := arg()
		if err != nil {
			return "", err
		}
		return "COALESCE(" + x + "," + y + ")", nil
	case expr.OpMatch:
		return d.Regexp(x, a.Pattern), nil
	case expr.OpExtract:
		return d.Extract(x, a.Pattern)
	case expr.OpSubstr:
		return d.Substr(x, a.Position, a.Length), nil
	case expr.OpLength:
		return d.Length(x), nil
	case expr.OpTimeFloor:
		return d.TimeFloor(x, a.Duration, a.Timezone)
	case expr.OpTimeBucket:
		return d.TimeBucket(x, a.Duration, a.Timezone)
	case expr.OpTimeShift:
		return d.TimeShift(x, a.Duration, a.Step, a.Timezone)
	case expr.OpTimePart:
		return d.TimePart(x, a.Part, a.Timezone)
	case expr.OpNumberBucket:
		return d.NumberBucket(x, a.Size, a.Offset), nil
	}
	return "", ir.NewUnsupportedError(a.String(), "%s cannot be rendered as SQL", a.Op)
}

// in renders membership in a literal set or range.
func (c *SQLCompiler) in(x string, e expr.Expression) (string, error) {
	l, ok := e.(*expr.Literal)
	if !ok {
		return "", ir.NewUnsupportedError(e.String(), "in requires a literal set or range")
	}
	set, ok := l.Value.(ir.Set)
	if !ok {
		return c.inRange(x, l.Value)
	}
	if set.Size() == 0 {
		return c.Dialect.Bool(false), nil
	}

	if set.ElemType.IsRange() {
		parts := make([]string, 0, set.Size())
		for _, r := range set.Elements {
			p, err := c.inRange(x, r)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil
	}

	var vals []string
	hasNull := false
	for _, v := range set.Elements {
		if ir.IsNull(v) {
			hasNull = true
			continue
		}
		sql, err := c.literal(v)
		if err != nil {
			return "", err
		}
		vals = append(vals, sql)
	}
	var conds []string
	if len(vals) > 0 {
		conds = append(conds, x+" IN ("+strings.Join(vals, ",")+")")
	}
	if hasNull {
		conds = append(conds, x+" IS NULL")
	}
	if len(conds) == 1 {
		return "(" + conds[0] + ")", nil
	}
	return "(" + strings.Join(conds, " OR ") + ")", nil
}

// inRange renders start <(=) x <(=) end, leaving open ends unbounded.
func (c *SQLCompiler) inRange(x string, v ir.Value) (string, error) {
	var start, end string
	switch r := v.(type) {
	case ir.NumberRange:
		if !math.IsInf(r.Start, -1) {
			start = c.Dialect.Number(r.Start)
		}
		if !math.IsInf(r.End, 1) {
			end = c.Dialect.Number(r.End)
		}
	case ir.TimeRange:
		if !r.Start.IsZero() {
			start = c.Dialect.Time(r.Start)
		}
		if !r.End.IsZero() {
			end = c.Dialect.Time(r.End)
		}
	case ir.StringRange:
		if r.Start != "" {
			start = c.Dialect.EscapeString(r.Start)
		}
		if r.End != "" {
			end = c.Dialect.EscapeString(r.End)
		}
	default:
		return "", ir.NewUnsupportedError(v.String(), "in requires a literal set or range")
	}

	bounds := ir.RangeBounds(v)
	var conds []string
	if start != "" {
		op := ">="
		if bounds[0] == '(' {
			op = ">"
		}
		conds = append(conds, x+op+start)
	}
	if end != "" {
		op := "<"
		if bounds[1] == ']' {
			op = "<="
		}
		conds = append(conds, x+op+end)
	}
	if len(conds) == 0 {
		return "(" + x + " IS NOT NULL)", nil
	}
	return "(" + strings.Join(conds, " AND ") + ")", nil
}
