package external

import (
	"github.com/roach88/strata/internal/dialect"
	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/querysql"
)

// valueColumn holds the result of a value query.
const valueColumn = "__VALUE__"

// backend turns an External's state into a native query.
type backend interface {
	query(e *External) (Query, PostProcess, error)
	introspect(desc SourceDescription) (Query, IntrospectPostProcess, error)
}

func backendFor(desc SourceDescription) (backend, error) {
	if desc.Engine == EngineDruid {
		return druidBackend{}, nil
	}
	d, err := dialect.ForEngine(desc.Engine)
	if err != nil {
		return nil, err
	}
	return sqlBackend{compiler: querysql.NewSQLCompiler(d)}, nil
}

type sqlBackend struct {
	compiler *querysql.SQLCompiler
}

func (b sqlBackend) query(e *External) (Query, PostProcess, error) {
	sel := e.Lower()
	sql, err := b.compiler.Compile(sel)
	if err != nil {
		return Query{}, nil, err
	}
	return Query{Engine: e.desc.Engine, SQL: sql}, e.postProcess(nil), nil
}

func (b sqlBackend) introspect(desc SourceDescription) (Query, IntrospectPostProcess, error) {
	sql, err := b.compiler.Compile(queryir.Describe{Table: desc.Source})
	if err != nil {
		return Query{}, nil, err
	}
	d := b.compiler.Dialect
	pp := func(rows []ir.Datum) (ir.Attributes, error) {
		attrs := make(ir.Attributes, 0, len(rows))
		for _, row := range rows {
			name, ok := row.Get("name").(ir.String)
			if !ok || name == "" {
				return nil, ir.NewMalformedError(desc.Source, "column description without a name")
			}
			native := row.Get("sqlType").String()
			attrs = append(attrs, ir.Attribute{
				Name:       string(name),
				Type:       d.ParseColumnType(native),
				NativeType: native,
			})
		}
		return attrs, nil
	}
	return Query{Engine: desc.Engine, SQL: sql}, pp, nil
}

// Lower returns the logical SQL query for the External's state.
func (e *External) Lower() queryir.Select {
	sel := queryir.Select{From: e.desc.Source, Where: e.filter, Limit: e.limit}
	switch e.mode {
	case ModeRaw:
		for _, a := range e.rawAttributes() {
			sel.Columns = append(sel.Columns, queryir.Column{Name: a.Name, Expr: e.rawColumn(a.Name)})
		}
		if e.sort != nil {
			sel.OrderBy = []queryir.Order{{Expr: e.sort.Expr, Direction: e.sort.Direction}}
		}
	case ModeValue:
		sel.Data = dataRef
		sel.Columns = []queryir.Column{{Name: valueColumn, Expr: e.value}}
	case ModeTotal:
		sel.Data = dataRef
		for _, a := range e.applies {
			sel.Columns = append(sel.Columns, queryir.Column{Name: a.Name, Expr: a.Expr})
		}
	case ModeSplit:
		sel.Data = e.dataName
		for i, k := range e.splits {
			sel.Columns = append(sel.Columns, queryir.Column{Name: k.Name, Expr: k.Expr})
			sel.GroupBy = append(sel.GroupBy, i+1)
		}
		for _, a := range e.applies {
			sel.Columns = append(sel.Columns, queryir.Column{Name: a.Name, Expr: a.Expr})
		}
		sel.Having = e.having
		if e.sort != nil {
			sel.OrderBy = []queryir.Order{{Expr: e.sort.Expr, Direction: e.sort.Direction}}
		}
	}
	return sel
}

// rawColumn returns the expression computing a raw output column.
func (e *External) rawColumn(name string) expr.Expression {
	for i := len(e.derived) - 1; i >= 0; i-- {
		if e.derived[i].Name == name {
			return e.derived[i].Expr
		}
	}
	return expr.NewRef(name)
}
