package external

import (
	"context"

	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
)

// Compute evaluates the External's state natively over raw, the unfiltered
// rows of its source. The result has the shape the post-processor would
// produce for the same state.
func (e *External) Compute(ctx context.Context, raw *ir.Dataset) (ir.Value, error) {
	rows, err := e.filteredRows(raw)
	if err != nil {
		return nil, err
	}
	data := expr.NewEnv(map[string]expr.Expression{dataRef: rows})

	switch e.mode {
	case ModeValue:
		return expr.Compute(ctx, e.value, data, nil)
	case ModeTotal:
		row := ir.Datum{}
		for _, a := range e.applies {
			v, err := expr.Compute(ctx, a.Expr, data, nil)
			if err != nil {
				return nil, err
			}
			row[a.Name] = v
		}
		return &ir.Dataset{Attributes: e.Attributes(), Data: []ir.Datum{row}}, nil
	}

	var actions []expr.Action
	for _, d := range e.derived {
		actions = append(actions, expr.Apply(d.Name, d.Expr))
	}
	if e.mode == ModeSplit {
		actions = append(actions, expr.Split(e.splits, e.dataName))
		for _, a := range e.applies {
			actions = append(actions, expr.Apply(a.Name, a.Expr))
		}
		if e.having != nil {
			actions = append(actions, expr.Filter(e.having))
		}
	}
	if e.sort != nil {
		actions = append(actions, expr.Sort(e.sort.Expr, e.sort.Direction))
	}
	if e.limit != nil {
		actions = append(actions, expr.Limit(*e.limit))
	}
	if e.mode == ModeSplit {
		actions = append(actions, expr.Select(e.outputNames()...))
	} else if e.selected != nil {
		actions = append(actions, expr.Select(e.selected...))
	}
	if len(actions) == 0 {
		return expr.Compute(ctx, rows, nil, nil)
	}
	c, err := expr.NewChain(rows, actions...)
	if err != nil {
		return nil, err
	}
	return expr.Compute(ctx, c, nil, nil)
}

func (e *External) filteredRows(raw *ir.Dataset) (expr.Expression, error) {
	rows := expr.NewLiteral(raw)
	if e.filter == nil {
		return rows, nil
	}
	return expr.NewChain(rows, expr.Filter(e.filter))
}
