package engine

import (
	"context"

	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/ir"
)

// SimulateQueryPlan prepares e against externals and evaluates it without
// any backend, returning the queries that would be issued in execution
// order. Each External is answered with its simulated rows, so nested
// queries that depend on earlier results are planned too.
func SimulateQueryPlan(e expr.Expression, externals map[string]*external.External) ([]external.Query, error) {
	prepared, err := Prepare(e, externals)
	if err != nil {
		return nil, err
	}
	sim := &simulator{}
	if _, err := expr.Compute(context.Background(), prepared, nil, sim); err != nil {
		return nil, err
	}
	return sim.queries, nil
}

// simulator is a Materializer recording every query instead of sending it.
type simulator struct {
	queries []external.Query
}

func (s *simulator) Materialize(_ context.Context, src expr.Source) (ir.Value, error) {
	ext, ok := src.(*external.External)
	if !ok {
		return nil, ir.NewUnsupportedError(src.String(), "unknown source type %T", src)
	}
	q, pp, err := ext.QueryAndPostProcess()
	if err != nil {
		return nil, err
	}
	s.queries = append(s.queries, q)
	return pp(ext.Simulate())
}
