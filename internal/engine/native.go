package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
)

// ComputeNative evaluates e in process over in-memory datasets bound by
// name. No queries are issued.
func ComputeNative(ctx context.Context, e expr.Expression, data map[string]*ir.Dataset) (ir.Value, error) {
	var root ir.Attributes
	bind := make(map[string]expr.Expression, len(data))
	for _, name := range slices.Sorted(maps.Keys(data)) {
		ds := data[name]
		root = append(root, ir.Attribute{Name: name, Type: ir.TypeDataset, Nested: ds.Attributes})
		bind[name] = expr.NewLiteral(ds)
	}

	resolved, err := expr.Resolve(e, expr.NewScope(root))
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	bound, err := expr.ResolveValues(resolved, expr.NewEnv(bind))
	if err != nil {
		return nil, fmt.Errorf("bind datasets: %w", err)
	}
	return expr.Compute(ctx, bound, nil, nil)
}
