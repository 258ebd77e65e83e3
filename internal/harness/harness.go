package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/strata/internal/catalog"
	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/loader"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/testutil"
)

// requestID is the ID every scenario request carries.
const requestID = "scenario-request"

// Harness holds the compiled inputs of one scenario.
type Harness struct {
	catalog   *catalog.Catalog
	externals map[string]*external.External
	logger    *slog.Logger
}

// Run plans a scenario, executes it when it has datasets, and evaluates
// its assertions. The returned error reports a scenario that could not be
// set up; failures of the scenario itself are in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	cat := &catalog.Catalog{Sources: map[string]external.SourceDescription{}}
	for _, path := range scenario.Sources {
		c, err := catalog.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load sources: %w", err)
		}
		if err := cat.Merge(c, path); err != nil {
			return nil, fmt.Errorf("failed to load sources: %w", err)
		}
	}
	externals, err := cat.Externals()
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}

	e, err := catalog.YAMLExpression(&scenario.Expression)
	if err != nil {
		return nil, fmt.Errorf("failed to decode expression: %w", err)
	}

	h := &Harness{
		catalog:   cat,
		externals: externals,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	result := NewResult()
	failed, err := h.plan(e, result)
	if err == nil && failed == nil && len(scenario.Datasets) > 0 {
		failed, err = h.execute(ctx, e, scenario.Datasets, result)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case scenario.ExpectError == "" && failed != nil:
		result.AddError(failed.Error())
		return result, nil
	case scenario.ExpectError != "" && failed == nil:
		result.AddError(fmt.Sprintf("expected error containing %q, got none", scenario.ExpectError))
		return result, nil
	case scenario.ExpectError != "" && !strings.Contains(failed.Error(), scenario.ExpectError):
		result.AddError(fmt.Sprintf("expected error containing %q, got %q", scenario.ExpectError, failed.Error()))
		return result, nil
	case failed != nil:
		return result, nil
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// plan compiles the expression. A compile failure is returned as failed,
// not as err.
func (h *Harness) plan(e expr.Expression, result *Result) (failed, err error) {
	queries, planErr := engine.SimulateQueryPlan(e, h.externals)
	if planErr != nil {
		return fmt.Errorf("plan: %w", planErr), nil
	}
	result.Queries = queries
	h.logger.Info("scenario planned", "queries", len(queries))
	return nil, nil
}

// execute loads the datasets into a fresh store and computes the
// expression over it.
func (h *Harness) execute(ctx context.Context, e expr.Expression, datasets map[string]string, result *Result) (failed, err error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	for _, name := range slices.Sorted(maps.Keys(datasets)) {
		desc, ok := h.catalog.Sources[name]
		if !ok {
			return nil, fmt.Errorf("dataset %q has no source", name)
		}
		ds, err := loader.Load(datasets[name], loader.Options{Attributes: desc.Attributes})
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", name, err)
		}
		if err := st.LoadDataset(ctx, desc.Source, desc.TimeAttribute, ds); err != nil {
			return nil, fmt.Errorf("dataset %q: %w", name, err)
		}
		h.logger.Info("dataset loaded", "name", name, "rows", len(ds.Data))
	}

	x := engine.NewExecutor(st,
		engine.WithIDGenerator(testutil.NewFixedIDGenerator(requestID)),
		engine.WithLogger(h.logger),
	)
	out, computeErr := x.Compute(ctx, e, h.externals)
	if computeErr != nil {
		return fmt.Errorf("execute: %w", computeErr), nil
	}
	result.Output = out
	return nil, nil
}
