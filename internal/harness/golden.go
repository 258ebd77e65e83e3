package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/strata/internal/ir"
)

// Snapshot builds the canonical JSON of a plan, the content of its golden
// file. Druid queries pass through encoding/json first so only plain JSON
// types reach the canonical encoder.
func Snapshot(name string, result *Result) ([]byte, error) {
	queries := make([]any, len(result.Queries))
	for i, q := range result.Queries {
		entry := map[string]any{"engine": q.Engine}
		if q.Druid != nil {
			druid, err := plainJSON(q.Druid)
			if err != nil {
				return nil, err
			}
			entry["druid"] = druid
		} else {
			entry["sql"] = q.SQL
		}
		queries[i] = entry
	}
	return ir.MarshalCanonical(map[string]any{
		"scenario_name": name,
		"queries":       queries,
	})
}

// RunWithGolden runs a scenario and compares its plan against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's plan against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
