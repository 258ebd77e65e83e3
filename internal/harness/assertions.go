package harness

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	Queries  []external.Query // Full plan for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nQuery plan:\n")
	for i, q := range e.Queries {
		fmt.Fprintf(&buf, "  [%d] %s %s\n", i, q.Engine, q.String())
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertQueryCount:
		return assertQueryCount(result.Queries, a)
	case AssertSQLContains:
		return assertSQLContains(result.Queries, a)
	case AssertSQLOrder:
		return assertSQLOrder(result.Queries, a)
	case AssertDruidMatch:
		return assertDruidMatch(result.Queries, a)
	case AssertResultRows:
		return assertResultRows(result, a)
	case AssertResultValue:
		return assertResultValue(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertQueryCount(queries []external.Query, a Assertion) error {
	if len(queries) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertQueryCount,
		Expected: fmt.Sprintf("%d queries", a.Count),
		Actual:   fmt.Sprintf("%d queries", len(queries)),
		Queries:  queries,
	}
}

// sqlOf returns the SQL of the indexed query.
func sqlOf(queries []external.Query, a Assertion) (string, error) {
	if a.Query >= len(queries) {
		return "", &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("query %d", a.Query),
			Actual:   fmt.Sprintf("plan has %d queries", len(queries)),
			Queries:  queries,
		}
	}
	q := queries[a.Query]
	if q.Druid != nil {
		return "", &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("query %d to be SQL", a.Query),
			Actual:   "druid query",
			Queries:  queries,
		}
	}
	return q.SQL, nil
}

func assertSQLContains(queries []external.Query, a Assertion) error {
	sql, err := sqlOf(queries, a)
	if err != nil {
		return err
	}
	for _, fragment := range a.Contains {
		if !strings.Contains(sql, fragment) {
			return &AssertionError{
				Type:     AssertSQLContains,
				Expected: fmt.Sprintf("query %d contains %q", a.Query, fragment),
				Actual:   "not found",
				Queries:  queries,
			}
		}
	}
	return nil
}

// assertSQLOrder checks that fragments appear in order. Each fragment is
// searched for after the previous one.
func assertSQLOrder(queries []external.Query, a Assertion) error {
	sql, err := sqlOf(queries, a)
	if err != nil {
		return err
	}
	pos := 0
	for i, clause := range a.Clauses {
		at := strings.Index(sql[pos:], clause)
		if at < 0 {
			actual := "missing " + clause
			if strings.Contains(sql, clause) {
				actual = fmt.Sprintf("%s appears before %s", clause, a.Clauses[i-1])
			}
			return &AssertionError{
				Type:     AssertSQLOrder,
				Expected: fmt.Sprintf("clauses in order: %v", a.Clauses),
				Actual:   actual,
				Queries:  queries,
			}
		}
		pos += at + len(clause)
	}
	return nil
}

// assertDruidMatch compares the listed top-level fields of a Druid query,
// reporting mismatches as a JSON diff.
func assertDruidMatch(queries []external.Query, a Assertion) error {
	if a.Query >= len(queries) || queries[a.Query].Druid == nil {
		return &AssertionError{
			Type:     AssertDruidMatch,
			Expected: fmt.Sprintf("query %d to be a Druid query", a.Query),
			Actual:   fmt.Sprintf("plan has %d queries", len(queries)),
			Queries:  queries,
		}
	}

	got := make(map[string]any, len(a.Druid))
	for k := range a.Druid {
		if v, ok := queries[a.Query].Druid[k]; ok {
			got[k] = v
		}
	}
	want, err := plainJSON(a.Druid)
	if err != nil {
		return err
	}
	have, err := plainJSON(got)
	if err != nil {
		return err
	}

	diff := gojsondiff.New().CompareObjects(want, have)
	if !diff.Modified() {
		return nil
	}
	text, err := formatter.NewAsciiFormatter(want, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       false,
	}).Format(diff)
	if err != nil {
		return err
	}
	return &AssertionError{
		Type:     AssertDruidMatch,
		Expected: "druid fields to match",
		Actual:   "\n" + text,
		Queries:  queries,
	}
}

// plainJSON round-trips m through encoding/json so both sides of a diff
// use the same number and container types.
func plainJSON(m map[string]any) (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func assertResultRows(result *Result, a Assertion) error {
	ds, ok := result.Output.(*ir.Dataset)
	if !ok {
		return &AssertionError{
			Type:     AssertResultRows,
			Expected: "a dataset result",
			Actual:   fmt.Sprintf("%v", result.Output),
			Queries:  result.Queries,
		}
	}
	if len(ds.Data) != len(a.Rows) {
		return &AssertionError{
			Type:     AssertResultRows,
			Expected: fmt.Sprintf("%d rows", len(a.Rows)),
			Actual:   fmt.Sprintf("%d rows: %s", len(ds.Data), ds.String()),
			Queries:  result.Queries,
		}
	}
	for i, want := range a.Rows {
		for col, expected := range want {
			got := ds.Data[i].Get(col)
			if !matchValue(expected, got) {
				return &AssertionError{
					Type:     AssertResultRows,
					Expected: fmt.Sprintf("row %d %s = %v", i, col, expected),
					Actual:   got.String(),
					Queries:  result.Queries,
				}
			}
		}
	}
	return nil
}

func assertResultValue(result *Result, a Assertion) error {
	if result.Output != nil && matchValue(a.Value, result.Output) {
		return nil
	}
	actual := "no result"
	if result.Output != nil {
		actual = result.Output.String()
	}
	return &AssertionError{
		Type:     AssertResultValue,
		Expected: fmt.Sprintf("%v", a.Value),
		Actual:   actual,
		Queries:  result.Queries,
	}
}

// matchValue compares expected plain data with a value by parsing the
// expected side as the value's type.
func matchValue(expected any, got ir.Value) bool {
	if expected == nil {
		return ir.IsNull(got)
	}
	if ir.IsNull(got) {
		return false
	}
	want, err := ir.ParseValue(got.Type(), expected)
	if err != nil {
		return false
	}
	return ir.Equal(want, got)
}
