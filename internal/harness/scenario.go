package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a query plan scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Sources lists catalog files or directories to compile against.
	Sources []string `yaml:"sources"`

	// Datasets maps source names to data files loaded into an in-memory
	// SQLite store. When set the expression is also executed.
	Datasets map[string]string `yaml:"datasets,omitempty"`

	// Expression is the expression in its JSON interchange form.
	Expression yaml.Node `yaml:"expression"`

	// ExpectError, when set, is text the planning or execution error must
	// contain.
	ExpectError string `yaml:"expect_error,omitempty"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Assertion validates the plan or the executed result.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Query indexes the plan (sql_contains, sql_order, druid_match).
	Query int `yaml:"query,omitempty"`

	// Count is the expected number of queries (query_count).
	Count int `yaml:"count,omitempty"`

	// Contains lists SQL fragments (sql_contains).
	Contains []string `yaml:"contains,omitempty"`

	// Clauses lists SQL fragments in order (sql_order).
	Clauses []string `yaml:"clauses,omitempty"`

	// Druid holds the expected top-level fields (druid_match).
	Druid map[string]any `yaml:"druid,omitempty"`

	// Rows are the expected result rows (result_rows). Only the listed
	// columns are compared.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Value is the expected scalar (result_value).
	Value any `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertQueryCount  = "query_count"
	AssertSQLContains = "sql_contains"
	AssertSQLOrder    = "sql_order"
	AssertDruidMatch  = "druid_match"
	AssertResultRows  = "result_rows"
	AssertResultValue = "result_value"
)

// LoadScenario reads a scenario file, resolving its paths relative to the
// file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads a scenario file, resolving source and
// dataset paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	resolve := func(p string) string {
		if filepath.IsAbs(p) || basePath == "" {
			return p
		}
		return filepath.Join(basePath, p)
	}
	for i, p := range scenario.Sources {
		scenario.Sources[i] = resolve(p)
	}
	for name, p := range scenario.Datasets {
		scenario.Datasets[name] = resolve(p)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Sources) == 0 {
		return fmt.Errorf("sources list is required and must be non-empty")
	}
	if s.Expression.IsZero() {
		return fmt.Errorf("expression is required")
	}
	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions or expect_error is required")
	}

	for _, p := range s.Sources {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("source file not found: %s", p)
		}
	}
	for name, p := range s.Datasets {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("dataset %q: file not found: %s", name, p)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, len(s.Datasets) > 0); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, executes bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Query < 0 {
		return fmt.Errorf("assertions[%d]: query must be non-negative", index)
	}

	switch a.Type {
	case AssertQueryCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for query_count", index)
		}
	case AssertSQLContains:
		if len(a.Contains) == 0 {
			return fmt.Errorf("assertions[%d]: contains list is required for sql_contains", index)
		}
	case AssertSQLOrder:
		if len(a.Clauses) < 2 {
			return fmt.Errorf("assertions[%d]: at least two clauses are required for sql_order", index)
		}
	case AssertDruidMatch:
		if len(a.Druid) == 0 {
			return fmt.Errorf("assertions[%d]: druid is required for druid_match", index)
		}
	case AssertResultRows, AssertResultValue:
		if !executes {
			return fmt.Errorf("assertions[%d]: %s needs datasets to execute against", index, a.Type)
		}
		if a.Type == AssertResultValue && a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for result_value", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
