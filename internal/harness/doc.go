// Package harness runs query plan scenarios.
//
// A scenario names the sources to compile against, the expression to
// plan, and assertions over the queries it compiles to. When datasets are
// given the expression is also executed against an in-memory SQLite store
// and the result can be asserted on.
//
// # Scenario Format
//
//	name: top_cuts
//	description: "Filtered split compiles to one grouped query"
//	sources:
//	  - sources.yaml
//	datasets:
//	  diamonds: diamonds.csv
//	expression:
//	  op: chain
//	  expression: {op: ref, name: diamonds}
//	  actions:
//	    - action: split
//	      dataName: diamonds
//	      splits: [{name: Cut, expression: {op: ref, name: cut}}]
//	assertions:
//	  - type: query_count
//	    count: 1
//	  - type: sql_order
//	    clauses: [WHERE, GROUP BY, ORDER BY, LIMIT]
//	  - type: result_rows
//	    rows:
//	      - {Cut: Ideal}
//
// Source and dataset paths are relative to the scenario file.
//
// # Assertion Types
//
//   - query_count: the plan has exactly N queries
//   - sql_contains: a query's SQL contains every given fragment
//   - sql_order: fragments appear in a query's SQL in the given order
//   - druid_match: the given top-level fields of a Druid query match
//   - result_rows: the executed result has these rows, in order
//   - result_value: the executed result is this scalar
//
// A scenario may instead set expect_error; it then passes only if
// planning or execution fails with a message containing that text.
//
// # Deterministic Testing
//
// Requests carry a fixed ID and each scenario runs on a fresh in-memory
// database, so compiled plans can be compared against golden files:
//
//	go test ./internal/harness -update
package harness
