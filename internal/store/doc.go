// Package store provides a SQLite database of datasets that answers
// compiled SQL queries.
//
// Store implements engine.Requester: the sqlite dialect's SQL runs as is
// and each result row becomes an ir.Datum keyed by column alias.
//
// # Storage
//
// Datasets are loaded with LoadDataset into one table each. Columns are
// declared so that introspection maps them back to the same attribute
// types (REAL, TEXT, BOOLEAN, DATETIME). TIME values are stored as UTC text
// in dialect.TimeLayout, the form the dialect's literals and time floors
// compare against. A catalog table (strata_datasets) records each
// dataset's attributes and time attribute, ordered by a load sequence.
//
// # Functions
//
// Every connection registers REGEXP, POWER and FLOOR, which the dialect
// renders but SQLite does not provide by default.
//
// # Database Configuration
//
//   - WAL mode (file databases): concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
package store
