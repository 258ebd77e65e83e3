// Package queryir is the logical form of a SQL query produced by digesting
// an External.
//
// ARCHITECTURE:
//
// Digestion folds actions into an External; the External then lowers its
// state into a queryir.Query, and querysql renders that query through a
// dialect:
//
//	[External state] → [queryir.Select] → [querysql + dialect] → SQL text
//
// Keeping the logical query separate from rendering lets every dialect share
// one clause ordering (SELECT, FROM, WHERE, GROUP BY, HAVING, ORDER BY,
// LIMIT) and one set of structural checks.
//
// EXPRESSION CONTEXTS:
//
// Clauses hold expr.Expression trees, interpreted per clause:
//   - Where and grouping columns are evaluated against one source row:
//     references at nest 0 are source columns.
//   - Aggregate columns are chains over the reference named by Select.Data,
//     e.g. $diamonds.filter($color.is("D")).sum($price).
//   - Having and OrderBy reference output columns by name.
//
// SEALED INTERFACES:
//
// Query is sealed using the marker method pattern so that renderers can
// switch exhaustively:
//
//	switch q := query.(type) {
//	case Select:
//	    // one SELECT statement
//	case Describe:
//	    // schema introspection
//	}
package queryir
