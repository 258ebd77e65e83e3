package queryir

import (
	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
)

// Query represents a logical SQL query.
//
// This is a sealed interface - only types in this package implement it.
//
// Query types:
//   - Select: one aggregate or row query over a table
//   - Describe: column introspection of a table
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Select is a single SELECT statement.
//
// Semantics:
//
//	SELECT <columns> FROM <from> WHERE <where>
//	GROUP BY <group by> HAVING <having> ORDER BY <order by> LIMIT <limit>
//
// Example (a split on cut with one count, conceptually):
//
//	Select{
//	  From: "diamonds",
//	  Data: "diamonds",
//	  Columns: []Column{
//	    {Name: "Cut", Expr: $cut},
//	    {Name: "Count", Expr: $diamonds.count()},
//	  },
//	  Where:   $color.is("D"),
//	  GroupBy: []int{1},
//	  OrderBy: []Order{{Expr: $Count, Direction: ir.Descending}},
//	  Limit:   &two,
//	}
//
// Translates to SQL:
//
//	SELECT `cut` AS `Cut`, COUNT(*) AS `Count` FROM `diamonds`
//	WHERE (`color`='D') GROUP BY 1 ORDER BY `Count` DESC LIMIT 2
type Select struct {
	From    string          // Table name
	Data    string          // Name aggregates range over
	Columns []Column        // Output columns in order (never SELECT *)
	Where   expr.Expression // Row filter (nil = no filter)
	GroupBy []int           // 1-based ordinals into Columns
	Having  expr.Expression // Filter over output columns (nil = none)
	OrderBy []Order         // Sort keys in priority order
	Limit   *int            // Row limit (nil = unlimited)
}

func (Select) queryNode() {}

// Column is one output column.
type Column struct {
	Name string          // Output alias
	Expr expr.Expression // Row expression or aggregate over Select.Data
}

// Order is one ORDER BY key.
type Order struct {
	Expr      expr.Expression // Usually a reference to an output column
	Direction ir.Direction
}

// Describe lists the columns of a table with their native types.
//
// The rendered query yields the columns "name" and "sqlType".
type Describe struct {
	Table string
}

func (Describe) queryNode() {}

// IsAggregate reports whether e computes an aggregate over the dataset
// reference named data, possibly combined with literals or other
// aggregates.
func IsAggregate(e expr.Expression, data string) bool {
	found := false
	expr.Walk(e, func(x expr.Expression, depth int) bool {
		c, ok := x.(*expr.Chain)
		if !ok || found {
			return !found
		}
		r, ok := c.Base.(*expr.Ref)
		if !ok || r.Name != data || r.Nest != depth {
			return true
		}
		for _, a := range c.Actions {
			if a.Op.IsAggregate() {
				found = true
				return false
			}
		}
		return true
	})
	return found
}
