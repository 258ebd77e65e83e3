package queryir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
)

// ValidationResult lists the structural problems of a query.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems describes each violated rule.
	Problems []string
}

// Err returns the problems as a single error, or nil for a valid query.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return errors.New("invalid query: " + strings.Join(r.Problems, "; "))
}

// Validate checks the structural rules every renderer relies on:
//  1. A Select reads from a named table and outputs at least one column
//  2. Output names are unique and non-empty
//  3. GROUP BY ordinals point at non-aggregate columns
//  4. In an aggregate query every non-aggregate column is grouped
//  5. HAVING only appears in aggregate queries
//  6. Sort keys are present with a known direction; limits are not negative
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(query)

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Describe:
		v.validateDescribe(query)
	case *Describe:
		v.validateDescribe(*query)
	case nil:
		v.addProblem("nil query")
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.From == "" {
		v.addProblem("missing FROM table")
	}
	if len(sel.Columns) == 0 {
		v.addProblem("no output columns")
	}

	seen := make(map[string]bool, len(sel.Columns))
	aggregate := make([]bool, len(sel.Columns))
	anyAggregate := false
	for i, c := range sel.Columns {
		switch {
		case c.Name == "":
			v.addProblem("column %d has no name", i+1)
		case seen[c.Name]:
			v.addProblem("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		if c.Expr == nil {
			v.addProblem("column %q has no expression", c.Name)
			continue
		}
		aggregate[i] = IsAggregate(c.Expr, sel.Data)
		anyAggregate = anyAggregate || aggregate[i]
	}

	grouped := make(map[int]bool, len(sel.GroupBy))
	for _, ord := range sel.GroupBy {
		if ord < 1 || ord > len(sel.Columns) {
			v.addProblem("GROUP BY ordinal %d out of range", ord)
			continue
		}
		if aggregate[ord-1] {
			v.addProblem("GROUP BY on aggregate column %q", sel.Columns[ord-1].Name)
		}
		grouped[ord] = true
	}

	if anyAggregate || len(sel.GroupBy) > 0 {
		for i, c := range sel.Columns {
			if c.Expr != nil && !aggregate[i] && !grouped[i+1] && !isConstant(c.Expr) {
				v.addProblem("column %q is neither grouped nor aggregated", c.Name)
			}
		}
	} else if sel.Having != nil {
		v.addProblem("HAVING without aggregation")
	}

	for i, o := range sel.OrderBy {
		if o.Expr == nil {
			v.addProblem("ORDER BY key %d has no expression", i+1)
		}
		if o.Direction != ir.Ascending && o.Direction != ir.Descending {
			v.addProblem("ORDER BY key %d has direction %q", i+1, o.Direction)
		}
	}

	if sel.Limit != nil && *sel.Limit < 0 {
		v.addProblem("negative LIMIT %d", *sel.Limit)
	}
}

func (v *validator) validateDescribe(d Describe) {
	if d.Table == "" {
		v.addProblem("missing table to describe")
	}
}

// isConstant reports whether e references nothing.
func isConstant(e expr.Expression) bool {
	return len(expr.FreeReferences(e)) == 0
}
