package harness

import (
	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/ir"
)

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Queries is the compiled plan in issue order.
	Queries []external.Query `json:"queries"`

	// Output is the executed value. Nil when the scenario has no datasets.
	Output ir.Value `json:"-"`

	// Errors holds assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Queries: []external.Query{},
		Errors:  []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
