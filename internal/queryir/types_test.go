package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/strata/internal/expr"
)

func TestSelect_ImplementsQuery(t *testing.T) {
	var q Query = Select{From: "diamonds"}

	switch q.(type) {
	case Select:
		// Expected
	case Describe:
		t.Fatal("unexpected type")
	}
}

func TestIsAggregate(t *testing.T) {
	tests := []struct {
		name string
		e    expr.Expression
		want bool
	}{
		{"count", expr.R("diamonds").Count().Must(), true},
		{"filtered sum", expr.R("diamonds").Filter(expr.R("color").Is("D")).Sum(expr.R("price")).Must(), true},
		{"ratio of aggregates", expr.R("diamonds").Sum(expr.R("price")).Divide(expr.R("diamonds").Count()).Must(), true},
		{"column", expr.R("cut").Must(), false},
		{"scalar op", expr.R("price").Multiply(2).Must(), false},
		{"aggregate over other data", expr.R("other").Count().Must(), false},
		{"outer reference", expr.R("^diamonds").Count().Must(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAggregate(tt.e, "diamonds"))
		})
	}
}
