package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
)

// nestedScope has an attribute "x" at three levels, each of a different
// type, so the resolved type shows which frame a reference bound to.
func nestedScope() *Scope {
	inner := ir.Attributes{
		{Name: "x", Type: ir.TypeTime},
		{Name: "price", Type: ir.TypeNumber},
	}
	data := ir.Attributes{
		{Name: "x", Type: ir.TypeNumber},
		{Name: "cut", Type: ir.TypeString},
		{Name: "price", Type: ir.TypeNumber},
		{Name: "inner", Type: ir.TypeDataset, Nested: inner},
	}
	return NewScope(ir.Attributes{
		{Name: "x", Type: ir.TypeString},
		{Name: "data", Type: ir.TypeDataset, Nested: data},
	})
}

func firstRef(e Expression, name string) *Ref {
	var found *Ref
	Walk(e, func(x Expression, _ int) bool {
		if r, ok := x.(*Ref); ok && r.Name == name && found == nil {
			found = r
		}
		return found == nil
	})
	return found
}

func TestResolve_NestDepth(t *testing.T) {
	tests := []struct {
		ref  string
		want ir.Type
	}{
		{"x", ir.TypeTime},
		{"^x", ir.TypeNumber},
		{"^^x", ir.TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			e := R("data").Apply("y", R("inner").Apply("z", R(tt.ref))).Must()
			out, err := Resolve(e, nestedScope())
			require.NoError(t, err)
			ref := firstRef(out, "x")
			require.NotNil(t, ref)
			assert.Equal(t, tt.want, ref.T)
			assert.Equal(t, ir.TypeDataset, out.Type())
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name    string
		expr    Expression
		check   func(error) bool
		subject string
	}{
		{
			name:    "scope overflow",
			expr:    R("data").Filter(R("^^x").Is("a")).Must(),
			check:   ir.IsScopeOverflowError,
			subject: "$^^x",
		},
		{
			name:    "unresolved",
			expr:    R("data").Filter(R("^nothing").Is("a")).Must(),
			check:   ir.IsUnresolvedError,
			subject: "$^nothing",
		},
		{
			name:    "type mismatch after resolution",
			expr:    R("data").Sum(R("cut")).Must(),
			check:   ir.IsTypeError,
			subject: "sum($cut)",
		},
		{
			name:    "select of unknown column",
			expr:    R("data").Select("carat").Must(),
			check:   ir.IsUnresolvedError,
			subject: "select(\"carat\")",
		},
		{
			name:    "declared type conflicts",
			expr:    &Ref{Name: "x", T: ir.TypeNumber},
			check:   ir.IsTypeError,
			subject: "$x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.expr, nestedScope())
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
			assert.Contains(t, err.Error(), tt.subject)
		})
	}
}

func TestResolve_SplitScope(t *testing.T) {
	e := R("data").
		Split(R("cut"), "Cut").
		Apply("Count", R("data").Count()).
		Apply("Top", R("data").Max(R("price"))).
		Sort(R("Count"), ir.Descending).
		Must()
	out, err := Resolve(e, nestedScope())
	require.NoError(t, err)

	c := out.(*Chain)
	assert.Equal(t, "data", c.Actions[0].DataName)
	assert.Equal(t, ir.TypeNumber, c.Actions[2].Expr.Type())
	assert.Equal(t, ir.TypeNumber, c.Actions[3].Expr.Type())
	assert.Equal(t, `$data.split($cut,"Cut","data").apply("Count",$data.count()).apply("Top",$data.max($price)).sort($Count,"descending")`, out.String())
}

func TestResolve_ApplyAddsAttribute(t *testing.T) {
	e := R("data").
		Apply("double", R("price").Multiply(2)).
		Filter(R("double").GreaterThan(100)).
		Must()
	out, err := Resolve(e, nestedScope())
	require.NoError(t, err)
	assert.Equal(t, ir.TypeDataset, out.Type())

	_, err = Resolve(R("data").Filter(R("triple").GreaterThan(1)).Must(), nestedScope())
	assert.True(t, ir.IsUnresolvedError(err))
}

func TestFreeReferences(t *testing.T) {
	e := R("data").Filter(R("cut").Is(R("^cut"))).Must()
	var got []string
	for _, r := range FreeReferences(e) {
		got = append(got, r.String())
	}
	assert.Equal(t, []string{"$data", "$cut"}, got)
}

func TestResolveValues(t *testing.T) {
	e := R("data").Filter(R("cut").Is(R("^cut"))).Must()
	env := NewEnv(map[string]Expression{"cut": lit("Ideal")})

	out, err := ResolveValues(e, env)
	require.NoError(t, err)
	assert.Equal(t, `$data.filter($cut.is("Ideal"))`, out.String())

	shifted, err := ShiftNest(e, 1)
	require.NoError(t, err)
	assert.Equal(t, `$^data.filter($cut.is($^^cut))`, shifted.String())
}

func TestScopeOf(t *testing.T) {
	env := NewEnv(map[string]Expression{"limit": lit(5)}).Push(ir.Datum{"cut": ir.String("Good")})
	s := ScopeOf(env)
	assert.Equal(t, 1, s.Depth())

	attr, err := s.Lookup("cut", 0)
	require.NoError(t, err)
	assert.Equal(t, ir.TypeString, attr.Type)

	attr, err = s.Lookup("limit", 1)
	require.NoError(t, err)
	assert.Equal(t, ir.TypeNumber, attr.Type)

	_, err = s.Lookup("limit", 0)
	assert.True(t, ir.IsUnresolvedError(err), "got %v", err)
}

func TestResolve_ExactDepth(t *testing.T) {
	// $cut is an attribute of data's rows, not of inner's.
	e := R("data").Apply("y", R("inner").Filter(R("cut").Is("Ideal")).Count()).Must()
	_, err := Resolve(e, nestedScope())
	require.Error(t, err)
	assert.True(t, ir.IsUnresolvedError(err), "got %v", err)
	assert.Contains(t, err.Error(), "$cut")

	e = R("data").Apply("y", R("inner").Filter(R("^cut").Is("Ideal")).Count()).Must()
	out, err := Resolve(e, nestedScope())
	require.NoError(t, err)
	ref := firstRef(out, "cut")
	require.NotNil(t, ref)
	assert.Equal(t, 1, ref.Nest)
	assert.Equal(t, ir.TypeString, ref.T)
}
