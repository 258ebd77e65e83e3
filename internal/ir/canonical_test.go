package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", map[string]any{"b": 1, "a": "x"}, `{"a":"x","b":1}`},
		{"no html escape", "<&>", `"<&>"`},
		{"integral float", 3.0, `3`},
		{"fraction", 0.25, `0.25`},
		{"null", nil, `null`},
		{"nested", map[string]any{"q": []any{true, nil}}, `{"q":[true,null]}`},
		{"nfc", "é", "\"é\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := MarshalCanonical(math.Inf(1))
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := MustFingerprint(DomainQuery, map[string]any{"x": 1, "y": "z"})
	b := MustFingerprint(DomainQuery, map[string]any{"y": "z", "x": 1})
	c := MustFingerprint(DomainExpression, map[string]any{"x": 1, "y": "z"})

	assert.Len(t, a, 32)
	assert.Equal(t, a, b, "key order must not matter")
	assert.NotEqual(t, a, c, "domains must separate")
}
