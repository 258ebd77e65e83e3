package expr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
)

func TestJSON_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
	}{
		{"ref", R("^^cut").Must()},
		{"literal time", L(time.Date(2015, 9, 12, 0, 0, 0, 0, time.UTC)).Must()},
		{"literal set", L([]string{"D", "E"}).Must()},
		{"literal range", NewLiteral(ir.NewNumberRange(0, 10))},
		{"basis", Ply().Must()},
		{
			name: "split query",
			expr: R("diamonds").
				Filter(R("color").In([]string{"D", "E"})).
				SplitInto(map[string]any{
					"Cut":  R("cut"),
					"Hour": R("time").TimeBucket("PT1H", "America/Los_Angeles"),
				}, "data").
				Apply("Count", R("data").Count()).
				Apply("P95", R("data").Quantile(R("price"), 0.95)).
				Sort(R("Count"), ir.Descending).
				Limit(10).
				Must(),
		},
		{
			name: "join and group",
			expr: R("diamonds").Split(R("cut"), "Cut").
				Apply("Count", R("diamonds").Count()).
				Join(R("wiki").Split(R("page"), "Cut").Apply("Edits", R("wiki").Count())).
				Apply("Colors", R("diamonds").Group(R("color"))).
				Must(),
		},
		{
			name: "scalar ops",
			expr: R("name").Substr(0, 3).Concat("x").Match("^a").Must(),
		},
		{
			name: "time ops",
			expr: R("time").TimeShift("P1D", -1, "").TimePart("HOUR_OF_DAY", "").NumberBucket(2, 0).Must(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalJSON(tt.expr)
			require.NoError(t, err)
			back, err := FromJSON(data)
			require.NoError(t, err)
			assert.Equal(t, tt.expr.String(), back.String())
			assert.True(t, tt.expr.Equals(back), "round trip changed %s", data)
		})
	}
}

func TestFromJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad json", `{`},
		{"unknown op", `{"op":"lambda"}`},
		{"unknown action", `{"op":"chain","expression":{"op":"ref","name":"d"},"actions":[{"action":"explode"}]}`},
		{"ref without name", `{"op":"ref"}`},
		{"external", `{"op":"external","source":"x"}`},
		{"bad type", `{"op":"literal","type":"QUATERNION","value":1}`},
		{"ill typed chain", `{"op":"chain","expression":{"op":"literal","type":"NUMBER","value":1},"actions":[{"action":"count"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromJSON([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestFromJSON_Document(t *testing.T) {
	doc := `{
		"op": "chain",
		"expression": {"op": "ref", "name": "diamonds"},
		"actions": [
			{"action": "filter", "expression": {
				"op": "chain",
				"expression": {"op": "ref", "name": "color"},
				"actions": [{"action": "is", "expression": {"op": "literal", "type": "STRING", "value": "D"}}]
			}},
			{"action": "split", "splits": [{"name": "Cut", "expression": {"op": "ref", "name": "cut"}}], "dataName": "diamonds"},
			{"action": "apply", "name": "Count", "expression": {
				"op": "chain", "expression": {"op": "ref", "name": "diamonds"}, "actions": [{"action": "count"}]
			}},
			{"action": "sort", "expression": {"op": "ref", "name": "Count"}, "direction": "descending"},
			{"action": "limit", "limit": 2}
		]
	}`
	e, err := FromJSON([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, `$diamonds.filter($color.is("D")).split($cut,"Cut","diamonds").apply("Count",$diamonds.count()).sort($Count,"descending").limit(2)`, e.String())
}
