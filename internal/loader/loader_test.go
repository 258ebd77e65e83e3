package loader

import (
	"os"
	"path/filepath"
	"testing"

	goavro "github.com/linkedin/goavro/v2"
	parquet "github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/testutil"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func attrTypes(ds *ir.Dataset) map[string]ir.Type {
	out := map[string]ir.Type{}
	for _, a := range ds.Attributes {
		out[a.Name] = a.Type
	}
	return out
}

func TestLoad_CSV(t *testing.T) {
	path := writeFile(t, "diamonds.csv", `time,cut,price,rare
2015-01-01T00:10:00Z,Ideal,100,false
2015-01-01T00:40:00Z, Good ,300.5,true
2015-01-01 01:05:00,Fair,,false
`)

	ds, err := Load(path, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"time", "cut", "price", "rare"}, ds.Columns())
	assert.Equal(t, map[string]ir.Type{
		"time":  ir.TypeTime,
		"cut":   ir.TypeString,
		"price": ir.TypeNumber,
		"rare":  ir.TypeBoolean,
	}, attrTypes(ds))
	require.Len(t, ds.Data, 3)

	assert.Equal(t, testutil.At("00:10"), ds.Data[0]["time"])
	assert.Equal(t, ir.String("Good"), ds.Data[1]["cut"])
	assert.Equal(t, ir.Number(300.5), ds.Data[1]["price"])
	assert.Equal(t, ir.Null{}, ds.Data[2]["price"])
	assert.Equal(t, testutil.At("01:05"), ds.Data[2]["time"])

	price, ok := ds.Attributes.Find("price")
	require.True(t, ok)
	assert.True(t, price.Nullable)
}

func TestLoad_MixedColumnFallsBackToString(t *testing.T) {
	path := writeFile(t, "mixed.csv", "code\n12\nA7\n")

	ds, err := Load(path, Options{})
	require.NoError(t, err)

	assert.Equal(t, ir.TypeString, attrTypes(ds)["code"])
	assert.Equal(t, ir.String("12"), ds.Data[0]["code"])
	assert.Equal(t, ir.String("A7"), ds.Data[1]["code"])
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "wiki.json", `[
  {"page": "Main", "count": 10, "tags": ["a", "b"]},
  {"page": "Talk", "count": 3, "robot": true}
]`)

	ds, err := Load(path, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"count", "page", "tags", "robot"}, ds.Columns())
	assert.Equal(t, ir.Number(10), ds.Data[0]["count"])
	assert.Equal(t, ir.NewSet(ir.TypeString, ir.String("a"), ir.String("b")), ds.Data[0]["tags"])
	assert.Equal(t, ir.Null{}, ds.Data[0]["robot"])
	assert.Equal(t, ir.Bool(true), ds.Data[1]["robot"])
}

func TestLoad_JSONL(t *testing.T) {
	path := writeFile(t, "events.jsonl", `{"user": "u1", "n": 1}

{"user": "u2", "n": 2}
`)

	ds, err := Load(path, Options{})
	require.NoError(t, err)
	require.Len(t, ds.Data, 2)
	assert.Equal(t, ir.String("u2"), ds.Data[1]["user"])
	assert.Equal(t, ir.Number(2), ds.Data[1]["n"])
}

func TestLoad_Schema(t *testing.T) {
	path := writeFile(t, "codes.csv", "code,price\nA7,1.5\n")
	attrs := ir.Attributes{
		{Name: "code", Type: ir.TypeString},
		{Name: "price", Type: ir.TypeNumber},
		{Name: "missing", Type: ir.TypeBoolean},
	}

	ds, err := Load(path, Options{Attributes: attrs})
	require.NoError(t, err)

	assert.Equal(t, attrs, ds.Attributes)
	assert.Equal(t, ir.Datum{
		"code":    ir.String("A7"),
		"price":   ir.Number(1.5),
		"missing": ir.Null{},
	}, ds.Data[0])
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		opts    Options
		wantErr string
	}{
		{
			name:    "unsupported extension",
			file:    "data.xml",
			content: "<x/>",
			wantErr: "unsupported file format",
		},
		{
			name:    "json not an array",
			file:    "data.json",
			content: `{"a": 1}`,
			wantErr: "expected array of objects",
		},
		{
			name:    "bad jsonl line",
			file:    "data.jsonl",
			content: "{\"a\": 1}\n{oops\n",
			wantErr: "line 2",
		},
		{
			name:    "schema mismatch",
			file:    "data.csv",
			content: "when\nyesterday\n",
			opts:    Options{Attributes: ir.Attributes{{Name: "when", Type: ir.TypeTime}}},
			wantErr: `column "when"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := Load(path, tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot open")
}

func TestLoad_Avro(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diamonds.avro")
	f, err := os.Create(path)
	require.NoError(t, err)

	w, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W: f,
		Schema: `{
  "type": "record",
  "name": "Diamond",
  "fields": [
    {"name": "time", "type": "string"},
    {"name": "cut", "type": "string"},
    {"name": "price", "type": ["null", "double"]},
    {"name": "carat", "type": "long"}
  ]
}`,
	})
	require.NoError(t, err)
	require.NoError(t, w.Append([]any{
		map[string]any{"time": "2015-01-01T00:10:00Z", "cut": "Ideal", "price": goavro.Union("double", 100.0), "carat": int64(1)},
		map[string]any{"time": "2015-01-01T00:40:00Z", "cut": "Good", "price": nil, "carat": int64(2)},
	}))
	require.NoError(t, f.Close())

	ds, err := Load(path, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"time", "cut", "price", "carat"}, ds.Columns())
	assert.Equal(t, ir.TypeTime, attrTypes(ds)["time"])
	assert.Equal(t, ir.Number(100), ds.Data[0]["price"])
	assert.Equal(t, ir.Null{}, ds.Data[1]["price"])
	assert.Equal(t, ir.Number(2), ds.Data[1]["carat"])
}

type parquetDiamond struct {
	Cut    string  `parquet:"cut"`
	Price  float64 `parquet:"price"`
	Carat  int32   `parquet:"carat"`
	Sparse bool    `parquet:"sparse"`
}

func TestLoad_Parquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diamonds.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := parquet.NewWriter(f)
	for _, d := range []parquetDiamond{
		{Cut: "Ideal", Price: 100, Carat: 1},
		{Cut: "Good", Price: 200.5, Carat: 2, Sparse: true},
		{Cut: "Fair", Price: 80, Carat: 3},
	} {
		require.NoError(t, w.Write(d))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	ds, err := Load(path, Options{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"cut", "price", "carat", "sparse"}, ds.Columns())
	assert.Equal(t, map[string]ir.Type{
		"cut":    ir.TypeString,
		"price":  ir.TypeNumber,
		"carat":  ir.TypeNumber,
		"sparse": ir.TypeBoolean,
	}, attrTypes(ds))
	require.Len(t, ds.Data, 3)
	assert.Equal(t, ir.Datum{
		"cut":    ir.String("Good"),
		"price":  ir.Number(200.5),
		"carat":  ir.Number(2),
		"sparse": ir.Bool(true),
	}, ds.Data[1])
}

func TestName(t *testing.T) {
	assert.Equal(t, "diamonds", Name("/data/diamonds.csv"))
	assert.Equal(t, "wiki.v2", Name("wiki.v2.parquet"))
}
