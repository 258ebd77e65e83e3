package loader

import (
	"encoding/json"
	"fmt"
	"os"

	goavro "github.com/linkedin/goavro/v2"

	"github.com/roach88/strata/internal/ir"
)

func loadAvro(filename string) ([]string, []map[string]ir.Value, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()

	ocfr, err := goavro.NewOCFReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read Avro OCF from %s: %w", filename, err)
	}

	var schemaDef struct {
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(ocfr.Codec().Schema()), &schemaDef); err != nil {
		return nil, nil, fmt.Errorf("cannot parse Avro schema: %w", err)
	}
	columns := make([]string, len(schemaDef.Fields))
	for i, field := range schemaDef.Fields {
		columns[i] = field.Name
	}

	var records []map[string]ir.Value
	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return nil, nil, fmt.Errorf("error reading Avro record: %w", err)
		}
		rec, ok := datum.(map[string]any)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected Avro record type %T", datum)
		}
		out := make(map[string]ir.Value, len(columns))
		for _, col := range columns {
			v, err := avroValue(rec[col])
			if err != nil {
				return nil, nil, fmt.Errorf("avro field %q: %w", col, err)
			}
			out[col] = v
		}
		records = append(records, out)
	}
	if err := ocfr.Err(); err != nil {
		return nil, nil, fmt.Errorf("error reading Avro file: %w", err)
	}
	return columns, records, nil
}

func avroValue(v any) (ir.Value, error) {
	// Unions decode as {"type": value}.
	if union, ok := v.(map[string]any); ok && len(union) == 1 {
		for _, inner := range union {
			return avroValue(inner)
		}
	}
	return plainValue(v)
}
