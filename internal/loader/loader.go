// Package loader reads datasets from files: CSV, JSON (an array of
// objects), JSON lines, Avro object container files and Parquet.
//
// Column types are inferred from the values unless a schema is given.
// Strings that all parse as instants make a TIME column.
package loader

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// Options controls loading.
type Options struct {
	// Attributes fixes the schema. Cells are converted to the declared
	// types and columns missing from the file are null.
	Attributes ir.Attributes
}

// Load reads a file and returns its rows as a dataset.
func Load(filename string, opts Options) (*ir.Dataset, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	var (
		columns []string
		records []map[string]ir.Value
		err     error
	)
	switch ext {
	case ".csv":
		columns, records, err = loadCSV(filename)
	case ".json":
		columns, records, err = loadJSON(filename)
	case ".jsonl", ".ndjson":
		columns, records, err = loadJSONL(filename)
	case ".avro":
		columns, records, err = loadAvro(filename)
	case ".parquet":
		columns, records, err = loadParquet(filename)
	default:
		return nil, fmt.Errorf("unsupported file format %q (supported: .csv, .json, .jsonl, .avro, .parquet)", ext)
	}
	if err != nil {
		return nil, err
	}
	if opts.Attributes != nil {
		return withSchema(opts.Attributes, records)
	}
	return inferred(columns, records), nil
}

// Name returns the dataset name a file is loaded under: its base name
// without extension.
func Name(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func loadCSV(filename string) ([]string, []map[string]ir.Value, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read CSV header from %s: %w", filename, err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	var records []map[string]ir.Value
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("error reading CSV row: %w", err)
		}
		rec := make(map[string]ir.Value, len(columns))
		for i, col := range columns {
			if i < len(record) {
				rec[col] = csvValue(strings.TrimSpace(record[i]))
			}
		}
		records = append(records, rec)
	}
	return columns, records, nil
}

// csvValue infers the type of a CSV cell value.
func csvValue(s string) ir.Value {
	if s == "" || strings.EqualFold(s, "null") {
		return ir.Null{}
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return ir.Number(v)
	}
	switch strings.ToLower(s) {
	case "true":
		return ir.Bool(true)
	case "false":
		return ir.Bool(false)
	}
	return ir.String(s)
}

func loadJSON(filename string) ([]string, []map[string]ir.Value, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read %s: %w", filename, err)
	}
	var objs []map[string]any
	if err := json.Unmarshal(data, &objs); err != nil {
		return nil, nil, fmt.Errorf("cannot parse JSON from %s: %w (expected array of objects)", filename, err)
	}
	return fromObjects(objs)
}

func loadJSONL(filename string) ([]string, []map[string]ir.Value, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	var objs []map[string]any
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, nil, fmt.Errorf("invalid JSON on line %d: %w", lineNum, err)
		}
		objs = append(objs, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("error reading %s: %w", filename, err)
	}
	return fromObjects(objs)
}

// fromObjects converts decoded objects, ordering columns by first
// occurrence. Keys of one object are taken in sorted order.
func fromObjects(objs []map[string]any) ([]string, []map[string]ir.Value, error) {
	var columns []string
	seen := map[string]bool{}
	records := make([]map[string]ir.Value, len(objs))
	for i, obj := range objs {
		rec := make(map[string]ir.Value, len(obj))
		for _, k := range sortedKeys(obj) {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
			v, err := plainValue(obj[k])
			if err != nil {
				return nil, nil, fmt.Errorf("record %d field %q: %w", i, k, err)
			}
			rec[k] = v
		}
		records[i] = rec
	}
	return columns, records, nil
}

// plainValue converts decoded JSON or Avro data. Arrays of strings become
// sets; other nested data is kept as its JSON text.
func plainValue(x any) (ir.Value, error) {
	switch v := x.(type) {
	case []any:
		elems := make([]ir.Value, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return jsonText(v)
			}
			elems = append(elems, ir.String(s))
		}
		return ir.NewSet(ir.TypeString, elems...), nil
	case map[string]any:
		return jsonText(v)
	}
	return ir.FromNative(x)
}

func jsonText(x any) (ir.Value, error) {
	b, err := json.Marshal(x)
	if err != nil {
		return nil, err
	}
	return ir.String(b), nil
}
