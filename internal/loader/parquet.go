package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	parquet "github.com/parquet-go/parquet-go"

	"github.com/roach88/strata/internal/ir"
)

// parquetColumn converts the values of one leaf column.
type parquetColumn struct {
	name    string
	convert func(parquet.Value) ir.Value
}

func loadParquet(filename string) ([]string, []map[string]ir.Value, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()

	reader := parquet.NewReader(f)
	defer reader.Close()

	fields := reader.Schema().Fields()
	cols := make([]parquetColumn, len(fields))
	names := make([]string, len(fields))
	for i, field := range fields {
		if !field.Leaf() {
			return nil, nil, fmt.Errorf("parquet column %q: nested columns are not supported", field.Name())
		}
		cols[i] = parquetColumn{name: field.Name(), convert: parquetConverter(field)}
		names[i] = field.Name()
	}

	var records []map[string]ir.Value
	buf := make([]parquet.Row, 128)
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			rec := make(map[string]ir.Value, len(cols))
			for _, v := range row {
				c := v.Column()
				if c < 0 || c >= len(cols) {
					continue
				}
				if v.IsNull() {
					rec[cols[c].name] = ir.Null{}
					continue
				}
				rec[cols[c].name] = cols[c].convert(v)
			}
			records = append(records, rec)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("error reading parquet rows from %s: %w", filename, err)
		}
		if n == 0 {
			break
		}
	}
	return names, records, nil
}

func parquetConverter(field parquet.Field) func(parquet.Value) ir.Value {
	t := field.Type()
	if lt := t.LogicalType(); lt != nil {
		switch {
		case lt.Timestamp != nil:
			unit := time.Millisecond
			switch {
			case lt.Timestamp.Unit.Micros != nil:
				unit = time.Microsecond
			case lt.Timestamp.Unit.Nanos != nil:
				unit = time.Nanosecond
			}
			return func(v parquet.Value) ir.Value {
				return ir.NewTime(time.Unix(0, v.Int64()*int64(unit)))
			}
		case lt.Date != nil:
			return func(v parquet.Value) ir.Value {
				return ir.NewTime(time.Unix(int64(v.Int32())*86400, 0))
			}
		}
	}
	switch t.Kind() {
	case parquet.Boolean:
		return func(v parquet.Value) ir.Value { return ir.Bool(v.Boolean()) }
	case parquet.Int32:
		return func(v parquet.Value) ir.Value { return ir.Number(v.Int32()) }
	case parquet.Int64:
		return func(v parquet.Value) ir.Value { return ir.Number(v.Int64()) }
	case parquet.Float:
		return func(v parquet.Value) ir.Value { return ir.Number(v.Float()) }
	case parquet.Double:
		return func(v parquet.Value) ir.Value { return ir.Number(v.Double()) }
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return func(v parquet.Value) ir.Value { return ir.String(v.ByteArray()) }
	}
	return func(v parquet.Value) ir.Value { return ir.String(v.String()) }
}
