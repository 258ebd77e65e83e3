package cache

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/strata/internal/ir"
)

// cell is the stored form of one value: its type plus plain data.
type cell struct {
	T ir.Type `json:"t"`
	V any     `json:"v"`
}

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(err)
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
}

// encodeRows serializes rows with their value types and compresses the
// result with zstd.
func encodeRows(rows []ir.Datum) ([]byte, error) {
	out := make([]map[string]cell, len(rows))
	for i, row := range rows {
		m := make(map[string]cell, len(row))
		for name, v := range row {
			m[name] = cell{T: ir.TypeOf(v), V: ir.ToNative(v)}
		}
		out[i] = m
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	return encoder.EncodeAll(data, nil), nil
}

func decodeRows(data []byte) ([]ir.Datum, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress rows: %w", err)
	}
	var in []map[string]cell
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	rows := make([]ir.Datum, len(in))
	for i, m := range in {
		row := make(ir.Datum, len(m))
		for name, c := range m {
			v, err := ir.ParseValue(c.T, c.V)
			if err != nil {
				return nil, fmt.Errorf("decode %q: %w", name, err)
			}
			row[name] = v
		}
		rows[i] = row
	}
	return rows, nil
}
