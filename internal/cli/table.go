package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/roach88/strata/internal/ir"
)

// writeDataset renders ds as a markdown table followed by its row count.
func writeDataset(w io.Writer, ds *ir.Dataset) error {
	columns := ds.Columns()
	if len(ds.Data) == 0 {
		_, err := fmt.Fprintf(w, "_Columns: %v_\n\n_No rows_\n", columns)
		return err
	}

	alignment := make([]tw.Align, len(columns))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(columns)
	for _, row := range ds.Data {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = formatCell(row.Get(c))
		}
		if err := table.Append(cells); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n_%d rows_\n", len(ds.Data))
	return err
}

// writeAttributes renders a schema as a table of name, type and native type.
func writeAttributes(w io.Writer, attrs ir.Attributes) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"name", "type", "native"})
	for _, a := range attrs {
		if err := table.Append([]string{a.Name, string(a.Type), a.NativeType}); err != nil {
			return err
		}
	}
	return table.Render()
}

func formatCell(v ir.Value) string {
	switch x := v.(type) {
	case nil, ir.Null:
		return "null"
	case ir.Time:
		return x.Time.UTC().Format(time.RFC3339)
	case *ir.Dataset:
		return fmt.Sprintf("<%d rows>", len(x.Data))
	case ir.String:
		return strings.ReplaceAll(string(x), "\n", " ")
	}
	return v.String()
}

// nativeValue converts a result for JSON output.
func nativeValue(v ir.Value) any {
	if ds, ok := v.(*ir.Dataset); ok {
		return ds.ToNative()
	}
	return ir.ToNative(v)
}
