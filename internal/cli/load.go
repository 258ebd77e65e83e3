package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/loader"
	"github.com/roach88/strata/internal/store"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Database      string
	Sources       []string
	TimeAttribute string
}

// LoadedDataset reports one loaded file.
type LoadedDataset struct {
	Name       string        `json:"name"`
	Rows       int           `json:"rows"`
	Attributes ir.Attributes `json:"attributes"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <name=path>...",
		Short: "Load dataset files into a SQLite database",
		Long: `Load CSV, JSON, JSON lines, Avro or Parquet files into a SQLite
database as tables, replacing tables of the same name. Loaded datasets
are recorded in the database so that later runs can use them as sources.

Column types are inferred unless a catalog entry of the same name
declares them.

Examples:
  strata load --sqlite ./strata.db diamonds=diamonds.csv --time-attribute time
  strata load --sqlite ./strata.db wiki.parquet --sources sources.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "sqlite", "", "path to SQLite database (required)")
	cmd.Flags().StringArrayVar(&opts.Sources, "sources", nil, "catalog declaring dataset schemas (repeatable)")
	cmd.Flags().StringVar(&opts.TimeAttribute, "time-attribute", "", "time column of datasets without a catalog entry")
	_ = cmd.MarkFlagRequired("sqlite")

	return cmd
}

func runLoad(opts *LoadOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	files, err := parseDataFlags(args)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLoad, "invalid arguments", err)
	}
	cat, err := loadCatalog(opts.Sources)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLoad, "failed to load sources", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLoad, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	loaded := make([]LoadedDataset, 0, len(files))
	for _, file := range files {
		table, timeAttr := file.Name, opts.TimeAttribute
		var lo loader.Options
		if desc, ok := cat.Sources[file.Name]; ok {
			table, timeAttr = desc.Source, desc.TimeAttribute
			lo.Attributes = desc.Attributes
		}
		ds, err := loader.Load(file.Path, lo)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeLoad, fmt.Sprintf("failed to load dataset %q", file.Name), err)
		}
		if err := st.LoadDataset(ctx, table, timeAttr, ds); err != nil {
			return f.fail(ExitCommandError, ErrCodeLoad, fmt.Sprintf("failed to store dataset %q", file.Name), err)
		}
		slog.Debug("dataset loaded", "name", table, "rows", len(ds.Data))
		loaded = append(loaded, LoadedDataset{Name: table, Rows: len(ds.Data), Attributes: ds.Attributes})
	}

	if f.Format == "json" {
		return f.Success(loaded)
	}
	for _, l := range loaded {
		f.Check(true, fmt.Sprintf("%s (%d rows)", l.Name, l.Rows))
	}
	return nil
}
