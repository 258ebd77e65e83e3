package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/cache"
	"github.com/roach88/strata/internal/catalog"
	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/loader"
	"github.com/roach88/strata/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Sources     []string
	Data        []string
	Database    string
	CacheDir    string
	CacheTTL    time.Duration
	Retries     int
	Concurrency int
	MaxQueries  int

	// IDGenerator overrides request IDs (for testing). If nil, the
	// executor's UUIDv7 default is used.
	IDGenerator engine.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <expression>",
		Short: "Compute an expression",
		Long: `Compute an expression and print its value.

With --data only, the named files are loaded into memory and the
expression is evaluated in process. With --sqlite the expression is
compiled to SQL and run against the database; --data files are then
loaded into it first. Sources come from --sources, or from the datasets
already loaded into the database.

Examples:
  strata run top-cuts.json --data diamonds=diamonds.csv
  strata run top-cuts.json --sqlite ./strata.db --sources sources.yaml
  strata run top-cuts.json --sqlite ./strata.db --cache ./cache --retries 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpression(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Sources, "sources", nil, "catalog file or directory (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Data, "data", nil, "dataset file as name=path (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "sqlite", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.CacheDir, "cache", "", "directory of the persistent result cache")
	cmd.Flags().DurationVar(&opts.CacheTTL, "cache-ttl", time.Hour, "lifetime of cached results")
	cmd.Flags().IntVar(&opts.Retries, "retries", engine.DefaultRetryOptions.Retries, "extra attempts for failed queries")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "maximum queries in flight")
	cmd.Flags().IntVar(&opts.MaxQueries, "max-queries", engine.DefaultMaxQueries, "query budget per evaluation")

	return cmd
}

func runExpression(opts *RunOptions, exprPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := readExpression(exprPath)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLoad, "failed to read expression", err)
	}
	files, err := parseDataFlags(opts.Data)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLoad, "invalid flags", err)
	}
	cat, err := loadCatalog(opts.Sources)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLoad, "failed to load sources", err)
	}

	var out ir.Value
	switch {
	case opts.Database != "":
		out, err = runOnSQLite(ctx, opts, f, e, cat, files)
	case len(files) > 0:
		out, err = runNative(ctx, f, e, cat, files)
	default:
		return f.fail(ExitCommandError, ErrCodeGeneric, "nothing to run against", fmt.Errorf("give --data or --sqlite"))
	}
	if err != nil {
		return err
	}

	if f.Format == "json" {
		return f.Success(nativeValue(out))
	}
	if ds, ok := out.(*ir.Dataset); ok {
		return writeDataset(f.Writer, ds)
	}
	return f.Success(out)
}

// loadFiles loads each data file, typed by its catalog entry when it has
// one.
func loadFiles(f *OutputFormatter, cat *catalog.Catalog, files []dataFile) (map[string]*ir.Dataset, error) {
	out := make(map[string]*ir.Dataset, len(files))
	for _, file := range files {
		var lo loader.Options
		if desc, ok := cat.Sources[file.Name]; ok {
			lo.Attributes = desc.Attributes
		}
		ds, err := loader.Load(file.Path, lo)
		if err != nil {
			return nil, f.fail(ExitCommandError, ErrCodeLoad, fmt.Sprintf("failed to load dataset %q", file.Name), err)
		}
		f.VerboseLog("Loaded %s: %d rows", file.Name, len(ds.Data))
		out[file.Name] = ds
	}
	return out, nil
}

func runNative(ctx context.Context, f *OutputFormatter, e expr.Expression, cat *catalog.Catalog, files []dataFile) (ir.Value, error) {
	data, err := loadFiles(f, cat, files)
	if err != nil {
		return nil, err
	}
	out, err := engine.ComputeNative(ctx, e, data)
	if err != nil {
		return nil, f.fail(ExitFailure, ErrCodeExecute, "failed to compute expression", err)
	}
	return out, nil
}

func runOnSQLite(ctx context.Context, opts *RunOptions, f *OutputFormatter, e expr.Expression, cat *catalog.Catalog, files []dataFile) (ir.Value, error) {
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeLoad, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	data, err := loadFiles(f, cat, files)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		source, timeAttr := file.Name, ""
		if desc, ok := cat.Sources[file.Name]; ok {
			source, timeAttr = desc.Source, desc.TimeAttribute
		}
		if err := st.LoadDataset(ctx, source, timeAttr, data[file.Name]); err != nil {
			return nil, f.fail(ExitCommandError, ErrCodeLoad, fmt.Sprintf("failed to load dataset %q", file.Name), err)
		}
	}

	var externals map[string]*external.External
	if len(cat.Sources) > 0 {
		externals, err = cat.Externals()
	} else {
		externals, err = st.Sources(ctx)
	}
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeLoad, "failed to load sources", err)
	}

	execOpts := []engine.Option{
		engine.WithRetry(engine.RetryOptions{Retries: opts.Retries, Delay: engine.DefaultRetryOptions.Delay}),
		engine.WithConcurrency(opts.Concurrency),
		engine.WithMaxQueries(opts.MaxQueries),
	}
	if opts.IDGenerator != nil {
		execOpts = append(execOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	if opts.CacheDir != "" {
		c, err := cache.OpenBadger(opts.CacheDir, cache.Options{TTL: opts.CacheTTL})
		if err != nil {
			return nil, f.fail(ExitCommandError, ErrCodeLoad, "failed to open cache", err)
		}
		defer c.Close()
		execOpts = append(execOpts, engine.WithCache(c))
	}

	x := engine.NewExecutor(st, execOpts...)
	out, err := x.Compute(ctx, e, externals)
	if err != nil {
		return nil, f.fail(ExitFailure, ErrCodeExecute, "failed to compute expression", err)
	}
	return out, nil
}
