package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/external"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Sources []string
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <expression>",
		Short: "Print the queries an expression compiles to",
		Long: `Compile an expression against source descriptions and print the
backend queries it would issue, without contacting any backend.

The expression file holds the JSON (or YAML) interchange form.

Examples:
  strata simulate top-cuts.json --sources sources.yaml
  strata simulate top-cuts.yaml --sources ./catalog --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Sources, "sources", nil, "catalog file or directory (repeatable, required)")
	_ = cmd.MarkFlagRequired("sources")

	return cmd
}

func runSimulate(opts *SimulateOptions, exprPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	e, err := readExpression(exprPath)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLoad, "failed to read expression", err)
	}
	cat, err := loadCatalog(opts.Sources)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLoad, "failed to load sources", err)
	}
	externals, err := cat.Externals()
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLoad, "failed to load sources", err)
	}
	f.VerboseLog("Loaded %d source(s)", len(externals))

	queries, err := engine.SimulateQueryPlan(e, externals)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeResolve, "failed to plan expression", err)
	}

	if f.Format == "json" {
		return f.Success(queries)
	}
	return writeQueries(f, queries)
}

// writeQueries prints each query under a numbered header; Druid queries
// are indented JSON.
func writeQueries(f *OutputFormatter, queries []external.Query) error {
	for i, q := range queries {
		fmt.Fprintf(f.Writer, "-- query %d (%s)\n", i+1, q.Engine)
		if q.Druid == nil {
			fmt.Fprintln(f.Writer, q.SQL)
			continue
		}
		data, err := json.MarshalIndent(q.Druid, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(f.Writer, string(data))
	}
	if len(queries) == 0 {
		fmt.Fprintln(f.Writer, "-- no queries")
	}
	return nil
}
