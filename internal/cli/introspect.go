package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/dialect"
	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/store"
)

// IntrospectOptions holds flags for the introspect command.
type IntrospectOptions struct {
	*RootOptions
	Database      string
	Table         string
	TimeAttribute string
}

// NewIntrospectCommand creates the introspect command.
func NewIntrospectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IntrospectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "introspect",
		Short: "Discover the attributes of a table",
		Long: `Ask the database for a table's columns and print them as attributes.

Example:
  strata introspect --sqlite ./strata.db --table diamonds --time-attribute time`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntrospect(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "sqlite", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table to describe (required)")
	cmd.Flags().StringVar(&opts.TimeAttribute, "time-attribute", "", "column holding the primary time")
	_ = cmd.MarkFlagRequired("sqlite")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func runIntrospect(opts *IntrospectOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
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

	bare, err := external.New(external.SourceDescription{
		Engine:        dialect.EngineSQLite,
		Source:        opts.Table,
		TimeAttribute: opts.TimeAttribute,
	})
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, "invalid source", err)
	}
	ext, err := engine.NewExecutor(st).Introspect(ctx, bare)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeExecute, "failed to introspect table", err)
	}

	attrs := ext.Attributes()
	if len(attrs) == 0 {
		return f.fail(ExitFailure, ErrCodeExecute, "failed to introspect table", errNoColumns(opts.Table))
	}
	if f.Format == "json" {
		return f.Success(ext.Description())
	}
	return writeAttributes(f.Writer, attrs)
}

func errNoColumns(table string) error {
	return fmt.Errorf("table %q has no columns or does not exist", table)
}
