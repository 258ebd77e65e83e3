package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
)

// ValidationResult holds the outcome of validating an expression.
type ValidationResult struct {
	Valid bool    `json:"valid"`
	Type  ir.Type `json:"type,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Sources []string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <expression>",
		Short: "Resolve and type check an expression",
		Long: `Resolve an expression against source descriptions and report its
output type. References that cannot be resolved and ill-typed actions are
reported with their error code.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Sources, "sources", nil, "catalog file or directory (repeatable, required)")
	_ = cmd.MarkFlagRequired("sources")

	return cmd
}

func runValidate(opts *ValidateOptions, exprPath string, cmd *cobra.Command) error {
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

	prepared, err := engine.Prepare(e, externals)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeResolve, "invalid expression", err)
	}

	result := ValidationResult{Valid: true, Type: prepared.Type()}
	if f.Format == "json" {
		return f.Success(result)
	}
	f.Check(true, fmt.Sprintf("valid: %s", result.Type))
	return nil
}
