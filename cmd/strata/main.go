// Command strata plans and runs query expressions over SQL and Druid
// sources.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/strata/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			// Flag and argument errors are not reported by the commands.
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
