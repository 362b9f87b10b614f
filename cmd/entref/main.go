// Command entref inspects entity schemas and stored entities, and runs
// entity scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/entref/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
