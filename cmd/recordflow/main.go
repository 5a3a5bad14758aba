// Command recordflow is the CLI entry point for the migration engine:
// it wires configuration, logging, the connection pool, rate
// controller, and phase pipeline together and exposes export/import/
// plan/validate-config subcommands, the way the teacher's cmd/server
// wires its HTTP stack in main.go.
package main

import (
	"fmt"
	"os"

	"github.com/lucernlabs/recordflow/cmd/recordflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
