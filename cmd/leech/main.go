// Command leech is the CLI front end of the sync engine: commit, diff,
// patch, rebase, purge, history, plus the supplemented verify and inspect
// diagnostics (spec §6).
package main

import (
	"fmt"
	"os"

	"github.com/leechsync/leech/internal/leecherr"

	// Reference adapters register themselves by id on import, the way the
	// teacher wires its own storage backends via blank imports in cmd/bd.
	_ "github.com/leechsync/leech/internal/adapter/csv"
	_ "github.com/leechsync/leech/internal/adapter/sqlite"
)

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(leecherr.ExitCode(err))
}
