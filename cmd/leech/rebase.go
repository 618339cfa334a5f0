package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leechsync/leech/internal/block"
	"github.com/leechsync/leech/internal/fingerprint"
)

var rebaseFileFlag string

var rebaseCmd = &cobra.Command{
	Use:   "rebase",
	Short: "Produce a patch that replaces a host's destination slice with the current source state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openContext("rebase")
		if err != nil {
			return err
		}
		return runRebase(a, rebaseFileFlag)
	},
}

func init() {
	rebaseCmd.Flags().StringVar(&rebaseFileFlag, "file", "", "patch file to write")
	_ = rebaseCmd.MarkFlagRequired("file")
}

// runRebase composes every configured table's full current state as a
// from-genesis (null-fingerprint) diff and marks the resulting patch as a
// rebase (spec §4.8): at apply time this tells patch.Apply to clear the
// qualifier's existing destination rows before inserting the new ones,
// rather than treating the full INSERT set as an ordinary diff-from-null
// against an already-empty destination.
func runRebase(a *appContext, file string) error {
	p, err := buildPatch(a, fingerprint.Null, true)
	if err != nil {
		return err
	}
	raw, err := block.EncodePatch(p)
	if err != nil {
		return fmt.Errorf("rebase: encoding patch: %w", err)
	}
	if err := writeFileAtomic(file, raw); err != nil {
		return fmt.Errorf("rebase: writing %s: %w", file, err)
	}
	a.log.Info("wrote rebase patch", "file", file, "tables", len(p.Entries))
	return nil
}
