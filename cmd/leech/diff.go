package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leechsync/leech/internal/block"
	"github.com/leechsync/leech/internal/chain"
	"github.com/leechsync/leech/internal/fingerprint"
	"github.com/leechsync/leech/internal/leecherr"
	"github.com/leechsync/leech/internal/table"
)

var (
	diffBlockFlag string
	diffFileFlag  string
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Emit a patch file with the composite diff from a given block to every current head",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openContext("diff")
		if err != nil {
			return err
		}
		return runDiff(a, diffBlockFlag, diffFileFlag)
	},
}

func init() {
	diffCmd.Flags().StringVar(&diffBlockFlag, "block", fingerprint.Null.String(), "fingerprint to diff from (defaults to the null fingerprint)")
	diffCmd.Flags().StringVar(&diffFileFlag, "file", "", "patch file to write")
	_ = diffCmd.MarkFlagRequired("file")
}

// buildPatch composes the diff from "from" to each configured table's
// current head and assembles a block.Patch, shared by diff and rebase
// (rebase additionally sets Rebase and always diffs from genesis).
func buildPatch(a *appContext, from fingerprint.FP, rebase bool) (block.Patch, error) {
	ids := a.cfg.TableIDs()
	schemas, err := a.cfg.Schemas()
	if err != nil {
		return block.Patch{}, leecherr.New(leecherr.KindConfigInvalid, "diff", err)
	}

	fromMap := make(map[table.TableId]fingerprint.FP, len(ids))
	toMap := make(map[table.TableId]fingerprint.FP, len(ids))
	for _, id := range ids {
		fromMap[id] = from
		head, err := a.store.Head(id)
		if err != nil {
			return block.Patch{}, err
		}
		toMap[id] = head
	}

	diffs, err := chain.ComposeMulti(a.store, schemas, ids, fromMap, toMap)
	if err != nil {
		return block.Patch{}, err
	}

	p := block.Patch{From: fromMap, To: toMap, Rebase: rebase}
	for _, id := range ids {
		p.Entries = append(p.Entries, block.TableEntry{TableID: id, Schema: schemas[id], Diff: diffs[id]})
	}
	p.SortEntries()
	return p, nil
}

func runDiff(a *appContext, fromStr, file string) error {
	from, err := fingerprint.Parse(fromStr)
	if err != nil {
		return leecherr.New(leecherr.KindBadInvocation, "diff", fmt.Errorf("parsing --block: %w", err))
	}
	p, err := buildPatch(a, from, false)
	if err != nil {
		return err
	}
	raw, err := block.EncodePatch(p)
	if err != nil {
		return fmt.Errorf("diff: encoding patch: %w", err)
	}
	if err := writeFileAtomic(file, raw); err != nil {
		return fmt.Errorf("diff: writing %s: %w", file, err)
	}
	a.log.Info("wrote patch", "file", file, "tables", len(p.Entries))
	return nil
}
