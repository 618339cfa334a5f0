package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leechsync/leech/internal/block"
	"github.com/leechsync/leech/internal/diffengine"
	"github.com/leechsync/leech/internal/fingerprint"
	"github.com/leechsync/leech/internal/table"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Truncate each table's chain to chain_length most recent blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openContext("purge")
		if err != nil {
			return err
		}
		return a.withLock(func() error { return runPurge(cmd.Context(), a) })
	},
}

// runPurge drops the oldest blocks of each merge_blocks-eligible table
// beyond the configured chain_length, synthesizing a merge block (spec
// §4.8, §9) to stand in as the new genesis. It is a no-op when chain_length
// is unset.
func runPurge(ctx context.Context, a *appContext) error {
	if a.cfg.ChainLength == nil {
		return nil
	}
	n := *a.cfg.ChainLength

	for _, id := range a.cfg.TableIDs() {
		tc := a.cfg.Tables[id]
		if !tc.MergeBlocks {
			continue
		}
		schema, err := tc.Schema()
		if err != nil {
			return err
		}
		head, err := a.store.Head(id)
		if err != nil {
			return err
		}
		if head.IsNull() {
			continue
		}
		newHead, mergeFP, retired, err := purgeTable(a, id, schema, head, n)
		if err != nil {
			return fmt.Errorf("purge: table %s: %w", id, err)
		}
		if len(retired) == 0 {
			continue
		}
		if err := a.store.SetHead(id, newHead); err != nil {
			return err
		}
		if err := rewriteStalePeerPointers(a, id, retired, mergeFP); err != nil {
			return err
		}
		for _, fp := range retired {
			if err := a.store.RemoveBlock(fp); err != nil {
				return err
			}
		}
		a.log.Info("purged chain", "table", id, "retired_blocks", len(retired), "new_head", newHead.String())
	}
	return nil
}

// purgeTable truncates one table's chain to the n most recent blocks,
// relinking the kept suffix onto a new synthetic merge block and returning
// the new head fingerprint, the merge block's own fingerprint, and the full
// set of fingerprints this rewrite retires (every block that no longer
// exists under its old fingerprint, whether dropped outright or merely
// relinked to a new parent).
func purgeTable(a *appContext, id table.TableId, schema table.Schema, head fingerprint.FP, n int) (fingerprint.FP, fingerprint.FP, []fingerprint.FP, error) {
	chain, err := a.store.Walk(id, fingerprint.Null, head)
	if err != nil {
		return fingerprint.FP{}, fingerprint.FP{}, nil, err
	}
	if len(chain) <= n {
		return head, fingerprint.FP{}, nil, nil
	}
	// Dropping dropCount blocks into one merge block leaves dropCount-1 fewer
	// blocks than the chain had; to land on exactly n reachable blocks
	// (1 merge block + (n-1) kept blocks) dropCount must be len(chain)-n+1,
	// not len(chain)-n.
	dropCount := len(chain) - n + 1

	retired := make([]fingerprint.FP, 0, len(chain))
	for _, b := range chain {
		fp, err := block.ID(b)
		if err != nil {
			return fingerprint.FP{}, fingerprint.FP{}, nil, err
		}
		retired = append(retired, fp)
	}

	mergeState := table.New(schema)
	for i := 0; i < dropCount; i++ {
		mergeState, err = diffengine.Apply(schema, mergeState, chain[i].Diff)
		if err != nil {
			return fingerprint.FP{}, fingerprint.FP{}, nil, err
		}
	}
	mergeDiff := diffengine.Diff{TableID: id, Schema: schema}
	for _, row := range mergeState.Rows() {
		mergeDiff.Ops = append(mergeDiff.Ops, diffengine.Op{Tag: diffengine.Insert, Primary: row.Tuple(), Subsidiary: row.Subsidiary})
	}
	mergeBlock := block.Block{
		Parent:           fingerprint.Null,
		TableID:          id,
		Timestamp:        chain[dropCount-1].Timestamp,
		Schema:           schema,
		Diff:             mergeDiff,
		StateFingerprint: mergeState.Fingerprint(),
	}
	mergeFP, err := a.store.PutBlock(mergeBlock)
	if err != nil {
		return fingerprint.FP{}, fingerprint.FP{}, nil, err
	}

	prevFP := mergeFP
	for i := dropCount; i < len(chain); i++ {
		b := chain[i]
		b.Parent = prevFP
		newFP, err := a.store.PutBlock(b)
		if err != nil {
			return fingerprint.FP{}, fingerprint.FP{}, nil, err
		}
		prevFP = newFP
	}
	return prevFP, mergeFP, retired, nil
}

// rewriteStalePeerPointers retargets every recorded peer pointer for id that
// names one of the retired (now-superseded) fingerprints to the new merge
// block's id, rather than refusing the purge (spec §9 Open Question,
// resolved per original_source/'s simulator policy -- see DESIGN.md).
func rewriteStalePeerPointers(a *appContext, id table.TableId, retired []fingerprint.FP, mergeFP fingerprint.FP) error {
	stale := make(map[fingerprint.FP]bool, len(retired))
	for _, fp := range retired {
		stale[fp] = true
	}

	hosts, err := a.store.Peers()
	if err != nil {
		return err
	}
	for _, host := range hosts {
		ptr, err := a.store.PeerPointer(host, id)
		if err != nil {
			return err
		}
		if ptr.IsNull() || !stale[ptr] {
			continue
		}
		if err := a.store.SetPeerPointers(host, map[table.TableId]fingerprint.FP{id: mergeFP}); err != nil {
			return err
		}
		a.log.Info("rewrote stale peer pointer", "table", id, "peer", host, "new_pointer", mergeFP.String())
	}
	return nil
}
