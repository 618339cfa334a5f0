package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leechsync/leech/internal/block"
	"github.com/leechsync/leech/internal/diffengine"
	"github.com/leechsync/leech/internal/leecherr"
	"github.com/leechsync/leech/internal/table"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Read every configured source adapter and append a block per changed table",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openContext("commit")
		if err != nil {
			return err
		}
		return a.withLock(func() error { return runCommit(cmd.Context(), a) })
	},
}

// tableSnapshot is one table's freshly-read source state, gathered
// concurrently across tables before the (strictly sequential) diff and
// block-write phase begins.
type tableSnapshot struct {
	id     table.TableId
	schema table.Schema
	rows   []table.Row
}

func runCommit(ctx context.Context, a *appContext) error {
	ids := a.cfg.TableIDs()
	snapshots := make([]tableSnapshot, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			tc := a.cfg.Tables[id]
			schema, err := tc.Schema()
			if err != nil {
				return leecherr.New(leecherr.KindConfigInvalid, "commit", err)
			}
			src, err := openSource(gctx, tc, schema)
			if err != nil {
				return err
			}
			defer src.Close(gctx)
			rows, err := src.ReadAll(gctx)
			if err != nil {
				return leecherr.New(leecherr.KindAdapterUnavailable, "commit", fmt.Errorf("table %s: %w", id, err))
			}
			snapshots[i] = tableSnapshot{id: id, schema: schema, rows: rows}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, snap := range snapshots {
		current, err := table.FromRows(snap.schema, snap.rows)
		if err != nil {
			return fmt.Errorf("commit: table %s: %w", snap.id, err)
		}
		head, err := a.store.Head(snap.id)
		if err != nil {
			return err
		}
		previous, err := block.Materialize(a.store, snap.schema, head)
		if err != nil {
			return err
		}
		res, err := diffengine.Compute(snap.id, snap.schema, previous, current)
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			a.log.Warn("oversize record skipped", "table", snap.id, "reason", w.Reason)
		}
		if len(res.Diff.Ops) == 0 {
			a.log.Info("no changes", "table", snap.id)
			continue
		}

		b := block.Block{
			Parent:           head,
			TableID:          snap.id,
			Timestamp:        time.Now().UTC(),
			Schema:           snap.schema,
			Diff:             res.Diff,
			StateFingerprint: current.Fingerprint(),
		}
		fp, err := a.store.PutBlock(b)
		if err != nil {
			return err
		}
		if err := a.store.SetHead(snap.id, fp); err != nil {
			return err
		}
		a.log.Info("committed block", "table", snap.id, "block", fp.String(), "ops", len(res.Diff.Ops))
	}

	if a.cfg.AutoPurge {
		return runPurge(ctx, a)
	}
	return nil
}
