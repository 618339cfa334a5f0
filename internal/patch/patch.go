// Package patch implements the patch engine of spec §4.7: applying a
// composite diff, per table, against a destination adapter, qualifying
// every primary tuple with a (qualifier_field, qualifier_value) pair so
// one hub destination can consolidate rows from many hosts.
package patch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/leechsync/leech/internal/adapter"
	"github.com/leechsync/leech/internal/block"
	"github.com/leechsync/leech/internal/diffengine"
	"github.com/leechsync/leech/internal/leecherr"
	"github.com/leechsync/leech/internal/table"
)

// Qualifier names the hub-side column added ahead of every table's primary
// tuple and the value stamped into it for this patch (spec §4.2, §4.7).
type Qualifier struct {
	Field string
	Value string
}

// Store is the peer-pointer surface patch needs. Declared narrowly (rather
// than importing store.Store's fingerprint type directly here) so patch
// stays decoupled from the on-disk store; see patchStoreAdapter in cmd/leech for
// the glue that satisfies it.
type Store interface {
	PeerPointer(hostID string, id table.TableId) (Fingerprint, error)
	SetPeerPointers(hostID string, updates map[table.TableId]Fingerprint) error
}

// Fingerprint is a local alias so this package does not need to import
// internal/fingerprint just to spell the store interface above; it is
// defined identically and the two are interchangeable at call sites since
// Go structural arrays convert freely.
type Fingerprint = [20]byte

// AdapterOpener resolves a destination adapter for a TableId. Supplied by
// the caller (the patch command), which knows the configured adapter id and
// connection params per table (spec §6).
type AdapterOpener func(id table.TableId, schema table.Schema) (adapter.Destination, error)

// PartialCommitError reports that committing the per-table transactions of
// a patch failed partway through (spec §4.7 step 3, §7: PartialCommit).
// CorrelationID lets an operator tie this report back to the patch file and
// log lines describing the same attempt.
type PartialCommitError struct {
	CorrelationID string
	Committed     []table.TableId
	Failed        table.TableId
	Err           error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("patch: partial commit [%s]: committed %v before %s failed: %v",
		e.CorrelationID, e.Committed, e.Failed, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

// Report summarizes one successful or idempotent Apply call.
type Report struct {
	CorrelationID     string
	Applied           []table.TableId
	SkippedIdempotent []table.TableId
}

// Apply applies p against destinations opened by open, qualifying every
// primary tuple with q, and returns a Report describing what changed. It
// implements spec §4.7 in full, including the idempotence short-circuit and
// the two-phase-ish commit/rollback/PartialCommit behavior.
func Apply(ctx context.Context, st Store, p block.Patch, q Qualifier, open AdapterOpener) (Report, error) {
	correlationID := uuid.New().String()
	report := Report{CorrelationID: correlationID}

	pending := make([]block.TableEntry, 0, len(p.Entries))
	for _, e := range p.Entries {
		current, err := st.PeerPointer(q.Value, e.TableID)
		if err != nil {
			return Report{}, fmt.Errorf("patch: checking peer pointer for %s: %w", e.TableID, err)
		}
		if current == p.To[e.TableID] {
			report.SkippedIdempotent = append(report.SkippedIdempotent, e.TableID)
			continue
		}
		pending = append(pending, e)
	}
	if len(pending) == 0 {
		return report, nil
	}

	opened := make(map[table.TableId]adapter.Destination, len(pending))
	defer func() {
		for _, d := range opened {
			_ = d.Close(ctx)
		}
	}()

	for _, e := range pending {
		dest, err := open(e.TableID, qualifiedSchema(q, e.Schema))
		if err != nil {
			return Report{}, leecherr.New(leecherr.KindAdapterUnavailable, "patch.apply",
				fmt.Errorf("opening destination for %s: %w", e.TableID, err))
		}
		opened[e.TableID] = dest
		if err := dest.BeginTransaction(ctx); err != nil {
			rollbackAll(ctx, opened, pending)
			return Report{}, leecherr.New(leecherr.KindPatchFailed, "patch.apply",
				fmt.Errorf("beginning transaction for %s: %w", e.TableID, err))
		}
	}

	for _, e := range pending {
		dest := opened[e.TableID]
		if p.Rebase {
			if err := deleteQualifiedSlice(ctx, dest, q); err != nil {
				rollbackAll(ctx, opened, pending)
				return Report{}, leecherr.New(leecherr.KindPatchFailed, "patch.apply",
					fmt.Errorf("clearing qualified slice for %s: %w", e.TableID, err))
			}
		}
		if err := applyOps(ctx, dest, q, e.Diff); err != nil {
			rollbackAll(ctx, opened, pending)
			return Report{}, leecherr.New(leecherr.KindPatchFailed, "patch.apply",
				fmt.Errorf("applying diff for %s: %w", e.TableID, err))
		}
	}

	var committed []table.TableId
	for _, e := range pending {
		if err := opened[e.TableID].CommitTransaction(ctx); err != nil {
			if len(committed) == 0 {
				rollbackAll(ctx, opened, pending)
				return Report{}, leecherr.New(leecherr.KindPatchFailed, "patch.apply",
					fmt.Errorf("committing %s: %w", e.TableID, err))
			}
			return Report{}, leecherr.New(leecherr.KindPartialCommit, "patch.apply", &PartialCommitError{
				CorrelationID: correlationID,
				Committed:     committed,
				Failed:        e.TableID,
				Err:           err,
			})
		}
		committed = append(committed, e.TableID)
	}

	updates := make(map[table.TableId]Fingerprint, len(pending))
	for _, e := range pending {
		updates[e.TableID] = p.To[e.TableID]
	}
	if err := st.SetPeerPointers(q.Value, updates); err != nil {
		return Report{}, fmt.Errorf("patch: recording peer pointers: %w", err)
	}

	report.Applied = committed
	return report, nil
}

func rollbackAll(ctx context.Context, opened map[table.TableId]adapter.Destination, pending []block.TableEntry) {
	for _, e := range pending {
		if d, ok := opened[e.TableID]; ok {
			_ = d.RollbackTransaction(ctx)
		}
	}
}

// applyOps applies d's operations, in order, against dest, qualifying every
// primary tuple with q (spec §4.7 step 2).
func applyOps(ctx context.Context, dest adapter.Destination, q Qualifier, d diffengine.Diff) error {
	for _, op := range d.Ops {
		qualified := qualify(q, op.Primary)
		switch op.Tag {
		case diffengine.Insert:
			if err := dest.Insert(ctx, table.NewRow(qualified, op.Subsidiary)); err != nil {
				return err
			}
		case diffengine.Update:
			if err := dest.Update(ctx, qualified, op.Subsidiary); err != nil {
				return err
			}
		case diffengine.Delete:
			if err := dest.Delete(ctx, qualified); err != nil {
				return err
			}
		default:
			return fmt.Errorf("patch: unknown op tag %q", byte(op.Tag))
		}
	}
	return nil
}

// deleteQualifiedSlice removes every row at dest whose qualified primary
// tuple carries q's value, so a rebase can reinsert the host's current
// source state from a clean slate (spec §4.8: "DELETE-all followed by
// INSERT-all, scoped to the qualifier"). Rows belonging to other hosts
// (a different qualifier value) are left untouched.
func deleteQualifiedSlice(ctx context.Context, dest adapter.Destination, q Qualifier) error {
	rows, err := dest.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("reading destination for rebase: %w", err)
	}
	for _, row := range rows {
		if len(row.Primary) == 0 || string(row.Primary[0]) != q.Value {
			continue
		}
		if err := dest.Delete(ctx, row.Tuple()); err != nil {
			return err
		}
	}
	return nil
}

// qualify prepends (qualifier_field's value) to a primary tuple, per spec
// §4.2's "an implicit leading qualifier field at the destination" and §4.7
// step 2 ("all primary tuples are prefixed by (qualifier_field,
// qualifier_value)").
func qualify(q Qualifier, primary table.PrimaryTuple) table.PrimaryTuple {
	out := make(table.PrimaryTuple, 0, len(primary)+1)
	out = append(out, []byte(q.Value))
	out = append(out, primary...)
	return out
}

// qualifiedSchema is the shape the destination adapter actually observes:
// the source schema with q's field as a real leading primary column, so the
// adapter creates/reports that column rather than being handed rows one
// field wider than the schema it was opened with (spec §4.2: "a real
// leading primary column at the destination", grounded on
// original_source/tests/test_leech.py's destination header
// ["host_id", "first_name", "last_name", "born"]).
func qualifiedSchema(q Qualifier, schema table.Schema) table.Schema {
	if q.Field == "" {
		return schema
	}
	primary := make([]string, 0, len(schema.Primary)+1)
	primary = append(primary, q.Field)
	primary = append(primary, schema.Primary...)
	return table.Schema{
		Primary:    primary,
		Subsidiary: append([]string(nil), schema.Subsidiary...),
	}
}
