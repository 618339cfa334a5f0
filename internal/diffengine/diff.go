// Package diffengine computes the minimal row-level diff between two
// in-memory tables of the same schema (spec §4.5).
package diffengine

import (
	"fmt"

	"github.com/leechsync/leech/internal/table"
)

// Tag identifies the kind of a diff operation.
type Tag byte

const (
	Insert Tag = 'I'
	Delete Tag = 'D'
	Update Tag = 'U'
)

func (t Tag) String() string {
	switch t {
	case Insert:
		return "INSERT"
	case Delete:
		return "DELETE"
	case Update:
		return "UPDATE"
	default:
		return fmt.Sprintf("Tag(%q)", byte(t))
	}
}

// Op is one diff operation. Primary is always set; Subsidiary is set for
// INSERT and UPDATE only (spec §3).
type Op struct {
	Tag        Tag
	Primary    table.PrimaryTuple
	Subsidiary [][]byte
}

// Diff is an ordered, minimal sequence of operations against one table: at
// most one operation per primary tuple, sorted by primary tuple (spec §3).
type Diff struct {
	TableID table.TableId
	Schema  table.Schema
	Ops     []Op
}

// Warning describes a row skipped because its canonical encoding would
// exceed MaxRecordBytes (spec §4.5, §9: a policy knob, not a silent
// truncation -- callers must surface this, not just log it).
type Warning struct {
	Tuple  table.PrimaryTuple
	Reason string
}

// Result bundles a diff together with any warnings raised while computing
// it.
type Result struct {
	Diff     Diff
	Warnings []Warning
}

// MaxRecordBytes bounds the canonical-encoded size of a single row (primary
// + subsidiary fields, length-prefixed). 4024 is derived from a 4096-byte
// transport frame minus fixed block/patch framing overhead (spec §4.5).
const MaxRecordBytes = 4024

// recordSize returns the canonical-encoded byte size of a full row: every
// field contributes a 4-byte length prefix plus its own octets.
func recordSize(primary table.PrimaryTuple, subsidiary [][]byte) int {
	n := 0
	for _, f := range primary {
		n += 4 + len(f)
	}
	for _, f := range subsidiary {
		n += 4 + len(f)
	}
	return n
}

// Compute produces the minimal diff taking "previous" into "current", both
// tables of the same schema. Rows whose canonical size would exceed
// MaxRecordBytes are skipped (with a Warning) rather than emitted.
func Compute(tableID table.TableId, schema table.Schema, previous, current *table.Table) (Result, error) {
	if !previous.Schema.Equal(schema) || !current.Schema.Equal(schema) {
		return Result{}, fmt.Errorf("diffengine: schema mismatch between tables and requested schema")
	}

	res := Result{Diff: Diff{TableID: tableID, Schema: schema}}

	a := previous.Rows()
	b := current.Rows()
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i].Tuple().Compare(b[j].Tuple()) < 0):
			// present only in previous -> DELETE
			res.Diff.Ops = append(res.Diff.Ops, Op{Tag: Delete, Primary: a[i].Tuple()})
			i++
		case i >= len(a) || b[j].Tuple().Compare(a[i].Tuple()) < 0:
			// present only in current -> INSERT
			row := b[j]
			if recordSize(row.Tuple(), row.Subsidiary) > MaxRecordBytes {
				res.Warnings = append(res.Warnings, Warning{
					Tuple:  row.Tuple(),
					Reason: "oversize record skipped: exceeds MaxRecordBytes",
				})
			} else {
				res.Diff.Ops = append(res.Diff.Ops, Op{Tag: Insert, Primary: row.Tuple(), Subsidiary: row.Subsidiary})
			}
			j++
		default:
			// present in both
			if !a[i].SubsidiaryEqual(b[j]) {
				row := b[j]
				if recordSize(row.Tuple(), row.Subsidiary) > MaxRecordBytes {
					res.Warnings = append(res.Warnings, Warning{
						Tuple:  row.Tuple(),
						Reason: "oversize record skipped: exceeds MaxRecordBytes",
					})
				} else {
					res.Diff.Ops = append(res.Diff.Ops, Op{Tag: Update, Primary: row.Tuple(), Subsidiary: row.Subsidiary})
				}
			}
			i++
			j++
		}
	}
	return res, nil
}

// Apply materializes the effect of applying d to base, returning a new
// table. base is not mutated.
func Apply(schema table.Schema, base *table.Table, d Diff) (*table.Table, error) {
	out := table.New(schema)
	for _, r := range base.Rows() {
		if err := out.Insert(r.Clone()); err != nil {
			return nil, err
		}
	}
	for _, op := range d.Ops {
		switch op.Tag {
		case Insert, Update:
			out.Upsert(table.NewRow(op.Primary, op.Subsidiary))
		case Delete:
			out.Delete(op.Primary)
		default:
			return nil, fmt.Errorf("diffengine: unknown op tag %q", byte(op.Tag))
		}
	}
	return out, nil
}
