package table

import (
	"sort"

	"github.com/leechsync/leech/internal/fingerprint"
)

// Table is the set of rows for one TableId at one instant. Primary tuples
// are unique; iteration order is always lexicographic over the primary
// tuple, the canonical order used for hashing and serialization (spec §3).
type Table struct {
	Schema Schema
	rows   []Row // kept sorted by primary tuple at all times
}

// New returns an empty table for the given schema.
func New(schema Schema) *Table {
	return &Table{Schema: schema}
}

// FromRows builds a Table from an unordered slice of rows, sorting them and
// rejecting duplicate primary tuples.
func FromRows(schema Schema, rows []Row) (*Table, error) {
	t := New(schema)
	for _, r := range rows {
		if err := t.Insert(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the rows in canonical (sorted) order. The returned slice must
// not be mutated by the caller.
func (t *Table) Rows() []Row { return t.rows }

// search returns the index of tuple in t.rows and whether it was found,
// using the same convention as sort.Search.
func (t *Table) search(tuple PrimaryTuple) (int, bool) {
	i := sort.Search(len(t.rows), func(i int) bool {
		return t.rows[i].Tuple().Compare(tuple) >= 0
	})
	if i < len(t.rows) && t.rows[i].Tuple().Compare(tuple) == 0 {
		return i, true
	}
	return i, false
}

// Get returns the row with the given primary tuple, if any.
func (t *Table) Get(tuple PrimaryTuple) (Row, bool) {
	i, ok := t.search(tuple)
	if !ok {
		return Row{}, false
	}
	return t.rows[i], true
}

// DuplicatePrimaryTupleError is returned by Insert when a colliding primary
// tuple is already present in the table (spec §3 invariant: primary tuples
// are unique within a table).
type DuplicatePrimaryTupleError struct {
	Tuple PrimaryTuple
}

func (e *DuplicatePrimaryTupleError) Error() string {
	return "table: duplicate primary tuple"
}

// Insert adds row to the table in sorted position, rejecting a colliding
// primary tuple.
func (t *Table) Insert(row Row) error {
	tuple := row.Tuple()
	i, ok := t.search(tuple)
	if ok {
		return &DuplicatePrimaryTupleError{Tuple: tuple}
	}
	t.rows = append(t.rows, Row{})
	copy(t.rows[i+1:], t.rows[i:])
	t.rows[i] = row
	return nil
}

// Delete removes the row with the given primary tuple, if present. It is a
// no-op if the tuple is absent.
func (t *Table) Delete(tuple PrimaryTuple) {
	i, ok := t.search(tuple)
	if !ok {
		return
	}
	t.rows = append(t.rows[:i], t.rows[i+1:]...)
}

// Upsert inserts row if its primary tuple is absent, or replaces the
// existing row's subsidiary values otherwise. Position in the sorted order
// is preserved either way.
func (t *Table) Upsert(row Row) {
	tuple := row.Tuple()
	i, ok := t.search(tuple)
	if ok {
		t.rows[i] = row
		return
	}
	t.rows = append(t.rows, Row{})
	copy(t.rows[i+1:], t.rows[i:])
	t.rows[i] = row
}

// Fingerprint computes the 160-bit content fingerprint of the table: a
// terminator byte followed by the concatenation of canonical rows in
// lexicographic primary-tuple order (spec §4.1).
func (t *Table) Fingerprint() fingerprint.FP {
	b := fingerprint.NewBuilder()
	b.Byte(0x00)
	for _, r := range t.rows {
		for _, f := range r.Primary {
			b.Field(f)
		}
		for _, f := range r.Subsidiary {
			b.Field(f)
		}
	}
	return b.Sum()
}
