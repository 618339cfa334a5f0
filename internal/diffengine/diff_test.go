package diffengine

import (
	"testing"

	"github.com/leechsync/leech/internal/table"
)

func schema(t *testing.T) table.Schema {
	t.Helper()
	s, err := table.NewSchema([]string{"first", "last"}, []string{"born"})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func row(first, last, born string) table.Row {
	return table.NewRow([][]byte{[]byte(first), []byte(last)}, [][]byte{[]byte(born)})
}

func build(t *testing.T, rows ...table.Row) *table.Table {
	t.Helper()
	tb, err := table.FromRows(schema(t), rows)
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	return tb
}

// TestBeatlesScenario reproduces spec §8 scenario 1/2 literally.
func TestBeatlesScenario(t *testing.T) {
	prev := build(t,
		row("Paul", "McCartney", "1942"),
		row("Ringo", "Starr", "1940"),
		row("John", "Lennon", "1940"),
		row("George", "Harrison", "1943"),
	)
	curr := build(t,
		row("Paul", "McCartney", "1943"),
		row("John", "Lennon", "1940"),
		row("George", "Harrison", "1943"),
		row("Janis", "Joplin", "1943"),
	)

	res, err := Compute("BTL", schema(t), prev, curr)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}

	if len(res.Diff.Ops) != 3 {
		t.Fatalf("expected 3 ops (UPDATE Paul, DELETE Ringo, INSERT Janis), got %d: %+v", len(res.Diff.Ops), res.Diff.Ops)
	}
	// Ops are sorted by primary tuple: George(skip, unchanged not present), Janis, John(skip), Paul, Ringo
	// lexicographic order of remaining ops' first names: Janis < Paul < Ringo
	if res.Diff.Ops[0].Tag != Insert || string(res.Diff.Ops[0].Primary[0]) != "Janis" {
		t.Fatalf("op0 = %+v, want INSERT Janis", res.Diff.Ops[0])
	}
	if res.Diff.Ops[1].Tag != Update || string(res.Diff.Ops[1].Primary[0]) != "Paul" {
		t.Fatalf("op1 = %+v, want UPDATE Paul", res.Diff.Ops[1])
	}
	if string(res.Diff.Ops[1].Subsidiary[0]) != "1943" {
		t.Fatalf("op1 subsidiary = %s, want 1943", res.Diff.Ops[1].Subsidiary[0])
	}
	if res.Diff.Ops[2].Tag != Delete || string(res.Diff.Ops[2].Primary[0]) != "Ringo" {
		t.Fatalf("op2 = %+v, want DELETE Ringo", res.Diff.Ops[2])
	}
}

func TestComputeIsMinimal(t *testing.T) {
	prev := build(t, row("A", "A", "1"))
	curr := build(t, row("A", "A", "1"))
	res, err := Compute("BTL", schema(t), prev, curr)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(res.Diff.Ops) != 0 {
		t.Fatalf("identical tables produced a non-empty diff: %+v", res.Diff.Ops)
	}
}

func TestApplyRoundTrip(t *testing.T) {
	prev := build(t,
		row("Paul", "McCartney", "1942"),
		row("Ringo", "Starr", "1940"),
	)
	curr := build(t,
		row("Paul", "McCartney", "1943"),
		row("Janis", "Joplin", "1943"),
	)
	res, err := Compute("BTL", schema(t), prev, curr)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	got, err := Apply(schema(t), prev, res.Diff)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.Fingerprint() != curr.Fingerprint() {
		t.Fatal("Apply(Compute(prev, curr), prev) != curr")
	}
}

func TestOversizeRecordSkippedWithWarning(t *testing.T) {
	prev := build(t)
	huge := make([]byte, MaxRecordBytes+1)
	curr := build(t, table.NewRow([][]byte{[]byte("A"), []byte("A")}, [][]byte{huge}))
	res, err := Compute("BTL", schema(t), prev, curr)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(res.Diff.Ops) != 0 {
		t.Fatalf("oversize row was not skipped: %+v", res.Diff.Ops)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(res.Warnings))
	}
}
