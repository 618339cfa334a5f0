package table

import "testing"

func mustSchema(t *testing.T) Schema {
	t.Helper()
	s, err := NewSchema([]string{"first", "last"}, []string{"born"})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func row(first, last, born string) Row {
	return NewRow([][]byte{[]byte(first), []byte(last)}, [][]byte{[]byte(born)})
}

func TestInsertKeepsCanonicalOrder(t *testing.T) {
	tb := New(mustSchema(t))
	for _, r := range []Row{
		row("Ringo", "Starr", "1940"),
		row("George", "Harrison", "1943"),
		row("Paul", "McCartney", "1942"),
		row("John", "Lennon", "1940"),
	} {
		if err := tb.Insert(r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	wantOrder := []string{"George", "John", "Paul", "Ringo"}
	for i, r := range tb.Rows() {
		if string(r.Primary[0]) != wantOrder[i] {
			t.Fatalf("row %d: got %s want %s", i, r.Primary[0], wantOrder[i])
		}
	}
}

func TestInsertRejectsDuplicatePrimaryTuple(t *testing.T) {
	tb := New(mustSchema(t))
	if err := tb.Insert(row("Paul", "McCartney", "1942")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := tb.Insert(row("Paul", "McCartney", "1943"))
	if err == nil {
		t.Fatal("expected DuplicatePrimaryTupleError, got nil")
	}
	if _, ok := err.(*DuplicatePrimaryTupleError); !ok {
		t.Fatalf("expected *DuplicatePrimaryTupleError, got %T", err)
	}
}

func TestFingerprintStableUnderInsertionOrder(t *testing.T) {
	a := New(mustSchema(t))
	for _, r := range []Row{row("Paul", "McCartney", "1942"), row("Ringo", "Starr", "1940")} {
		_ = a.Insert(r)
	}
	b := New(mustSchema(t))
	for _, r := range []Row{row("Ringo", "Starr", "1940"), row("Paul", "McCartney", "1942")} {
		_ = b.Insert(r)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("fingerprint depends on insertion order, should not")
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := New(mustSchema(t))
	_ = a.Insert(row("Paul", "McCartney", "1942"))
	b := New(mustSchema(t))
	_ = b.Insert(row("Paul", "McCartney", "1943"))
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("different subsidiary values produced the same fingerprint")
	}
}

func TestGet(t *testing.T) {
	tb := New(mustSchema(t))
	_ = tb.Insert(row("Paul", "McCartney", "1942"))
	got, ok := tb.Get(PrimaryTuple{[]byte("Paul"), []byte("McCartney")})
	if !ok {
		t.Fatal("Get: not found")
	}
	if string(got.Subsidiary[0]) != "1942" {
		t.Fatalf("Get: got born=%s", got.Subsidiary[0])
	}
	if _, ok := tb.Get(PrimaryTuple{[]byte("John"), []byte("Lennon")}); ok {
		t.Fatal("Get: found nonexistent row")
	}
}
