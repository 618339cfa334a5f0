package patch

import (
	"context"
	"errors"
	"testing"

	"github.com/leechsync/leech/internal/adapter"
	"github.com/leechsync/leech/internal/block"
	"github.com/leechsync/leech/internal/diffengine"
	"github.com/leechsync/leech/internal/fingerprint"
	"github.com/leechsync/leech/internal/table"
)

// fakeDestination is an in-memory adapter.Destination keyed by its qualified
// primary tuple, used to exercise the patch engine without a real adapter.
type fakeDestination struct {
	rows          map[string]table.Row
	staged        map[string]table.Row
	deletedStaged map[string]bool
	inTxn         bool
	failOpen      error
	failCommit    bool
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{rows: map[string]table.Row{}}
}

func key(t table.PrimaryTuple) string {
	s := ""
	for _, f := range t {
		s += string(f) + "\x00"
	}
	return s
}

func (d *fakeDestination) Open(ctx context.Context, params adapter.Params, schema table.Schema) error {
	return d.failOpen
}
func (d *fakeDestination) ReadAll(ctx context.Context) ([]table.Row, error) {
	out := make([]table.Row, 0, len(d.rows))
	for _, r := range d.rows {
		out = append(out, r)
	}
	return out, nil
}
func (d *fakeDestination) Close(ctx context.Context) error { return nil }

func (d *fakeDestination) BeginTransaction(ctx context.Context) error {
	d.inTxn = true
	d.staged = map[string]table.Row{}
	d.deletedStaged = map[string]bool{}
	return nil
}
func (d *fakeDestination) CommitTransaction(ctx context.Context) error {
	if d.failCommit {
		return errors.New("commit failed")
	}
	for k, r := range d.staged {
		d.rows[k] = r
	}
	for k := range d.deletedStaged {
		delete(d.rows, k)
	}
	d.inTxn = false
	return nil
}
func (d *fakeDestination) RollbackTransaction(ctx context.Context) error {
	d.staged = nil
	d.deletedStaged = nil
	d.inTxn = false
	return nil
}
func (d *fakeDestination) Insert(ctx context.Context, row table.Row) error {
	d.staged[key(row.Tuple())] = row
	return nil
}
func (d *fakeDestination) Delete(ctx context.Context, primary table.PrimaryTuple) error {
	d.deletedStaged[key(primary)] = true
	return nil
}
func (d *fakeDestination) Update(ctx context.Context, primary table.PrimaryTuple, subsidiary [][]byte) error {
	d.staged[key(primary)] = table.NewRow(primary, subsidiary)
	return nil
}

// fakeStore is an in-memory Store for peer pointer bookkeeping.
type fakeStore struct {
	ptrs map[table.TableId]Fingerprint
}

func newFakeStore() *fakeStore { return &fakeStore{ptrs: map[table.TableId]Fingerprint{}} }

func (s *fakeStore) PeerPointer(hostID string, id table.TableId) (Fingerprint, error) {
	return s.ptrs[id], nil
}
func (s *fakeStore) SetPeerPointers(hostID string, updates map[table.TableId]Fingerprint) error {
	for id, fp := range updates {
		s.ptrs[id] = fp
	}
	return nil
}

func fp(b byte) Fingerprint {
	var f Fingerprint
	f[0] = b
	return f
}

func testSchema(t *testing.T) table.Schema {
	t.Helper()
	s, err := table.NewSchema([]string{"first", "last"}, []string{"born"})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func simplePatch(schema table.Schema, to Fingerprint) block.Patch {
	return block.Patch{
		From: map[table.TableId]fingerprint.FP{"BTL": {}},
		To:   map[table.TableId]fingerprint.FP{"BTL": fingerprint.FP(to)},
		Entries: []block.TableEntry{
			{
				TableID: "BTL",
				Schema:  schema,
				Diff: diffengine.Diff{
					TableID: "BTL",
					Schema:  schema,
					Ops: []diffengine.Op{
						{Tag: diffengine.Insert, Primary: table.PrimaryTuple{[]byte("Paul"), []byte("McCartney")}, Subsidiary: [][]byte{[]byte("1942")}},
					},
				},
			},
		},
	}
}

func TestApplyQualifiesPrimaryTupleAndUpdatesPeerPointer(t *testing.T) {
	schema := testSchema(t)
	dest := newFakeDestination()
	st := newFakeStore()
	p := simplePatch(schema, fp(1))

	opened := map[table.TableId]adapter.Destination{"BTL": dest}
	report, err := Apply(context.Background(), st, p, Qualifier{Field: "host_id", Value: "SHA=123"},
		func(id table.TableId, schema table.Schema) (adapter.Destination, error) { return opened[id], nil })
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(report.Applied) != 1 {
		t.Fatalf("expected 1 applied table, got %+v", report)
	}

	row, ok := dest.rows[key(table.PrimaryTuple{[]byte("SHA=123"), []byte("Paul"), []byte("McCartney")})]
	if !ok {
		t.Fatalf("expected qualified row to be inserted, got rows: %+v", dest.rows)
	}
	if string(row.Subsidiary[0]) != "1942" {
		t.Fatalf("subsidiary = %s, want 1942", row.Subsidiary[0])
	}

	got, _ := st.PeerPointer("SHA=123", "BTL")
	if got != fp(1) {
		t.Fatalf("peer pointer not updated, got %v", got)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	schema := testSchema(t)
	dest := newFakeDestination()
	st := newFakeStore()
	st.ptrs["BTL"] = fp(1)
	p := simplePatch(schema, fp(1))

	opened := map[table.TableId]adapter.Destination{"BTL": dest}
	called := false
	report, err := Apply(context.Background(), st, p, Qualifier{Field: "host_id", Value: "SHA=123"},
		func(id table.TableId, schema table.Schema) (adapter.Destination, error) {
			called = true
			return opened[id], nil
		})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if called {
		t.Fatal("expected idempotent short-circuit to skip opening any adapter")
	}
	if len(report.SkippedIdempotent) != 1 {
		t.Fatalf("expected 1 skipped table, got %+v", report)
	}
	if len(dest.rows) != 0 {
		t.Fatalf("expected no rows applied, got %+v", dest.rows)
	}
}

func TestApplyRebaseClearsQualifiedSliceOnly(t *testing.T) {
	schema := testSchema(t)
	dest := newFakeDestination()
	// Pre-existing rows for two different hosts sharing one destination table.
	dest.rows[key(table.PrimaryTuple{[]byte("SHA=123"), []byte("Ringo"), []byte("Starr")})] =
		table.NewRow(table.PrimaryTuple{[]byte("SHA=123"), []byte("Ringo"), []byte("Starr")}, [][]byte{[]byte("1940")})
	dest.rows[key(table.PrimaryTuple{[]byte("SHA=456"), []byte("Janis"), []byte("Joplin")})] =
		table.NewRow(table.PrimaryTuple{[]byte("SHA=456"), []byte("Janis"), []byte("Joplin")}, [][]byte{[]byte("1943")})

	st := newFakeStore()
	p := simplePatch(schema, fp(1))
	p.Rebase = true

	opened := map[table.TableId]adapter.Destination{"BTL": dest}
	report, err := Apply(context.Background(), st, p, Qualifier{Field: "host_id", Value: "SHA=123"},
		func(id table.TableId, schema table.Schema) (adapter.Destination, error) { return opened[id], nil })
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(report.Applied) != 1 {
		t.Fatalf("expected 1 applied table, got %+v", report)
	}

	if _, ok := dest.rows[key(table.PrimaryTuple{[]byte("SHA=123"), []byte("Ringo"), []byte("Starr")})]; ok {
		t.Fatal("expected stale SHA=123 row to be deleted by rebase")
	}
	if _, ok := dest.rows[key(table.PrimaryTuple{[]byte("SHA=456"), []byte("Janis"), []byte("Joplin")})]; !ok {
		t.Fatal("expected SHA=456 row to be left untouched by a SHA=123 rebase")
	}
	if _, ok := dest.rows[key(table.PrimaryTuple{[]byte("SHA=123"), []byte("Paul"), []byte("McCartney")})]; !ok {
		t.Fatal("expected the new source row to be inserted")
	}
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	schema := testSchema(t)
	dest := newFakeDestination()
	dest.failOpen = nil
	st := newFakeStore()
	p := simplePatch(schema, fp(1))
	// force a commit failure so the transaction must roll back entirely
	dest.failCommit = true

	opened := map[table.TableId]adapter.Destination{"BTL": dest}
	_, err := Apply(context.Background(), st, p, Qualifier{Field: "host_id", Value: "SHA=123"},
		func(id table.TableId, schema table.Schema) (adapter.Destination, error) { return opened[id], nil })
	if err == nil {
		t.Fatal("expected PatchFailed error")
	}
	if len(dest.rows) != 0 {
		t.Fatalf("expected rollback to leave destination untouched, got %+v", dest.rows)
	}
	if got, _ := st.PeerPointer("SHA=123", "BTL"); got != (Fingerprint{}) {
		t.Fatal("peer pointer must not advance on failure")
	}
}
