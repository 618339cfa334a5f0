package store

import (
	"testing"
	"time"

	"github.com/leechsync/leech/internal/block"
	"github.com/leechsync/leech/internal/diffengine"
	"github.com/leechsync/leech/internal/fingerprint"
	"github.com/leechsync/leech/internal/table"
)

func testSchema(t *testing.T) table.Schema {
	t.Helper()
	s, err := table.NewSchema([]string{"first", "last"}, []string{"born"})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func genesisBlock(schema table.Schema, first, last, born string) block.Block {
	return block.Block{
		Parent:    fingerprint.Null,
		TableID:   "BTL",
		Timestamp: time.Unix(1, 0).UTC(),
		Schema:    schema,
		Diff: diffengine.Diff{
			TableID: "BTL", Schema: schema,
			Ops: []diffengine.Op{
				{Tag: diffengine.Insert, Primary: table.PrimaryTuple{[]byte(first), []byte(last)}, Subsidiary: [][]byte{[]byte(born)}},
			},
		},
	}
}

func TestPutGetBlock(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	schema := testSchema(t)
	b := genesisBlock(schema, "Paul", "McCartney", "1942")
	fp, err := s.PutBlock(b)
	if err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	got, err := s.GetBlock(fp)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.TableID != "BTL" {
		t.Fatalf("got table id %s", got.TableID)
	}
}

func TestPutBlockDuplicateIsNoOp(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b := genesisBlock(testSchema(t), "Paul", "McCartney", "1942")
	fp1, err := s.PutBlock(b)
	if err != nil {
		t.Fatalf("PutBlock 1: %v", err)
	}
	fp2, err := s.PutBlock(b)
	if err != nil {
		t.Fatalf("PutBlock 2 (duplicate): %v", err)
	}
	if fp1 != fp2 {
		t.Fatal("duplicate write produced a different fingerprint")
	}
}

func TestGetUnknownBlock(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = s.GetBlock(fingerprint.Null)
	if err == nil {
		t.Fatal("expected UnknownBlockError")
	}
	if _, ok := err.(*UnknownBlockError); !ok {
		t.Fatalf("expected *UnknownBlockError, got %T: %v", err, err)
	}
}

func TestHeadDefaultsToNull(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fp, err := s.Head("BTL")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if !fp.IsNull() {
		t.Fatalf("expected null head for unknown table, got %s", fp)
	}
}

func TestSetHeadRequiresReachableBlock(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fakeFP := fingerprint.NewBuilder().Byte(9).Sum()
	if err := s.SetHead("BTL", fakeFP); err == nil {
		t.Fatal("expected error setting head to an unknown block")
	}
}

func TestSetHeadThenHead(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b := genesisBlock(testSchema(t), "Paul", "McCartney", "1942")
	fp, err := s.PutBlock(b)
	if err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if err := s.SetHead("BTL", fp); err != nil {
		t.Fatalf("SetHead: %v", err)
	}
	got, err := s.Head("BTL")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if got != fp {
		t.Fatalf("Head() = %s, want %s", got, fp)
	}
}

func TestWalkFromNullIsFullRebuild(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	schema := testSchema(t)
	b1 := genesisBlock(schema, "Paul", "McCartney", "1942")
	fp1, _ := s.PutBlock(b1)
	b2 := block.Block{
		Parent: fp1, TableID: "BTL", Timestamp: time.Unix(2, 0).UTC(), Schema: schema,
		Diff: diffengine.Diff{TableID: "BTL", Schema: schema, Ops: []diffengine.Op{
			{Tag: diffengine.Update, Primary: table.PrimaryTuple{[]byte("Paul"), []byte("McCartney")}, Subsidiary: [][]byte{[]byte("1943")}},
		}},
	}
	fp2, _ := s.PutBlock(b2)

	chain, err := s.Walk("BTL", fingerprint.Null, fp2)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 blocks from genesis, got %d", len(chain))
	}
	if chain[0].Parent != fingerprint.Null {
		t.Fatal("first block in walk should be genesis")
	}
}

func TestWalkExclusiveFrom(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	schema := testSchema(t)
	b1 := genesisBlock(schema, "Paul", "McCartney", "1942")
	fp1, _ := s.PutBlock(b1)
	b2 := block.Block{
		Parent: fp1, TableID: "BTL", Timestamp: time.Unix(2, 0).UTC(), Schema: schema,
		Diff: diffengine.Diff{TableID: "BTL", Schema: schema, Ops: []diffengine.Op{
			{Tag: diffengine.Update, Primary: table.PrimaryTuple{[]byte("Paul"), []byte("McCartney")}, Subsidiary: [][]byte{[]byte("1943")}},
		}},
	}
	fp2, _ := s.PutBlock(b2)

	chain, err := s.Walk("BTL", fp1, fp2)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(chain) != 1 {
		t.Fatalf("expected 1 block (fp1 exclusive), got %d", len(chain))
	}
}

func TestWalkUnreachableAncestor(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	schema := testSchema(t)
	b1 := genesisBlock(schema, "Paul", "McCartney", "1942")
	fp1, _ := s.PutBlock(b1)

	unrelated := fingerprint.NewBuilder().Byte(42).Sum()
	if _, err := s.Walk("BTL", unrelated, fp1); err == nil {
		t.Fatal("expected UnreachableAncestorError")
	}
}

func TestPeerPointers(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fp := fingerprint.NewBuilder().Byte(1).Sum()
	if err := s.SetPeerPointers("SHA=123", map[table.TableId]fingerprint.FP{"BTL": fp}); err != nil {
		t.Fatalf("SetPeerPointers: %v", err)
	}
	got, err := s.PeerPointer("SHA=123", "BTL")
	if err != nil {
		t.Fatalf("PeerPointer: %v", err)
	}
	if got != fp {
		t.Fatalf("PeerPointer = %s, want %s", got, fp)
	}
	missing, err := s.PeerPointer("SHA=123", "VAR")
	if err != nil {
		t.Fatalf("PeerPointer (missing table): %v", err)
	}
	if !missing.IsNull() {
		t.Fatalf("expected null pointer for unrecorded table, got %s", missing)
	}
}

func TestPeersListsHostsWithPointers(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fp := fingerprint.NewBuilder().Byte(1).Sum()
	if err := s.SetPeerPointers("SHA=123", map[table.TableId]fingerprint.FP{"BTL": fp}); err != nil {
		t.Fatalf("SetPeerPointers: %v", err)
	}
	if err := s.SetPeerPointers("SHA=456", map[table.TableId]fingerprint.FP{"BTL": fp}); err != nil {
		t.Fatalf("SetPeerPointers: %v", err)
	}

	hosts, err := s.Peers()
	if err != nil {
		t.Fatalf("Peers: %v", err)
	}
	want := map[string]bool{"SHA=123": true, "SHA=456": true}
	if len(hosts) != len(want) {
		t.Fatalf("Peers() = %v, want 2 hosts", hosts)
	}
	for _, h := range hosts {
		if !want[h] {
			t.Fatalf("unexpected host %q in Peers()", h)
		}
	}
}

func TestPeersEmptyWhenNoneRecorded(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	hosts, err := s.Peers()
	if err != nil {
		t.Fatalf("Peers: %v", err)
	}
	if len(hosts) != 0 {
		t.Fatalf("expected no peers, got %v", hosts)
	}
}

func TestLockExcludesSecondAcquire(t *testing.T) {
	dir := t.TempDir()
	l1 := NewLock(dir)
	if err := l1.TryLock(); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	defer l1.Unlock()

	l2 := NewLock(dir)
	if err := l2.TryLock(); err == nil {
		t.Fatal("expected second TryLock to fail while first holds the lock")
	}
}
