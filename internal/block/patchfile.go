package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/leechsync/leech/internal/diffengine"
	"github.com/leechsync/leech/internal/fingerprint"
	"github.com/leechsync/leech/internal/table"
)

// PatchMagic identifies a Leech patch file.
var PatchMagic = [4]byte{'L', 'C', 'H', 'P'}

// TableEntry is one table's composite diff within a patch file.
type TableEntry struct {
	TableID table.TableId
	Schema  table.Schema
	Diff    diffengine.Diff
}

// Patch is the transport-level container of spec §3/§4.3: the composite
// diff between a "from" and a "to" fingerprint, per table, together with
// the schema echo needed to interpret it. From/To are keyed by TableID
// since each table has its own chain and therefore its own pair of
// fingerprints; the zero value (fingerprint.Null) is valid for "from".
//
// Rebase marks a patch produced by the rebase command (spec §4.8): its
// entries carry a full INSERT set (the composeFromGenesis shape) rather
// than an incremental diff, and the patch engine must clear the
// destination's qualified slice before applying them rather than relying
// on the entries themselves to carry DELETE/UPDATE ops. This is the one
// bit of information an ordinary incremental patch never needs to carry,
// since its DELETE/UPDATE ops already say precisely what changed.
type Patch struct {
	From    map[table.TableId]fingerprint.FP
	To      map[table.TableId]fingerprint.FP
	Rebase  bool
	Entries []TableEntry // stable order: lexicographic over TableID
}

// SortEntries orders Entries lexicographically by TableID (spec §4.6).
func (p *Patch) SortEntries() {
	sort.Slice(p.Entries, func(i, j int) bool {
		return p.Entries[i].TableID < p.Entries[j].TableID
	})
}

// EncodePatch produces the canonical byte sequence for a patch file.
func EncodePatch(p Patch) ([]byte, error) {
	p.SortEntries()
	var buf bytes.Buffer
	buf.Write(PatchMagic[:])
	buf.WriteByte(Version)
	if p.Rebase {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(p.Entries)))
	buf.Write(countBuf[:])

	for _, e := range p.Entries {
		if len(e.TableID) != 3 {
			return nil, fmt.Errorf("block: patch: table id must be 3 bytes, got %q", e.TableID)
		}
		buf.WriteString(string(e.TableID))
		from := p.From[e.TableID]
		to := p.To[e.TableID]
		buf.Write(from[:])
		buf.Write(to[:])
		writeFieldList(&buf, e.Schema.Primary)
		writeFieldList(&buf, e.Schema.Subsidiary)
		if err := writeDiff(&buf, e.Diff); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodePatch parses raw as a patch file.
func DecodePatch(raw []byte) (Patch, error) {
	r := &reader{buf: raw}

	var magic [4]byte
	if err := r.readFull(magic[:]); err != nil {
		return Patch{}, &CorruptError{Reason: "truncated patch magic"}
	}
	if magic != PatchMagic {
		return Patch{}, &CorruptError{Reason: "bad patch magic"}
	}
	version, err := r.readByte()
	if err != nil {
		return Patch{}, &CorruptError{Reason: "truncated patch version"}
	}
	if version != Version {
		return Patch{}, &CorruptError{Reason: fmt.Sprintf("unsupported patch version %d", version)}
	}

	rebaseByte, err := r.readByte()
	if err != nil {
		return Patch{}, &CorruptError{Reason: "truncated rebase flag"}
	}
	if rebaseByte > 1 {
		return Patch{}, &CorruptError{Reason: fmt.Sprintf("invalid rebase flag %d", rebaseByte)}
	}

	count, err := r.readUint32()
	if err != nil {
		return Patch{}, &CorruptError{Reason: "truncated entry count"}
	}

	p := Patch{
		From:   make(map[table.TableId]fingerprint.FP, count),
		To:     make(map[table.TableId]fingerprint.FP, count),
		Rebase: rebaseByte == 1,
	}
	for i := uint32(0); i < count; i++ {
		var tableID [3]byte
		if err := r.readFull(tableID[:]); err != nil {
			return Patch{}, &CorruptError{Reason: "truncated entry table id"}
		}
		id := table.TableId(tableID[:])

		var from, to fingerprint.FP
		if err := r.readFull(from[:]); err != nil {
			return Patch{}, &CorruptError{Reason: "truncated entry from-fingerprint"}
		}
		if err := r.readFull(to[:]); err != nil {
			return Patch{}, &CorruptError{Reason: "truncated entry to-fingerprint"}
		}

		primary, err := readFieldList(r)
		if err != nil {
			return Patch{}, err
		}
		subsidiary, err := readFieldList(r)
		if err != nil {
			return Patch{}, err
		}
		schema, err := table.NewSchema(primary, subsidiary)
		if err != nil {
			return Patch{}, &CorruptError{Reason: "invalid entry schema echo: " + err.Error()}
		}

		diff, err := readDiff(r, id, schema)
		if err != nil {
			return Patch{}, err
		}

		p.From[id] = from
		p.To[id] = to
		p.Entries = append(p.Entries, TableEntry{TableID: id, Schema: schema, Diff: diff})
	}

	if !r.atEnd() {
		return Patch{}, &CorruptError{Reason: "trailing bytes after patch entries"}
	}
	p.SortEntries()
	return p, nil
}
