// Package block implements the canonical on-disk encoding of a block
// (spec §4.3) and the reconstruction of table state from a chain of blocks.
package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/leechsync/leech/internal/diffengine"
	"github.com/leechsync/leech/internal/fingerprint"
	"github.com/leechsync/leech/internal/table"
)

// Magic identifies a Leech block file.
var Magic = [4]byte{'L', 'C', 'H', 'B'}

// Version is the only block encoding version this implementation produces
// or accepts.
const Version = 1

// Block is the atomic commit unit of spec §3/§4.3.
type Block struct {
	Parent          fingerprint.FP
	TableID         table.TableId
	Timestamp       time.Time // second precision, UTC
	Schema          table.Schema
	Diff            diffengine.Diff
	StateFingerprint fingerprint.FP
}

// CorruptError is returned by Decode when a payload cannot be parsed as a
// valid block (spec §7: CorruptBlock).
type CorruptError struct {
	Reason string
}

func (e *CorruptError) Error() string { return "block: corrupt: " + e.Reason }

// Encode produces the canonical byte sequence for b, excluding its id (the
// id is the fingerprint of this output, computed by the caller/store).
func Encode(b Block) ([]byte, error) {
	if len(b.TableID) != 3 {
		return nil, fmt.Errorf("block: table id must be 3 bytes, got %q", b.TableID)
	}
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(Version)
	buf.WriteString(string(b.TableID))
	buf.Write(b.Parent[:])
	buf.Write(b.StateFingerprint[:])

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(b.Timestamp.Unix()))
	buf.Write(tsBuf[:])

	writeFieldList(&buf, b.Schema.Primary)
	writeFieldList(&buf, b.Schema.Subsidiary)

	if err := writeDiff(&buf, b.Diff); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses raw as a block. It rejects unknown versions, truncated
// payloads, and mismatched tag bytes with a *CorruptError (spec §4.3).
func Decode(raw []byte) (Block, error) {
	r := &reader{buf: raw}

	var magic [4]byte
	if err := r.readFull(magic[:]); err != nil {
		return Block{}, &CorruptError{Reason: "truncated magic"}
	}
	if magic != Magic {
		return Block{}, &CorruptError{Reason: "bad magic"}
	}
	version, err := r.readByte()
	if err != nil {
		return Block{}, &CorruptError{Reason: "truncated version"}
	}
	if version != Version {
		return Block{}, &CorruptError{Reason: fmt.Sprintf("unsupported version %d", version)}
	}

	var tableID [3]byte
	if err := r.readFull(tableID[:]); err != nil {
		return Block{}, &CorruptError{Reason: "truncated table id"}
	}

	var parent, stateFP fingerprint.FP
	if err := r.readFull(parent[:]); err != nil {
		return Block{}, &CorruptError{Reason: "truncated parent fingerprint"}
	}
	if err := r.readFull(stateFP[:]); err != nil {
		return Block{}, &CorruptError{Reason: "truncated state fingerprint"}
	}

	tsRaw, err := r.readUint64()
	if err != nil {
		return Block{}, &CorruptError{Reason: "truncated timestamp"}
	}

	primary, err := readFieldList(r)
	if err != nil {
		return Block{}, err
	}
	subsidiary, err := readFieldList(r)
	if err != nil {
		return Block{}, err
	}
	schema, err := table.NewSchema(primary, subsidiary)
	if err != nil {
		return Block{}, &CorruptError{Reason: "invalid schema echo: " + err.Error()}
	}

	diff, err := readDiff(r, table.TableId(tableID[:]), schema)
	if err != nil {
		return Block{}, err
	}

	if !r.atEnd() {
		return Block{}, &CorruptError{Reason: "trailing bytes after diff"}
	}

	return Block{
		Parent:           parent,
		TableID:          table.TableId(tableID[:]),
		Timestamp:        time.Unix(int64(tsRaw), 0).UTC(),
		Schema:           schema,
		Diff:             diff,
		StateFingerprint: stateFP,
	}, nil
}

// ID computes the block's content identifier: the fingerprint of its
// canonical serialization sans identifier (spec §3).
func ID(b Block) (fingerprint.FP, error) {
	raw, err := Encode(b)
	if err != nil {
		return fingerprint.FP{}, err
	}
	return fingerprint.Of(raw), nil
}

func writeFieldList(buf *bytes.Buffer, fields []string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(fields)))
	buf.Write(lenBuf[:])
	for _, f := range fields {
		writeOctets(buf, []byte(f))
	}
}

func writeOctets(buf *bytes.Buffer, v []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	buf.Write(lenBuf[:])
	buf.Write(v)
}

func readFieldList(r *reader) ([]string, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, &CorruptError{Reason: "truncated field list length"}
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := r.readOctets()
		if err != nil {
			return nil, &CorruptError{Reason: "truncated field name"}
		}
		out = append(out, string(v))
	}
	return out, nil
}

func writeDiff(buf *bytes.Buffer, d diffengine.Diff) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(d.Ops)))
	buf.Write(lenBuf[:])
	for _, op := range d.Ops {
		switch op.Tag {
		case diffengine.Insert, diffengine.Delete, diffengine.Update:
		default:
			return fmt.Errorf("block: unknown diff op tag %q", byte(op.Tag))
		}
		buf.WriteByte(byte(op.Tag))
		writeTuple(buf, op.Primary)
		if op.Tag == diffengine.Insert || op.Tag == diffengine.Update {
			writeFields(buf, op.Subsidiary)
		}
	}
	return nil
}

func writeTuple(buf *bytes.Buffer, tuple table.PrimaryTuple) {
	writeFields(buf, tuple)
}

func writeFields(buf *bytes.Buffer, fields [][]byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(fields)))
	buf.Write(lenBuf[:])
	for _, f := range fields {
		writeOctets(buf, f)
	}
}

func readDiff(r *reader, tableID table.TableId, schema table.Schema) (diffengine.Diff, error) {
	n, err := r.readUint32()
	if err != nil {
		return diffengine.Diff{}, &CorruptError{Reason: "truncated diff length"}
	}
	d := diffengine.Diff{TableID: tableID, Schema: schema}
	for i := uint32(0); i < n; i++ {
		tagByte, err := r.readByte()
		if err != nil {
			return diffengine.Diff{}, &CorruptError{Reason: "truncated op tag"}
		}
		tag := diffengine.Tag(tagByte)
		switch tag {
		case diffengine.Insert, diffengine.Delete, diffengine.Update:
		default:
			return diffengine.Diff{}, &CorruptError{Reason: fmt.Sprintf("unknown op tag %q", tagByte)}
		}
		primary, err := readFields(r, schema.NumPrimary())
		if err != nil {
			return diffengine.Diff{}, err
		}
		var subsidiary [][]byte
		if tag == diffengine.Insert || tag == diffengine.Update {
			subsidiary, err = readFields(r, schema.NumSubsidiary())
			if err != nil {
				return diffengine.Diff{}, err
			}
		}
		d.Ops = append(d.Ops, diffengine.Op{Tag: tag, Primary: table.PrimaryTuple(primary), Subsidiary: subsidiary})
	}
	return d, nil
}

func readFields(r *reader, want int) ([][]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, &CorruptError{Reason: "truncated field count"}
	}
	if want >= 0 && int(n) != want {
		return nil, &CorruptError{Reason: fmt.Sprintf("field count %d does not match schema (%d)", n, want)}
	}
	out := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := r.readOctets()
		if err != nil {
			return nil, &CorruptError{Reason: "truncated field value"}
		}
		out = append(out, v)
	}
	return out, nil
}
