package block

import "encoding/binary"

// reader is a small cursor over an in-memory byte slice, used to decode the
// length-prefixed fields of the block and patch-file encodings without
// pulling in a streaming decoder the format does not need.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) atEnd() bool { return r.pos >= len(r.buf) }

func (r *reader) readFull(dst []byte) error {
	if len(r.buf)-r.pos < len(dst) {
		return errTruncated
	}
	copy(dst, r.buf[r.pos:r.pos+len(dst)])
	r.pos += len(dst)
	return nil
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readUint32() (uint32, error) {
	var b [4]byte
	if err := r.readFull(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (r *reader) readUint64() (uint64, error) {
	var b [8]byte
	if err := r.readFull(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// readOctets reads a 32-bit big-endian length prefix followed by that many
// raw bytes.
func (r *reader) readOctets() ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if uint32(len(r.buf)-r.pos) < n {
		return nil, errTruncated
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return v, nil
}

var errTruncated = &CorruptError{Reason: "truncated payload"}
