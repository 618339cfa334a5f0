// Package fingerprint computes the content-addressing digests used to
// identify blocks and to detect when two materialized tables are identical.
package fingerprint

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Size is the digest length in bytes (160 bits).
const Size = sha1.Size

// HexLen is the length of a hex-rendered fingerprint.
const HexLen = Size * 2

// FP is a 160-bit fingerprint.
type FP [Size]byte

// Null is the fingerprint reserved for "no ancestor" / "no head".
var Null FP

// String renders fp as 40 lowercase hex characters.
func (fp FP) String() string {
	return hex.EncodeToString(fp[:])
}

// IsNull reports whether fp is the null fingerprint.
func (fp FP) IsNull() bool {
	return fp == Null
}

// Parse decodes a 40-character lowercase hex string into a fingerprint.
func Parse(s string) (FP, error) {
	var fp FP
	if len(s) != HexLen {
		return fp, &InvalidError{S: s, Reason: "wrong length"}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, &InvalidError{S: s, Reason: err.Error()}
	}
	copy(fp[:], b)
	return fp, nil
}

// InvalidError is returned by Parse when s cannot be decoded as a fingerprint.
type InvalidError struct {
	S      string
	Reason string
}

func (e *InvalidError) Error() string {
	return "fingerprint: invalid value " + e.S + ": " + e.Reason
}

// Builder accumulates canonical octet strings and produces their fingerprint.
// It is the single place that defines the canonical encoding from spec §4.1:
// every field is serialized as a 32-bit big-endian length prefix followed by
// its raw octets.
type Builder struct {
	h hash.Hash
}

// NewBuilder returns a fresh Builder.
func NewBuilder() *Builder {
	return &Builder{h: sha1.New()}
}

// Field appends one length-prefixed octet string to the canonical sequence.
func (b *Builder) Field(v []byte) *Builder {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	b.h.Write(lenBuf[:])
	b.h.Write(v)
	return b
}

// Byte appends a single raw byte (used for the table terminator marker).
func (b *Builder) Byte(v byte) *Builder {
	b.h.Write([]byte{v})
	return b
}

// Sum returns the fingerprint of everything written so far.
func (b *Builder) Sum() FP {
	var fp FP
	copy(fp[:], b.h.Sum(nil))
	return fp
}

// Of is a convenience wrapper computing the fingerprint of a single
// pre-framed byte sequence (used for whole-block identifiers, where the
// canonical form is already the encoded block bytes sans id).
func Of(raw []byte) FP {
	var fp FP
	sum := sha1.Sum(raw)
	copy(fp[:], sum[:])
	return fp
}
