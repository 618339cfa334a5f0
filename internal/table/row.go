package table

import "bytes"

// Row is a mapping from every schema field to an octet string (spec §3).
// Values carry no implicit type; adapters decide how to encode/decode them.
type Row struct {
	Primary    [][]byte
	Subsidiary [][]byte
}

// NewRow builds a Row, copying the provided slices so callers may reuse
// their backing arrays.
func NewRow(primary, subsidiary [][]byte) Row {
	return Row{
		Primary:    cloneFields(primary),
		Subsidiary: cloneFields(subsidiary),
	}
}

func cloneFields(fields [][]byte) [][]byte {
	out := make([][]byte, len(fields))
	for i, f := range fields {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// PrimaryTuple is the ordered projection of a row over its primary fields;
// it is what identifies a row for collision and ordering purposes.
type PrimaryTuple [][]byte

// Equal compares two primary tuples octet-for-octet.
func (t PrimaryTuple) Equal(o PrimaryTuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if !bytes.Equal(t[i], o[i]) {
			return false
		}
	}
	return true
}

// Compare returns -1, 0, or 1 ordering t before, equal to, or after o,
// lexicographically over the octet strings of each field in order. This is
// the canonical order used for hashing and serialization (spec §3).
func (t PrimaryTuple) Compare(o PrimaryTuple) int {
	n := len(t)
	if len(o) < n {
		n = len(o)
	}
	for i := 0; i < n; i++ {
		if c := bytes.Compare(t[i], o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(t) < len(o):
		return -1
	case len(t) > len(o):
		return 1
	default:
		return 0
	}
}

// Tuple returns the row's primary tuple.
func (r Row) Tuple() PrimaryTuple { return PrimaryTuple(r.Primary) }

// SubsidiaryEqual reports whether two rows have octet-identical subsidiary
// values, field by field.
func (r Row) SubsidiaryEqual(o Row) bool {
	if len(r.Subsidiary) != len(o.Subsidiary) {
		return false
	}
	for i := range r.Subsidiary {
		if !bytes.Equal(r.Subsidiary[i], o.Subsidiary[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of r.
func (r Row) Clone() Row {
	return Row{Primary: cloneFields(r.Primary), Subsidiary: cloneFields(r.Subsidiary)}
}
