// Package table implements the in-memory representation of one logical
// table: its schema, its rows, and the canonical ordering and encoding used
// to fingerprint and serialize it.
package table

import "fmt"

// TableId is a fixed-width, three-uppercase-letter tag identifying a table
// within a configuration (spec §3).
type TableId string

// Valid reports whether id has the shape required of a TableId.
func (id TableId) Valid() bool {
	if len(id) != 3 {
		return false
	}
	for _, r := range id {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Schema names the primary and subsidiary fields of one table, in the order
// that defines serialization and fingerprinting order (spec §3).
type Schema struct {
	Primary    []string
	Subsidiary []string
}

// NewSchema validates and constructs a Schema. Primary must be non-empty;
// Subsidiary may be empty. No field name may appear twice across both lists.
func NewSchema(primary, subsidiary []string) (Schema, error) {
	if len(primary) == 0 {
		return Schema{}, fmt.Errorf("schema: primary field list must be non-empty")
	}
	seen := make(map[string]bool, len(primary)+len(subsidiary))
	for _, f := range primary {
		if f == "" {
			return Schema{}, fmt.Errorf("schema: empty primary field name")
		}
		if seen[f] {
			return Schema{}, fmt.Errorf("schema: duplicate field name %q", f)
		}
		seen[f] = true
	}
	for _, f := range subsidiary {
		if f == "" {
			return Schema{}, fmt.Errorf("schema: empty subsidiary field name")
		}
		if seen[f] {
			return Schema{}, fmt.Errorf("schema: duplicate field name %q", f)
		}
		seen[f] = true
	}
	return Schema{
		Primary:    append([]string(nil), primary...),
		Subsidiary: append([]string(nil), subsidiary...),
	}, nil
}

// Equal reports whether two schemas name the same fields in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s.Primary) != len(o.Primary) || len(s.Subsidiary) != len(o.Subsidiary) {
		return false
	}
	for i := range s.Primary {
		if s.Primary[i] != o.Primary[i] {
			return false
		}
	}
	for i := range s.Subsidiary {
		if s.Subsidiary[i] != o.Subsidiary[i] {
			return false
		}
	}
	return true
}

// NumPrimary returns the number of primary fields.
func (s Schema) NumPrimary() int { return len(s.Primary) }

// NumSubsidiary returns the number of subsidiary fields.
func (s Schema) NumSubsidiary() int { return len(s.Subsidiary) }
