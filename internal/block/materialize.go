package block

import (
	"fmt"

	"github.com/leechsync/leech/internal/diffengine"
	"github.com/leechsync/leech/internal/fingerprint"
	"github.com/leechsync/leech/internal/table"
)

// Getter looks up a block by its fingerprint. Implemented by the store.
type Getter interface {
	GetBlock(fp fingerprint.FP) (Block, error)
}

// Materialize replays the chain of blocks ending at head, from genesis
// forward, and returns the resulting table (spec §4.6 step 1, and the
// invariant that state_fingerprint == fingerprint(materialize(B))).
// The null fingerprint materializes to an empty table of the given schema.
func Materialize(get Getter, schema table.Schema, head fingerprint.FP) (*table.Table, error) {
	if head.IsNull() {
		return table.New(schema), nil
	}
	// Walk parent pointers back to genesis, then replay forward.
	var chain []Block
	cur := head
	for !cur.IsNull() {
		b, err := get.GetBlock(cur)
		if err != nil {
			return nil, fmt.Errorf("block: materialize: %w", err)
		}
		chain = append(chain, b)
		cur = b.Parent
	}
	// chain is head..genesis; reverse to genesis..head.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	t := table.New(schema)
	for _, b := range chain {
		applied, err := diffengine.Apply(schema, t, b.Diff)
		if err != nil {
			return nil, fmt.Errorf("block: materialize: replaying block: %w", err)
		}
		t = applied
	}
	return t, nil
}
