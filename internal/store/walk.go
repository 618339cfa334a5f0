package store

import (
	"fmt"

	"github.com/leechsync/leech/internal/block"
	"github.com/leechsync/leech/internal/fingerprint"
	"github.com/leechsync/leech/internal/leecherr"
	"github.com/leechsync/leech/internal/table"
)

// UnreachableAncestorError is returned by Walk when from is not an ancestor
// of to (spec §4.4, §7: UnreachableAncestor).
type UnreachableAncestorError struct {
	From, To fingerprint.FP
}

func (e *UnreachableAncestorError) Error() string {
	return fmt.Sprintf("store: %s is not an ancestor of %s", e.From, e.To)
}

// Walk returns the blocks along the chain from "from" (exclusive) to "to"
// (inclusive), oldest first. from == fingerprint.Null means "full rebuild"
// (every block from genesis to to). It is an error if from is not reachable
// by following parent pointers from to (spec §4.4).
func (s *Store) Walk(id table.TableId, from, to fingerprint.FP) ([]block.Block, error) {
	if to.IsNull() {
		if from.IsNull() {
			return nil, nil
		}
		return nil, leecherr.New(leecherr.KindUnreachableAncestor, "store.walk", &UnreachableAncestorError{From: from, To: to})
	}

	var chain []block.Block
	cur := to
	for {
		b, err := s.GetBlock(cur)
		if err != nil {
			return nil, fmt.Errorf("store: walk: %w", err)
		}
		chain = append(chain, b)
		if cur == from {
			break
		}
		if b.Parent.IsNull() {
			if from.IsNull() {
				break
			}
			return nil, leecherr.New(leecherr.KindUnreachableAncestor, "store.walk", &UnreachableAncestorError{From: from, To: to})
		}
		cur = b.Parent
	}

	// chain is to..from (or to..genesis); reverse to oldest-first and drop
	// the "from" block itself (exclusive start), unless from is null (in
	// which case every block, including genesis, is included).
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	if !from.IsNull() {
		chain = chain[1:]
	}
	return chain, nil
}

// GetBlock satisfies block.Getter so callers can pass a *Store directly to
// block.Materialize.
var _ block.Getter = (*Store)(nil)
