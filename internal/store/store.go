// Package store implements the content-addressed on-disk block store of
// spec §4.4: block files, per-table head pointers, per-peer last-seen
// pointers, and the single-writer lock that serializes mutating commands.
package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leechsync/leech/internal/block"
	"github.com/leechsync/leech/internal/fingerprint"
	"github.com/leechsync/leech/internal/leecherr"
	"github.com/leechsync/leech/internal/table"
)

const (
	blocksDir = "blocks"
	headsDir  = "heads"
	peersDir  = "peers"
	lockFile  = ".lock"
)

// Store is a workdir-rooted block store.
type Store struct {
	workdir string
}

// Open returns a Store rooted at workdir, creating the blocks/, heads/, and
// peers/ subdirectories if absent.
func Open(workdir string) (*Store, error) {
	s := &Store{workdir: workdir}
	for _, d := range []string{blocksDir, headsDir, peersDir} {
		if err := os.MkdirAll(filepath.Join(workdir, d), 0o755); err != nil {
			return nil, leecherr.New(leecherr.KindCorruptStore, "store.open", fmt.Errorf("creating %s: %w", d, err))
		}
	}
	return s, nil
}

// Workdir returns the root directory this store operates on.
func (s *Store) Workdir() string { return s.workdir }

func (s *Store) blockPath(fp fingerprint.FP) string {
	return filepath.Join(s.workdir, blocksDir, fp.String())
}

func (s *Store) headPath(id table.TableId) string {
	return filepath.Join(s.workdir, headsDir, string(id))
}

func (s *Store) peerPath(hostID string) string {
	return filepath.Join(s.workdir, peersDir, hostID)
}

// UnknownBlockError is returned by GetBlock for a fingerprint not present in
// the store (spec §7: UnknownBlock).
type UnknownBlockError struct {
	FP fingerprint.FP
}

func (e *UnknownBlockError) Error() string { return "store: unknown block " + e.FP.String() }

// PutBlock serializes b, computes its fingerprint, and writes it to the
// store via a temp-file-then-rename so a reader never observes a partial
// file. A duplicate write (same id already present) is a no-op provided the
// existing content is byte-identical; otherwise CorruptStore (spec §4.4).
func (s *Store) PutBlock(b block.Block) (fingerprint.FP, error) {
	raw, err := block.Encode(b)
	if err != nil {
		return fingerprint.FP{}, fmt.Errorf("store: encoding block: %w", err)
	}
	fp := fingerprint.Of(raw)
	path := s.blockPath(fp)

	if existing, err := os.ReadFile(path); err == nil {
		if !bytes.Equal(existing, raw) {
			return fingerprint.FP{}, leecherr.New(leecherr.KindCorruptStore, "store.put_block",
				fmt.Errorf("block %s already exists with different content", fp))
		}
		return fp, nil
	} else if !os.IsNotExist(err) {
		return fingerprint.FP{}, fmt.Errorf("store: reading existing block %s: %w", fp, err)
	}

	if err := writeFileAtomic(path, raw); err != nil {
		return fingerprint.FP{}, fmt.Errorf("store: writing block %s: %w", fp, err)
	}
	return fp, nil
}

// GetBlock decodes and returns the block stored under fp.
func (s *Store) GetBlock(fp fingerprint.FP) (block.Block, error) {
	raw, err := os.ReadFile(s.blockPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return block.Block{}, &UnknownBlockError{FP: fp}
		}
		return block.Block{}, fmt.Errorf("store: reading block %s: %w", fp, err)
	}
	b, err := block.Decode(raw)
	if err != nil {
		return block.Block{}, leecherr.New(leecherr.KindCorruptBlock, "store.get_block", err)
	}
	return b, nil
}

// RemoveBlock deletes the block file stored under fp. It is a no-op if fp is
// already absent, so callers need not special-case a partially-completed
// prior removal (spec §9: purge reclaiming disk space by discarding
// superseded block files).
func (s *Store) RemoveBlock(fp fingerprint.FP) error {
	if err := os.Remove(s.blockPath(fp)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: removing block %s: %w", fp, err)
	}
	return nil
}

// HasBlock reports whether fp is present in the store.
func (s *Store) HasBlock(fp fingerprint.FP) bool {
	_, err := os.Stat(s.blockPath(fp))
	return err == nil
}

// Head returns the current head fingerprint for a TableId, or the null
// fingerprint if the table has never been committed (state EMPTY, spec §4.8).
func (s *Store) Head(id table.TableId) (fingerprint.FP, error) {
	raw, err := os.ReadFile(s.headPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return fingerprint.Null, nil
		}
		return fingerprint.FP{}, fmt.Errorf("store: reading head for %s: %w", id, err)
	}
	fp, err := fingerprint.Parse(strings.TrimSpace(string(raw)))
	if err != nil {
		return fingerprint.FP{}, leecherr.New(leecherr.KindCorruptStore, "store.head", err)
	}
	return fp, nil
}

// SetHead atomically advances the head pointer for id to fp. fp must
// already be reachable in the store (i.e. present as a block), except for
// the null fingerprint which always denotes "no head".
func (s *Store) SetHead(id table.TableId, fp fingerprint.FP) error {
	if !fp.IsNull() && !s.HasBlock(fp) {
		return leecherr.New(leecherr.KindUnreachableAncestor, "store.set_head",
			fmt.Errorf("block %s is not present in the store", fp))
	}
	if err := writeFileAtomic(s.headPath(id), []byte(fp.String()+"\n")); err != nil {
		return fmt.Errorf("store: writing head for %s: %w", id, err)
	}
	return nil
}

// Heads lists every TableId that currently has a head file on disk.
func (s *Store) Heads() ([]table.TableId, error) {
	entries, err := os.ReadDir(filepath.Join(s.workdir, headsDir))
	if err != nil {
		return nil, fmt.Errorf("store: listing heads: %w", err)
	}
	ids := make([]table.TableId, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		ids = append(ids, table.TableId(e.Name()))
	}
	return ids, nil
}

// Peers lists every host id that has at least one recorded peer pointer.
func (s *Store) Peers() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.workdir, peersDir))
	if err != nil {
		return nil, fmt.Errorf("store: listing peers: %w", err)
	}
	hosts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		hosts = append(hosts, e.Name())
	}
	return hosts, nil
}

// PeerPointer returns the last head fingerprint known to have been received
// from hostID for the given TableId, or the null fingerprint if none is
// recorded yet.
func (s *Store) PeerPointer(hostID string, id table.TableId) (fingerprint.FP, error) {
	ptrs, err := s.PeerPointers(hostID)
	if err != nil {
		return fingerprint.FP{}, err
	}
	fp, ok := ptrs[id]
	if !ok {
		return fingerprint.Null, nil
	}
	return fp, nil
}

// PeerPointers returns every TableId -> fingerprint pointer recorded for
// hostID (spec §3: "per-peer last-seen pointers", one file per host,
// one line per TableId).
func (s *Store) PeerPointers(hostID string) (map[table.TableId]fingerprint.FP, error) {
	raw, err := os.ReadFile(s.peerPath(hostID))
	if err != nil {
		if os.IsNotExist(err) {
			return map[table.TableId]fingerprint.FP{}, nil
		}
		return nil, fmt.Errorf("store: reading peer pointers for %s: %w", hostID, err)
	}
	out := map[table.TableId]fingerprint.FP{}
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, leecherr.New(leecherr.KindCorruptStore, "store.peer_pointers",
				fmt.Errorf("malformed peer pointer line %q", line))
		}
		fp, err := fingerprint.Parse(parts[1])
		if err != nil {
			return nil, leecherr.New(leecherr.KindCorruptStore, "store.peer_pointers", err)
		}
		out[table.TableId(parts[0])] = fp
	}
	return out, nil
}

// SetPeerPointers merges updates into hostID's recorded pointers and
// persists the result atomically. Peer pointers are created on first
// successful patch and updated, never deleted, by subsequent patches
// (spec §3 lifecycle).
func (s *Store) SetPeerPointers(hostID string, updates map[table.TableId]fingerprint.FP) error {
	current, err := s.PeerPointers(hostID)
	if err != nil {
		return err
	}
	for id, fp := range updates {
		current[id] = fp
	}

	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	for _, id := range ids {
		fmt.Fprintf(&buf, "%s %s\n", id, current[table.TableId(id)])
	}
	if err := writeFileAtomic(s.peerPath(hostID), buf.Bytes()); err != nil {
		return fmt.Errorf("store: writing peer pointers for %s: %w", hostID, err)
	}
	return nil
}

// writeFileAtomic writes data to a ".tmp" sibling of path and renames it
// into place, so readers never observe a partially-written file (spec §4.4,
// §6: "Writes atomically (tmp + rename)").
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
