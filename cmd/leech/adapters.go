package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leechsync/leech/internal/adapter"
	"github.com/leechsync/leech/internal/config"
	"github.com/leechsync/leech/internal/fingerprint"
	"github.com/leechsync/leech/internal/leecherr"
	"github.com/leechsync/leech/internal/patch"
	"github.com/leechsync/leech/internal/store"
	"github.com/leechsync/leech/internal/table"
)

// patchStoreAdapter satisfies patch.Store by converting between
// fingerprint.FP and patch.Fingerprint (structurally identical [20]byte
// arrays, but distinct types, so Go requires an explicit conversion
// at this boundary rather than treating a *store.Store as a patch.Store
// directly; see the comment on patch.Store itself).
type patchStoreAdapter struct {
	st *store.Store
}

func (a patchStoreAdapter) PeerPointer(hostID string, id table.TableId) (patch.Fingerprint, error) {
	fp, err := a.st.PeerPointer(hostID, id)
	return patch.Fingerprint(fp), err
}

func (a patchStoreAdapter) SetPeerPointers(hostID string, updates map[table.TableId]patch.Fingerprint) error {
	converted := make(map[table.TableId]fingerprint.FP, len(updates))
	for id, fp := range updates {
		converted[id] = fingerprint.FP(fp)
	}
	return a.st.SetPeerPointers(hostID, converted)
}

// openDestination builds a patch.AdapterOpener backed by the destination
// adapters named in cfg, looked up in the adapter registry by their
// configured "callbacks" id (spec §4.2, §6).
func openDestination(ctx context.Context, cfg *config.Config) patch.AdapterOpener {
	return func(id table.TableId, schema table.Schema) (adapter.Destination, error) {
		tc, ok := cfg.Tables[id]
		if !ok {
			return nil, fmt.Errorf("cli: no table %s configured", id)
		}
		dst, ok := adapter.NewDestination(tc.Destination.Callbacks)
		if !ok {
			return nil, leecherr.New(leecherr.KindAdapterUnavailable, "cli.open_destination",
				fmt.Errorf("no destination adapter registered under id %q", tc.Destination.Callbacks))
		}
		if err := dst.Open(ctx, adapter.Params(tc.Destination.Params), schema); err != nil {
			return nil, leecherr.New(leecherr.KindAdapterUnavailable, "cli.open_destination", err)
		}
		return dst, nil
	}
}

// openSource resolves and opens the source adapter for one configured
// table.
func openSource(ctx context.Context, tc config.TableConfig, schema table.Schema) (adapter.Source, error) {
	src, ok := adapter.NewSource(tc.Source.Callbacks)
	if !ok {
		return nil, leecherr.New(leecherr.KindAdapterUnavailable, "cli.open_source",
			fmt.Errorf("no source adapter registered under id %q", tc.Source.Callbacks))
	}
	if err := src.Open(ctx, adapter.Params(tc.Source.Params), schema); err != nil {
		return nil, leecherr.New(leecherr.KindAdapterUnavailable, "cli.open_source", err)
	}
	return src, nil
}

// writeFileAtomic writes data to path via a ".tmp" sibling and rename, the
// same pattern store.Store uses for its own on-disk writes (spec §4.4, §6:
// diff/rebase "write atomically (tmp + rename)").
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
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
