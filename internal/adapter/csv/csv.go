// Package csv is a reference adapter (spec §4.2, §9) that sources rows from
// a flat CSV file and, as a destination, rewrites the same file on commit.
// It is intentionally the simplest possible adapter: no external
// dependency, used to validate the adapter interface itself and as a
// runnable example alongside the relational sqlite adapter.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/leechsync/leech/internal/adapter"
	"github.com/leechsync/leech/internal/table"
)

func init() {
	adapter.RegisterSource("csv", func() adapter.Source { return &Adapter{} })
	adapter.RegisterDestination("csv", func() adapter.Destination { return &Adapter{} })
}

// Adapter reads and, as a destination, rewrites a single CSV file whose
// header names every schema field in order (primary fields first). A
// transaction stages row mutations in memory and flushes the whole file,
// atomically (tmp + rename), on commit.
type Adapter struct {
	path   string
	schema table.Schema

	rows map[string]table.Row // committed state, keyed by primary tuple

	inTxn   bool
	staged  map[string]table.Row
	deleted map[string]bool
}

func rowKey(t table.PrimaryTuple) string {
	key := ""
	for _, f := range t {
		key += fmt.Sprintf("%d:%s\x1f", len(f), f)
	}
	return key
}

// Open reads the CSV file named by params (a bare filesystem path) into
// memory. A missing file is treated as an empty table, not an error, so a
// fresh destination can be patched into existence.
func (a *Adapter) Open(ctx context.Context, params adapter.Params, schema table.Schema) error {
	a.path = string(params)
	a.schema = schema
	a.rows = map[string]table.Row{}

	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &adapter.UnavailableError{Adapter: "csv", Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &adapter.UnavailableError{Adapter: "csv", Err: err}
	}
	want := append(append([]string{}, schema.Primary...), schema.Subsidiary...)
	if len(header) != len(want) {
		return &adapter.SchemaMismatchError{Adapter: "csv", Reason: fmt.Sprintf("header has %d columns, schema has %d", len(header), len(want))}
	}
	for i, col := range want {
		if header[i] != col {
			return &adapter.SchemaMismatchError{Adapter: "csv", Reason: fmt.Sprintf("column %d is %q, want %q", i, header[i], col)}
		}
	}

	np := schema.NumPrimary()
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		primary := make([][]byte, np)
		for i := 0; i < np; i++ {
			primary[i] = []byte(rec[i])
		}
		subsidiary := make([][]byte, len(rec)-np)
		for i := np; i < len(rec); i++ {
			subsidiary[i-np] = []byte(rec[i])
		}
		row := table.NewRow(primary, subsidiary)
		a.rows[rowKey(row.Tuple())] = row
	}
	return nil
}

// ReadAll returns every row currently loaded.
func (a *Adapter) ReadAll(ctx context.Context) ([]table.Row, error) {
	out := make([]table.Row, 0, len(a.rows))
	for _, r := range a.rows {
		out = append(out, r)
	}
	return out, nil
}

// Close is a no-op; the file handle is not held open between calls.
func (a *Adapter) Close(ctx context.Context) error { return nil }

// BeginTransaction opens a staging area for row mutations.
func (a *Adapter) BeginTransaction(ctx context.Context) error {
	a.inTxn = true
	a.staged = map[string]table.Row{}
	a.deleted = map[string]bool{}
	return nil
}

// Insert stages a new row.
func (a *Adapter) Insert(ctx context.Context, row table.Row) error {
	key := rowKey(row.Tuple())
	a.staged[key] = row
	delete(a.deleted, key)
	return nil
}

// Update stages a replacement value for an existing primary tuple.
func (a *Adapter) Update(ctx context.Context, primary table.PrimaryTuple, subsidiary [][]byte) error {
	key := rowKey(primary)
	a.staged[key] = table.NewRow(primary, subsidiary)
	delete(a.deleted, key)
	return nil
}

// Delete marks a primary tuple for removal.
func (a *Adapter) Delete(ctx context.Context, primary table.PrimaryTuple) error {
	key := rowKey(primary)
	a.deleted[key] = true
	delete(a.staged, key)
	return nil
}

// CommitTransaction merges staged mutations into memory and rewrites the
// file atomically.
func (a *Adapter) CommitTransaction(ctx context.Context) error {
	for k, r := range a.staged {
		a.rows[k] = r
	}
	for k := range a.deleted {
		delete(a.rows, k)
	}
	a.inTxn = false

	if err := a.flush(); err != nil {
		return fmt.Errorf("csv: flushing %s: %w", a.path, err)
	}
	return nil
}

// RollbackTransaction discards staged mutations.
func (a *Adapter) RollbackTransaction(ctx context.Context) error {
	a.staged = nil
	a.deleted = nil
	a.inTxn = false
	return nil
}

func (a *Adapter) flush() error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return err
	}
	tmp := a.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	header := append(append([]string{}, a.schema.Primary...), a.schema.Subsidiary...)
	if err := w.Write(header); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	for _, row := range a.rows {
		rec := make([]string, 0, len(row.Primary)+len(row.Subsidiary))
		for _, v := range row.Primary {
			rec = append(rec, string(v))
		}
		for _, v := range row.Subsidiary {
			rec = append(rec, string(v))
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			_ = os.Remove(tmp)
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, a.path)
}
