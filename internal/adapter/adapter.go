// Package adapter defines the uniform capability set the core requires of
// one endpoint (a CSV file, a database connection, ...) for one table
// (spec §4.2). Concrete adapters live in subpackages and register
// themselves by id so configuration (§6) can select one by name, the way
// the teacher repository selects a storage backend by a registry key
// rather than a compile-time switch.
package adapter

import (
	"context"

	"github.com/leechsync/leech/internal/table"
)

// Params is the adapter-specific connection string from §6's
// "source"/"destination" config block (its "params" field). Interpretation
// is entirely up to the adapter.
type Params string

// Source is the read side of the adapter interface.
type Source interface {
	// Open acquires the endpoint for the given schema.
	Open(ctx context.Context, params Params, schema table.Schema) error
	// ReadAll yields every row of the endpoint's current view of the table.
	// The sequence is finite and the call is restartable.
	ReadAll(ctx context.Context) ([]table.Row, error)
	// Close releases the endpoint. Must be safe to call after a failed Open.
	Close(ctx context.Context) error
}

// Destination is the read/write side required at the hub.
type Destination interface {
	Source

	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error

	Insert(ctx context.Context, row table.Row) error
	Delete(ctx context.Context, primary table.PrimaryTuple) error
	Update(ctx context.Context, primary table.PrimaryTuple, subsidiary [][]byte) error
}

// UnavailableError is returned by Open when the endpoint cannot be reached
// (spec §7: AdapterUnavailable).
type UnavailableError struct {
	Adapter string
	Err     error
}

func (e *UnavailableError) Error() string {
	return "adapter: " + e.Adapter + " unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// SchemaMismatchError is returned by Open when the endpoint's columns
// cannot be mapped to the requested schema (spec §7: SchemaMismatch).
type SchemaMismatchError struct {
	Adapter string
	Reason  string
}

func (e *SchemaMismatchError) Error() string {
	return "adapter: " + e.Adapter + " schema mismatch: " + e.Reason
}

// SourceFactory constructs a new, unopened source adapter instance.
type SourceFactory func() Source

// DestinationFactory constructs a new, unopened destination adapter
// instance.
type DestinationFactory func() Destination

var (
	sourceRegistry      = map[string]SourceFactory{}
	destinationRegistry = map[string]DestinationFactory{}
)

// RegisterSource adds a source adapter factory under id (spec §9:
// "an adapter interface with an implementation registry keyed by adapter
// id"). Intended to be called from an adapter subpackage's init().
func RegisterSource(id string, f SourceFactory) {
	sourceRegistry[id] = f
}

// RegisterDestination adds a destination adapter factory under id.
func RegisterDestination(id string, f DestinationFactory) {
	destinationRegistry[id] = f
}

// NewSource looks up a registered source adapter factory by id.
func NewSource(id string) (Source, bool) {
	f, ok := sourceRegistry[id]
	if !ok {
		return nil, false
	}
	return f(), true
}

// NewDestination looks up a registered destination adapter factory by id.
func NewDestination(id string) (Destination, bool) {
	f, ok := destinationRegistry[id]
	if !ok {
		return nil, false
	}
	return f(), true
}
