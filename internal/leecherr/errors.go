// Package leecherr defines the error kinds of spec §7 as sentinel errors,
// so call sites can classify failures with errors.Is/errors.As while only
// the command dispatcher (cmd/leech) maps a kind to a process exit code.
package leecherr

import "errors"

// Kind classifies a failure the way spec §7 enumerates error kinds.
type Kind string

const (
	KindBadInvocation      Kind = "BadInvocation"
	KindConfigInvalid      Kind = "ConfigInvalid"
	KindAdapterUnavailable Kind = "AdapterUnavailable"
	KindSchemaMismatch     Kind = "SchemaMismatch"
	KindOversizeRecord     Kind = "OversizeRecord"
	KindAdapterTimeout     Kind = "AdapterTimeout"
	KindCorruptBlock       Kind = "CorruptBlock"
	KindCorruptStore       Kind = "CorruptStore"
	KindUnknownBlock       Kind = "UnknownBlock"
	KindUnreachableAncestor Kind = "UnreachableAncestor"
	KindLockBusy           Kind = "LockBusy"
	KindPatchFailed        Kind = "PatchFailed"
	KindPartialCommit      Kind = "PartialCommit"
)

// Error is a tagged result: a Kind plus the underlying cause.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "store.put_block"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ExitCode maps a Kind to the process exit code of spec §6. A nil error
// maps to 0; an error with no wrapped *Error, or with a Kind not listed
// below, maps to the generic failure code 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if !errors.As(err, &e) {
		return 1
	}
	switch e.Kind {
	case KindBadInvocation, KindConfigInvalid:
		return 2
	case KindCorruptBlock, KindCorruptStore:
		return 3
	case KindAdapterUnavailable, KindSchemaMismatch, KindAdapterTimeout:
		return 4
	case KindPatchFailed, KindPartialCommit:
		return 5
	default:
		return 1
	}
}
