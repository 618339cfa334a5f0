package store

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/leechsync/leech/internal/leecherr"
)

// Lock is the single-writer lock of spec §4.4/§5: acquired for the
// duration of any command that mutates heads, peers, or blocks. Readers
// (diff, rebase, history, verify, inspect) proceed without it; only
// commit/patch/purge take it. Grounded on the same github.com/gofrs/flock TryLock/Unlock
// pattern the teacher uses for its own workdir-scoped sync lock.
type Lock struct {
	fl *flock.Flock
}

// NewLock returns (unacquired) the exclusive lock for workdir.
func NewLock(workdir string) *Lock {
	return &Lock{fl: flock.New(filepath.Join(workdir, lockFile))}
}

// TryLock attempts to acquire the lock without blocking, returning
// leecherr.KindLockBusy if another process currently holds it.
func (l *Lock) TryLock() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("store: acquiring lock: %w", err)
	}
	if !ok {
		return leecherr.New(leecherr.KindLockBusy, "store.lock", fmt.Errorf("workdir is locked by another command"))
	}
	return nil
}

// Unlock releases the lock. It is safe to call even if TryLock failed.
func (l *Lock) Unlock() error {
	return l.fl.Unlock()
}
