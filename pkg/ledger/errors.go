package ledger

import (
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

var (
	// ErrStoreUnavailable indicates the ledger file could not be opened or
	// created.
	ErrStoreUnavailable = errors.New("ledger: store unavailable")

	// ErrLockTimeout indicates the exclusive lock on the ledger was not
	// acquired within the busy timeout. This usually means the ledger file
	// lives on a filesystem with broken locking (NFS); the fix is to move
	// the file, not to retry.
	ErrLockTimeout = errors.New("ledger: exclusive lock not acquired within timeout")

	// ErrNotFound indicates the operation referenced an identity with no
	// row in the ledger.
	ErrNotFound = errors.New("ledger: no such identity")
)

// classify maps driver-level errors onto the ledger's error taxonomy so
// callers can distinguish a lock failure from a generic I/O error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", ErrLockTimeout, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrPerm, sqlite3.ErrReadonly:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return err
}
