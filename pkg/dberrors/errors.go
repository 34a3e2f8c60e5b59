// Package dberrors defines the sentinel error types shared by the engine,
// codec, and MVCC layers.
package dberrors

import "fmt"

// WriteConflictError is returned when a transaction attempts to mutate a key
// that a concurrent or newer transaction has already written. Recoverable
// only by rolling back and retrying at a new version.
type WriteConflictError struct {
	Key []byte
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("write conflict on key %q", e.Key)
}

// CorruptionError indicates the on-disk log could not be replayed: a
// truncated record at its tail. Malformed key codec bytes are reported as
// DecodeError instead. These mean corruption or a bug, not a recoverable
// state.
type CorruptionError struct {
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt record: %s", e.Reason)
}

// LockHeldError is returned when a disk engine's log file is already locked
// by another process or handle.
type LockHeldError struct {
	Path string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("failed to acquire exclusive lock on %q: already held", e.Path)
}

// DecodeError reports a malformed key codec encoding.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %s", e.Reason)
}

// InvariantError indicates an unexpected internal state: a missing record
// where one was guaranteed, an unknown key tag, and so on. These always
// indicate corruption or a programming error, never a recoverable condition.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("internal invariant violated: %s", e.Reason)
}

// TxnClosedError is returned by any operation on a transaction that has
// already committed or rolled back.
type TxnClosedError struct{}

func (e *TxnClosedError) Error() string {
	return "transaction is no longer active"
}
