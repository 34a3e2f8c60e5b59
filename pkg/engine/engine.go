// Package engine defines the common abstraction every key/value backend in
// bitdb implements: point operations plus an ordered, bidirectional range
// scan. pkg/engine/memory, pkg/engine/disk, and pkg/engine/pebble are its
// three implementations; pkg/mvcc is its only caller below the SQL-facing
// pkg/kvfacade.
package engine

// KeyValue is one entry produced by an Iterator.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Range describes a half-open key range [Start, End). A nil Start means "no
// lower bound"; a nil End means "no upper bound". Reverse requests the same
// elements in descending key order.
type Range struct {
	Start   []byte
	End     []byte
	Reverse bool
}

// Iterator walks a Range in ascending or descending key order. Iterators
// borrow the engine they were created from: holding one live precludes any
// other call on the same engine/transaction until it is closed, per
// spec.md §5 ("an in-progress engine iterator pins the lock").
type Iterator interface {
	// Next advances the iterator and reports whether an item is available.
	Next() bool
	// Item returns the current entry. Valid only after Next returns true.
	Item() KeyValue
	// Err returns the first error encountered during iteration, if any.
	Err() error
	// Close releases any resources (and the lock) the iterator holds.
	Close() error
}

// Engine is the ordered byte-keyed key/value store every backend
// implements. Delete on a missing key is a no-op and never fails; a missing
// Get is reported via the bool, not an error.
type Engine interface {
	Set(key, value []byte) error
	Get(key []byte) ([]byte, bool, error)
	Delete(key []byte) error

	// Scan returns entries in r in ascending key order, or descending order
	// if r.Reverse is set. Both directions yield the same set of entries.
	Scan(r Range) (Iterator, error)

	// ScanPrefix is defined as Scan({Start: prefix, End: succ(prefix)}). See
	// Succ for the exact boundary behavior this implies.
	ScanPrefix(prefix []byte) (Iterator, error)

	// Close releases the engine's resources (file handles, locks, ...).
	Close() error
}

// Succ computes the exclusive upper bound for a prefix scan by incrementing
// the prefix's last byte. If that byte is already 0xFF, the increment would
// overflow, and ok is false: callers must treat that as "no upper bound"
// (scan to the end of the keyspace). This means an all-0xFF-terminated
// prefix degenerates to "scan to end" rather than an empty range — per
// spec.md §4.A and the open question in §9.4, this is documented behavior,
// not a bug to paper over; callers must avoid passing such a prefix.
func Succ(prefix []byte) (upper []byte, ok bool) {
	if len(prefix) == 0 {
		return nil, false
	}
	if prefix[len(prefix)-1] == 0xFF {
		return nil, false
	}
	out := make([]byte, len(prefix))
	copy(out, prefix)
	out[len(out)-1]++
	return out, true
}

// PrefixRange builds the Range a ScanPrefix(prefix) call should scan,
// applying Succ's boundary rule.
func PrefixRange(prefix []byte) Range {
	end, ok := Succ(prefix)
	if !ok {
		return Range{Start: prefix, End: nil}
	}
	return Range{Start: prefix, End: end}
}
