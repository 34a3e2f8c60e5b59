package txnlog

import "time"

// SyncPolicy controls when the writer calls fsync.
type SyncPolicy int

const (
	// SyncEveryWrite fsyncs after every entry. Safest, slowest.
	SyncEveryWrite SyncPolicy = iota
	// SyncInterval fsyncs on a background timer.
	SyncInterval
	// SyncBatch fsyncs once buffered writes cross SyncBatchBytes.
	SyncBatch
)

// Options configures a Writer.
type Options struct {
	BufferSize           int
	SyncPolicy           SyncPolicy
	SyncIntervalDuration time.Duration
	SyncBatchBytes       int64
}

// DefaultOptions mirrors a reasonable-durability default: periodic fsync
// every 200ms, 64KB of bufio buffering.
func DefaultOptions() Options {
	return Options{
		BufferSize:           64 * 1024,
		SyncPolicy:           SyncInterval,
		SyncIntervalDuration: 200 * time.Millisecond,
		SyncBatchBytes:       1 * 1024 * 1024,
	}
}
