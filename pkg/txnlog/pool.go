package txnlog

import "sync"

var (
	entryPool = sync.Pool{
		New: func() interface{} {
			return &Entry{Payload: make([]byte, 0, 256)}
		},
	}
)

// AcquireEntry returns a pooled Entry; callers must ReleaseEntry it once
// done to avoid defeating the pool.
func AcquireEntry() *Entry {
	return entryPool.Get().(*Entry)
}

// ReleaseEntry zeroes and returns an Entry to the pool.
func ReleaseEntry(e *Entry) {
	e.Header = Header{}
	e.Payload = e.Payload[:0]
	entryPool.Put(e)
}
