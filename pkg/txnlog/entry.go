// Package txnlog is an optional, append-only audit log of MVCC
// transaction lifecycle events (begin/commit/rollback/conflict), keyed by
// transaction version instead of a document LSN. It is not on the path
// recovery depends on — the MVCC layer's own records in the underlying
// engine are the sole source of truth — it exists purely as an
// observability trail. Adapted from the teacher's pkg/wal, keeping its
// fixed-size checksummed header, sync.Pool-recycled entries, and buffered
// writer with a configurable sync policy.
package txnlog

import (
	"encoding/binary"
	"io"
)

const (
	HeaderSize = 24 // fixed header size in bytes
	LogVersion = 1

	// Magic distinguishes this log's entries from the teacher's WAL format;
	// chosen arbitrarily, checked on every read.
	Magic = 0xB17D0001
)

// EventType identifies what happened to a transaction.
type EventType uint8

const (
	EventBegin EventType = iota + 1
	EventCommit
	EventRollback
	EventConflict
)

// Header is the fixed 24-byte prefix of every entry.
type Header struct {
	Magic      uint32
	Version    uint8
	EventType  EventType
	Reserved   uint16
	TxnVersion uint64 // the MVCC transaction version this event concerns
	PayloadLen uint32
	CRC32      uint32
}

// Entry is one complete record in the log: a header plus an optional
// payload (e.g. the key involved in an EventConflict).
type Entry struct {
	Header  Header
	Payload []byte
}

func (h *Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = uint8(h.EventType)
	binary.LittleEndian.PutUint16(buf[6:8], h.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], h.TxnVersion)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC32)
}

func (h *Header) Decode(buf []byte) {
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = buf[4]
	h.EventType = EventType(buf[5])
	h.Reserved = binary.LittleEndian.Uint16(buf[6:8])
	h.TxnVersion = binary.LittleEndian.Uint64(buf[8:16])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[16:20])
	h.CRC32 = binary.LittleEndian.Uint32(buf[20:24])
}

// WriteTo writes the entry (header then payload) to w.
func (e *Entry) WriteTo(w io.Writer) (int64, error) {
	var headerBuf [HeaderSize]byte
	e.Header.Encode(headerBuf[:])

	n, err := w.Write(headerBuf[:])
	if err != nil {
		return int64(n), err
	}

	m, err := w.Write(e.Payload)
	return int64(n + m), err
}
