// Package keycodec implements the order-preserving, self-delimiting binary
// encoding used for tagged composite keys throughout bitdb. Its one
// invariant: for any two well-typed encodings of the same variant shape, the
// byte-lexicographic order of the encodings equals the logical tuple order
// of the values encoded. This is what lets a range scan over encoded
// Version(k, v1)..=Version(k, v2) yield exactly the versions of k in
// ascending order, and what lets scan_prefix(Version(k)) yield the versions
// of every key that begins with k, grouped by key.
//
// A general-purpose serializer (gob, JSON, a length-prefixed scheme) does
// not have this property, so this package is hand-written rather than
// reused from one. See pkg/wal/entry.go in the teacher for the
// byte-offset-based Encode/Decode idiom this package follows.
package keycodec

import (
	"encoding/binary"

	"github.com/bobboyms/bitdb/pkg/dberrors"
)

const (
	escZero      byte = 0x00
	escLiteral   byte = 0xFF // 0x00 0xFF -> a literal zero byte in the original string
	escTerminate byte = 0x00 // 0x00 0x00 -> end of string
)

// Encoder builds a single composite key by appending tag bytes, fixed-width
// big-endian integers, and order-preserving escaped byte strings, in
// declared order, with no length prefixes (inner terminators delimit
// everything that needs delimiting).
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Tag appends a single-byte variant tag. Variants must fit in one byte.
func (e *Encoder) Tag(variant byte) *Encoder {
	e.buf = append(e.buf, variant)
	return e
}

// Uint64 appends v as 8 big-endian bytes, which preserves numeric order
// lexicographically.
func (e *Encoder) Uint64(v uint64) *Encoder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
	return e
}

// Bytes appends b as a self-delimiting, order-preserving byte string: every
// 0x00 byte in b is escaped as 0x00 0xFF, and the whole string is terminated
// by the sentinel 0x00 0x00.
func (e *Encoder) Bytes(b []byte) *Encoder {
	for _, c := range b {
		if c == escZero {
			e.buf = append(e.buf, escZero, escLiteral)
		} else {
			e.buf = append(e.buf, c)
		}
	}
	e.buf = append(e.buf, escZero, escTerminate)
	return e
}

// Finish returns the accumulated encoding.
func (e *Encoder) Finish() []byte {
	return e.buf
}

// Decoder reads back values written by Encoder, in the same declared order.
type Decoder struct {
	buf []byte
}

// NewDecoder wraps buf for sequential decoding.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Tag reads a single variant tag byte.
func (d *Decoder) Tag() (byte, error) {
	if len(d.buf) < 1 {
		return 0, &dberrors.DecodeError{Reason: "unexpected end of input reading tag"}
	}
	tag := d.buf[0]
	d.buf = d.buf[1:]
	return tag, nil
}

// Uint64 reads 8 big-endian bytes back into a uint64.
func (d *Decoder) Uint64() (uint64, error) {
	if len(d.buf) < 8 {
		return 0, &dberrors.DecodeError{Reason: "unexpected end of input reading uint64"}
	}
	v := binary.BigEndian.Uint64(d.buf[:8])
	d.buf = d.buf[8:]
	return v, nil
}

// Bytes reads an escaped, terminated byte string: bytes are copied through
// until a 0x00 is seen, which must be followed by either 0x00 (end of
// string) or 0xFF (a literal embedded zero); any other continuation byte is
// a decode error.
func (d *Decoder) Bytes() ([]byte, error) {
	var out []byte
	for {
		if len(d.buf) == 0 {
			return nil, &dberrors.DecodeError{Reason: "unterminated byte string"}
		}
		c := d.buf[0]
		if c != escZero {
			out = append(out, c)
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < 2 {
			return nil, &dberrors.DecodeError{Reason: "truncated escape sequence"}
		}
		switch d.buf[1] {
		case escTerminate:
			d.buf = d.buf[2:]
			return out, nil
		case escLiteral:
			out = append(out, escZero)
			d.buf = d.buf[2:]
		default:
			return nil, &dberrors.DecodeError{Reason: "invalid escape continuation byte"}
		}
	}
}

// Remaining returns the bytes not yet consumed.
func (d *Decoder) Remaining() []byte {
	return d.buf
}

// Done reports whether every byte has been consumed.
func (d *Decoder) Done() bool {
	return len(d.buf) == 0
}

// TruncateTerminator strips the trailing 2-byte string terminator (0x00
// 0x00) from an encoding that ends in a Bytes() field, producing a prefix
// that matches every encoding beginning with that same byte string. This is
// the "prefix trick" MVCC uses to scan_prefix(Version(k)) and get exactly
// the versions of k: because an embedded 0x00 inside k is escaped as
// 0x00 0xFF, truncating the terminator can never accidentally match a key
// that merely shares a textual prefix with k.
func TruncateTerminator(encoded []byte) []byte {
	if len(encoded) < 2 {
		return encoded
	}
	return encoded[:len(encoded)-2]
}
