package txnlog

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

var (
	ErrInvalidMagic      = errors.New("txnlog: invalid magic number")
	ErrChecksumMismatch  = errors.New("txnlog: CRC32 checksum mismatch")
	ErrInvalidPayloadLen = errors.New("txnlog: implausible payload length")
)

// Reader reads entries back sequentially from a log file.
type Reader struct {
	file   *os.File
	offset int64
}

// NewReader opens path for sequential reading.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "txnlog: opening %q", path)
	}
	return &Reader{file: f}, nil
}

// ReadEntry reads the next entry, or returns io.EOF at a clean end of file.
func (r *Reader) ReadEntry() (*Entry, error) {
	headerBuf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r.file, headerBuf)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrap(err, "txnlog: reading header")
	}
	if n != HeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	var header Header
	header.Decode(headerBuf)

	if header.Magic != Magic {
		return nil, ErrInvalidMagic
	}

	if header.PayloadLen == 0 {
		return &Entry{Header: header}, nil
	}

	if header.PayloadLen > 1024*1024*1024 {
		return nil, ErrInvalidPayloadLen
	}

	entry := AcquireEntry()
	entry.Header = header

	if uint32(cap(entry.Payload)) < header.PayloadLen {
		entry.Payload = make([]byte, header.PayloadLen)
	} else {
		entry.Payload = entry.Payload[:header.PayloadLen]
	}

	if _, err := io.ReadFull(r.file, entry.Payload); err != nil {
		ReleaseEntry(entry)
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "txnlog: reading payload")
	}

	if !ValidateCRC32(entry.Payload, header.CRC32) {
		ReleaseEntry(entry)
		return nil, ErrChecksumMismatch
	}

	r.offset += int64(HeaderSize) + int64(header.PayloadLen)
	return entry, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
