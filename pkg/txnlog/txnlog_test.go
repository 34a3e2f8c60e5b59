package txnlog_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/bobboyms/bitdb/pkg/txnlog"
)

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txn.log")

	opts := txnlog.DefaultOptions()
	opts.SyncPolicy = txnlog.SyncEveryWrite

	w, err := txnlog.NewWriter(path, opts)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	events := []struct {
		kind    txnlog.EventType
		version uint64
		payload []byte
	}{
		{txnlog.EventBegin, 1, nil},
		{txnlog.EventCommit, 1, nil},
		{txnlog.EventConflict, 2, []byte("key1")},
	}

	for _, ev := range events {
		e := &txnlog.Entry{
			Header: txnlog.Header{
				Magic:      txnlog.Magic,
				Version:    txnlog.LogVersion,
				EventType:  ev.kind,
				TxnVersion: ev.version,
				PayloadLen: uint32(len(ev.payload)),
				CRC32:      txnlog.CalculateCRC32(ev.payload),
			},
			Payload: ev.payload,
		}
		if err := w.WriteEntry(e); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close writer: %v", err)
	}

	r, err := txnlog.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	for i, want := range events {
		got, err := r.ReadEntry()
		if err != nil {
			t.Fatalf("ReadEntry %d: %v", i, err)
		}
		if got.Header.EventType != want.kind || got.Header.TxnVersion != want.version {
			t.Fatalf("entry %d = %+v, want kind %v version %v", i, got.Header, want.kind, want.version)
		}
		if string(got.Payload) != string(want.payload) {
			t.Fatalf("entry %d payload = %q, want %q", i, got.Payload, want.payload)
		}
	}

	if _, err := r.ReadEntry(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of log, got %v", err)
	}
}

func TestChecksumMismatchDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txn.log")
	w, err := txnlog.NewWriter(path, txnlog.DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	e := &txnlog.Entry{
		Header: txnlog.Header{
			Magic:      txnlog.Magic,
			EventType:  txnlog.EventConflict,
			TxnVersion: 1,
			PayloadLen: 3,
			CRC32:      0xDEADBEEF, // deliberately wrong
		},
		Payload: []byte("abc"),
	}
	if err := w.WriteEntry(e); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := txnlog.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadEntry(); err != txnlog.ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}
