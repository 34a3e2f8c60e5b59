package pebble_test

import (
	"path/filepath"
	"testing"

	"github.com/bobboyms/bitdb/pkg/engine"
	bpebble "github.com/bobboyms/bitdb/pkg/engine/pebble"
)

func TestSetGetDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble-data")
	e, err := bpebble.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	if err := e.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := e.Get([]byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("Get(a) = %q, %v, %v", v, ok, err)
	}

	if err := e.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := e.Get([]byte("a")); ok {
		t.Fatalf("a should be gone")
	}
}

func TestScanPrefixAndReverse(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble-data")
	e, err := bpebble.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	for _, k := range []string{"row/1", "row/2", "row/3", "other"} {
		e.Set([]byte(k), []byte(k))
	}

	it, err := e.ScanPrefix([]byte("row/"))
	if err != nil {
		t.Fatalf("ScanPrefix: %v", err)
	}
	var forward []string
	for it.Next() {
		forward = append(forward, string(it.Item().Key))
	}
	it.Close()
	want := []string{"row/1", "row/2", "row/3"}
	for i := range want {
		if forward[i] != want[i] {
			t.Fatalf("got %v, want %v", forward, want)
		}
	}

	rit, err := e.Scan(engine.Range{Start: []byte("row/"), End: []byte("row/\xff"), Reverse: true})
	if err != nil {
		t.Fatalf("Scan reverse: %v", err)
	}
	var backward []string
	for rit.Next() {
		backward = append(backward, string(rit.Item().Key))
	}
	rit.Close()
	wantRev := []string{"row/3", "row/2", "row/1"}
	for i := range wantRev {
		if backward[i] != wantRev[i] {
			t.Fatalf("got %v, want %v", backward, wantRev)
		}
	}
}
