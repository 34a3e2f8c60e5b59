package disk_test

import (
	"path/filepath"
	"testing"

	"github.com/bobboyms/bitdb/pkg/engine"
	"github.com/bobboyms/bitdb/pkg/engine/disk"
)

func TestSetGetDeletePersist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.data")

	e, err := disk.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := e.Set([]byte("key1"), []byte("val1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.Set([]byte("key2"), []byte("val2")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.Delete([]byte("key1")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := disk.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	if _, ok, _ := e2.Get([]byte("key1")); ok {
		t.Fatalf("key1 should have been deleted before close")
	}
	v, ok, err := e2.Get([]byte("key2"))
	if err != nil || !ok || string(v) != "val2" {
		t.Fatalf("Get(key2) after reopen = %q, %v, %v", v, ok, err)
	}
}

func TestSecondOpenFailsWithLockHeld(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.data")

	e, err := disk.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	if _, err := disk.Open(path); err == nil {
		t.Fatalf("expected second open of the same log file to fail")
	}
}

func TestScanPrefixOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.data")
	e, err := disk.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	for _, k := range []string{"row/3", "row/1", "row/2", "other/1"} {
		if err := e.Set([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}

	it, err := e.ScanPrefix([]byte("row/"))
	if err != nil {
		t.Fatalf("ScanPrefix: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, string(it.Item().Key))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	want := []string{"row/1", "row/2", "row/3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCompactionPreservesLiveState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.data")
	e, err := disk.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	keys := []string{"a", "b", "c", "d", "e"}
	for _, k := range keys {
		e.Set([]byte(k), []byte("v-"+k))
	}
	e.Delete([]byte("b"))
	e.Delete([]byte("d"))
	e.Set([]byte("a"), []byte("v-a-2"))

	if err := e.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	expected := map[string]string{"a": "v-a-2", "c": "v-c", "e": "v-e"}
	for k, want := range expected {
		v, ok, err := e.Get([]byte(k))
		if err != nil || !ok || string(v) != want {
			t.Fatalf("after compaction Get(%s) = %q, %v, %v; want %q", k, v, ok, err, want)
		}
	}
	for _, missing := range []string{"b", "d"} {
		if _, ok, _ := e.Get([]byte(missing)); ok {
			t.Fatalf("%s should not survive compaction", missing)
		}
	}

	// A fresh open of the compacted file must reconstruct the same state.
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	e2, err := disk.Open(path)
	if err != nil {
		t.Fatalf("reopen after compaction: %v", err)
	}
	defer e2.Close()
	for k, want := range expected {
		v, ok, err := e2.Get([]byte(k))
		if err != nil || !ok || string(v) != want {
			t.Fatalf("reopened Get(%s) = %q, %v, %v; want %q", k, v, ok, err, want)
		}
	}
}

func TestReverseScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.data")
	e, err := disk.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	for _, k := range []string{"a", "b", "c"} {
		e.Set([]byte(k), []byte(k))
	}

	it, err := e.Scan(engine.Range{Reverse: true})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, string(it.Item().Key))
	}
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
