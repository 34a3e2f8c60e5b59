package kvfacade_test

import (
	"testing"

	"github.com/bobboyms/bitdb/pkg/engine/memory"
	"github.com/bobboyms/bitdb/pkg/kvfacade"
	"github.com/bobboyms/bitdb/pkg/mvcc"
)

type userRow struct {
	Name string `bson:"name"`
	Age  int32  `bson:"age"`
}

func beginFacade(t *testing.T, e *mvcc.Engine) (*kvfacade.Facade, *mvcc.Txn) {
	t.Helper()
	txn, err := e.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return kvfacade.New(txn), txn
}

func TestPutGetRowRoundTrip(t *testing.T) {
	e := mvcc.NewEngine(memory.New())
	f, txn := beginFacade(t, e)

	if err := f.PutRow("users", []byte("1"), userRow{Name: "Thiago", Age: 30}); err != nil {
		t.Fatalf("PutRow: %v", err)
	}

	var got userRow
	ok, err := f.GetRow("users", []byte("1"), &got)
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	if !ok {
		t.Fatalf("expected row to be found")
	}
	if got.Name != "Thiago" || got.Age != 30 {
		t.Fatalf("got %+v", got)
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestDeleteRowRemovesIt(t *testing.T) {
	e := mvcc.NewEngine(memory.New())
	f, txn := beginFacade(t, e)

	if err := f.PutRow("users", []byte("1"), userRow{Name: "Ana", Age: 22}); err != nil {
		t.Fatalf("PutRow: %v", err)
	}
	if err := f.DeleteRow("users", []byte("1")); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}

	var got userRow
	ok, err := f.GetRow("users", []byte("1"), &got)
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	if ok {
		t.Fatalf("expected row to be gone after delete")
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestScanTableOrdersByPrimaryKey(t *testing.T) {
	e := mvcc.NewEngine(memory.New())
	f, txn := beginFacade(t, e)

	rows := map[string]userRow{
		"3": {Name: "Carla", Age: 41},
		"1": {Name: "Ana", Age: 22},
		"2": {Name: "Bruno", Age: 35},
	}
	for pk, row := range rows {
		if err := f.PutRow("users", []byte(pk), row); err != nil {
			t.Fatalf("PutRow(%s): %v", pk, err)
		}
	}

	scanned, err := f.ScanTable("users")
	if err != nil {
		t.Fatalf("ScanTable: %v", err)
	}
	if len(scanned) != 3 {
		t.Fatalf("got %d rows, want 3", len(scanned))
	}
	wantOrder := []string{"1", "2", "3"}
	for i, row := range scanned {
		if string(row.PrimaryKeySuffix) != wantOrder[i] {
			t.Fatalf("row %d primary key = %q, want %q", i, row.PrimaryKeySuffix, wantOrder[i])
		}
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestTableSchemaRoundTrip(t *testing.T) {
	type schema struct {
		Columns []string `bson:"columns"`
	}

	e := mvcc.NewEngine(memory.New())
	f, txn := beginFacade(t, e)

	if err := f.PutTable("users", schema{Columns: []string{"name", "age"}}); err != nil {
		t.Fatalf("PutTable: %v", err)
	}

	var got schema
	ok, err := f.GetTable("users", &got)
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if !ok || len(got.Columns) != 2 {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}
