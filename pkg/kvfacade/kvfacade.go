// Package kvfacade is the narrow interface a SQL-ish front end is allowed
// to build on: it owns the user-key conventions (Table/Row) over a single
// *mvcc.Txn and the document encoding for the bytes stored there. It adds
// no query semantics of its own. Row/schema payloads are encoded as BSON
// (go.mongodb.org/mongo-driver/v2/bson), the teacher's document encoding
// of choice (pkg/storage/bson.go's MarshalBson/UnmarshalBson), so a caller
// can hand the facade a Go value and get back opaque bytes the MVCC layer
// is happy to store.
package kvfacade

import (
	"github.com/bobboyms/bitdb/pkg/keycodec"
	"github.com/bobboyms/bitdb/pkg/mvcc"
	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	tagTable byte = 0
	tagRow   byte = 1
)

// TableKey returns the user key under which a table's schema document is
// stored.
func TableKey(name string) []byte {
	return keycodec.NewEncoder().Tag(tagTable).Bytes([]byte(name)).Finish()
}

// RowKey returns the user key for one row, identified by its table name
// and primary key value (already rendered to bytes by the caller — this
// package does not know about SQL column types).
func RowKey(table string, primaryKey []byte) []byte {
	return keycodec.NewEncoder().Tag(tagRow).Bytes([]byte(table)).Bytes(primaryKey).Finish()
}

// RowPrefix returns the scan_prefix argument that yields every row of
// table, in primary-key order. Because the table name's terminator is
// truncated, it also matches rows of any table whose name begins with
// table; ScanTable drops those.
func RowPrefix(table string) []byte {
	return keycodec.TruncateTerminator(keycodec.NewEncoder().Tag(tagRow).Bytes([]byte(table)).Finish())
}

// Facade adapts a *mvcc.Txn to document-shaped reads and writes, using the
// Table/Row key conventions above.
type Facade struct {
	txn *mvcc.Txn
}

// New wraps txn. The facade does not own txn's lifecycle: the caller still
// calls Commit/Rollback on it directly.
func New(txn *mvcc.Txn) *Facade {
	return &Facade{txn: txn}
}

// PutTable stores schema, marshaled as BSON, under table's TableKey.
func (f *Facade) PutTable(name string, schema any) error {
	raw, err := bson.Marshal(schema)
	if err != nil {
		return errors.Wrapf(err, "kvfacade: marshaling schema for table %q", name)
	}
	return f.txn.Set(TableKey(name), raw)
}

// GetTable reads table's schema document back into out, which must be a
// pointer, as bson.Unmarshal requires.
func (f *Facade) GetTable(name string, out any) (bool, error) {
	raw, ok, err := f.txn.Get(TableKey(name))
	if err != nil {
		return false, errors.Wrapf(err, "kvfacade: reading schema for table %q", name)
	}
	if !ok {
		return false, nil
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return false, errors.Wrapf(err, "kvfacade: unmarshaling schema for table %q", name)
	}
	return true, nil
}

// PutRow stores row, marshaled as BSON, under (table, primaryKey)'s RowKey.
func (f *Facade) PutRow(table string, primaryKey []byte, row any) error {
	raw, err := bson.Marshal(row)
	if err != nil {
		return errors.Wrapf(err, "kvfacade: marshaling row in table %q", table)
	}
	return f.txn.Set(RowKey(table, primaryKey), raw)
}

// GetRow reads one row back into out.
func (f *Facade) GetRow(table string, primaryKey []byte, out any) (bool, error) {
	raw, ok, err := f.txn.Get(RowKey(table, primaryKey))
	if err != nil {
		return false, errors.Wrapf(err, "kvfacade: reading row in table %q", table)
	}
	if !ok {
		return false, nil
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return false, errors.Wrapf(err, "kvfacade: unmarshaling row in table %q", table)
	}
	return true, nil
}

// DeleteRow removes a row, if present.
func (f *Facade) DeleteRow(table string, primaryKey []byte) error {
	return f.txn.Delete(RowKey(table, primaryKey))
}

// Row is one raw entry returned by ScanTable, still BSON-encoded: the
// caller decodes it with the document shape it expects.
type Row struct {
	PrimaryKeySuffix []byte
	Raw              []byte
}

// ScanTable returns every row of table in primary-key order, as a
// snapshot-consistent view per the wrapped transaction's isolation.
func (f *Facade) ScanTable(table string) ([]Row, error) {
	entries, err := f.txn.ScanPrefix(RowPrefix(table))
	if err != nil {
		return nil, errors.Wrapf(err, "kvfacade: scanning table %q", table)
	}

	out := make([]Row, 0, len(entries))
	for _, kv := range entries {
		pk, ok, err := rowPrimaryKey(table, kv.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // a row of another table whose name begins with table
		}
		out = append(out, Row{PrimaryKeySuffix: pk, Raw: kv.Value})
	}
	return out, nil
}

// rowPrimaryKey decodes a RowKey, reporting ok=false if it belongs to a
// table other than table.
func rowPrimaryKey(table string, encodedKey []byte) ([]byte, bool, error) {
	d := keycodec.NewDecoder(encodedKey)
	if _, err := d.Tag(); err != nil {
		return nil, false, err
	}
	name, err := d.Bytes()
	if err != nil {
		return nil, false, err
	}
	if string(name) != table {
		return nil, false, nil
	}
	pk, err := d.Bytes()
	if err != nil {
		return nil, false, err
	}
	return pk, true, nil
}
