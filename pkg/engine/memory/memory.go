// Package memory implements engine.Engine entirely in RAM, backed by
// pkg/btree. It keeps no log and loses all data on process exit; it exists
// for tests and for callers that want an engine.Engine without persistence.
package memory

import (
	"github.com/bobboyms/bitdb/pkg/btree"
	"github.com/bobboyms/bitdb/pkg/engine"
)

// Engine is an in-memory, ordered key/value store. Concurrency safety comes
// entirely from pkg/btree's own per-node latching; this type adds no lock
// of its own.
type Engine struct {
	tree *btree.BPlusTree
}

// New returns an empty in-memory engine.
func New() *Engine {
	return &Engine{tree: btree.NewTree(32)}
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) Set(key, value []byte) error {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	return e.tree.Set(k, v)
}

func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	v, ok := e.tree.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (e *Engine) Delete(key []byte) error {
	e.tree.Delete(key)
	return nil
}

func (e *Engine) Scan(r engine.Range) (engine.Iterator, error) {
	if r.Reverse {
		return &reverseIterator{c: btree.NewReverseCursor(e.tree, r.Start, r.End)}, nil
	}
	return &forwardIterator{c: btree.NewCursor(e.tree, r.Start, r.End)}, nil
}

func (e *Engine) ScanPrefix(prefix []byte) (engine.Iterator, error) {
	return e.Scan(engine.PrefixRange(prefix))
}

func (e *Engine) Close() error {
	return nil
}

type forwardIterator struct {
	c   *btree.Cursor
	cur engine.KeyValue
}

func (it *forwardIterator) Next() bool {
	if !it.c.Next() {
		return false
	}
	it.cur = engine.KeyValue{Key: it.c.Key(), Value: it.c.Value()}
	return true
}

func (it *forwardIterator) Item() engine.KeyValue { return it.cur }
func (it *forwardIterator) Err() error            { return nil }
func (it *forwardIterator) Close() error          { it.c.Close(); return nil }

type reverseIterator struct {
	c   *btree.ReverseCursor
	cur engine.KeyValue
}

func (it *reverseIterator) Next() bool {
	if !it.c.Next() {
		return false
	}
	it.cur = engine.KeyValue{Key: it.c.Key(), Value: it.c.Value()}
	return true
}

func (it *reverseIterator) Item() engine.KeyValue { return it.cur }
func (it *reverseIterator) Err() error            { return nil }
func (it *reverseIterator) Close() error          { it.c.Close(); return nil }
