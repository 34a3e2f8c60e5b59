// Package pebble adapts cockroachdb/pebble, an LSM-tree key/value store,
// to engine.Engine. It is an alternate backend to pkg/engine/disk: the
// same interface, a production-grade storage engine underneath instead of
// the hand-rolled bitcask log. Grounded on the pack's direct pebble usage
// (other_examples/62a89edf_dialtr-pebble__db.go.go and siblings show the
// Reader/Writer/Iterator shape this wrapper narrows to engine.Engine).
package pebble

import (
	"github.com/bobboyms/bitdb/pkg/engine"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// Engine is engine.Engine backed by a pebble database directory.
type Engine struct {
	db *pebble.DB
}

var _ engine.Engine = (*Engine)(nil)

// Open opens (creating if absent) a pebble database at dir.
func Open(dir string) (*Engine, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "pebble engine: opening %q", dir)
	}
	return &Engine{db: db}, nil
}

func (e *Engine) Set(key, value []byte) error {
	if err := e.db.Set(key, value, pebble.NoSync); err != nil {
		return errors.Wrap(err, "pebble engine: set")
	}
	return nil
}

func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := e.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "pebble engine: get")
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, true, nil
}

func (e *Engine) Delete(key []byte) error {
	if err := e.db.Delete(key, pebble.NoSync); err != nil {
		return errors.Wrap(err, "pebble engine: delete")
	}
	return nil
}

func (e *Engine) Scan(r engine.Range) (engine.Iterator, error) {
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: r.Start, UpperBound: r.End})
	if err != nil {
		return nil, errors.Wrap(err, "pebble engine: new iterator")
	}

	if r.Reverse {
		return &iterator{iter: iter, advance: (*pebble.Iterator).Prev, seeded: iter.Last}, nil
	}
	return &iterator{iter: iter, advance: (*pebble.Iterator).Next, seeded: iter.First}, nil
}

func (e *Engine) ScanPrefix(prefix []byte) (engine.Iterator, error) {
	return e.Scan(engine.PrefixRange(prefix))
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// iterator adapts *pebble.Iterator to engine.Iterator; seeded positions the
// iterator on its first call, advance moves it on every subsequent call.
type iterator struct {
	iter    *pebble.Iterator
	seeded  func() bool
	advance func(*pebble.Iterator) bool
	started bool
	cur     engine.KeyValue
}

func (it *iterator) Next() bool {
	var ok bool
	if !it.started {
		ok = it.seeded()
		it.started = true
	} else {
		ok = it.advance(it.iter)
	}
	if !ok {
		return false
	}
	it.cur = engine.KeyValue{
		Key:   append([]byte(nil), it.iter.Key()...),
		Value: append([]byte(nil), it.iter.Value()...),
	}
	return true
}

func (it *iterator) Item() engine.KeyValue { return it.cur }
func (it *iterator) Err() error            { return it.iter.Error() }
func (it *iterator) Close() error          { return it.iter.Close() }
