// Copyright 2026 The Relaydb Authors
// This file is part of Relaydb.
//
// Relaydb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Relaydb is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Relaydb. If not, see <http://www.gnu.org/licenses/>.

// Package kvtest is an in-memory kv.DB for tests: a single exclusive
// writer over copy-on-write table snapshots, so readers started before a
// writer commits never observe its changes. It exists only so
// store/broker tests can exercise the real write and scan paths
// without an mdbx environment.
package kvtest

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/nostrbase/relaydb/kv"
)

type row struct {
	key, val []byte
}

type memTable struct {
	flags kv.TableFlags
	rows  []row // sorted by (key, val); one row per key on non-dup tables
}

func (t *memTable) clone() *memTable {
	rows := make([]row, len(t.rows))
	for i, r := range t.rows {
		rows[i] = row{key: append([]byte(nil), r.key...), val: append([]byte(nil), r.val...)}
	}
	return &memTable{flags: t.flags, rows: rows}
}

func (t *memTable) dupSort() bool { return t.flags&kv.DupSort != 0 }

// keyStart returns the index of the first row with this exact key, and
// whether the key is present at all.
func (t *memTable) keyStart(key []byte) (int, bool) {
	i := sort.Search(len(t.rows), func(i int) bool { return bytes.Compare(t.rows[i].key, key) >= 0 })
	return i, i < len(t.rows) && bytes.Equal(t.rows[i].key, key)
}

func (t *memTable) get(key []byte) []byte {
	i, ok := t.keyStart(key)
	if !ok {
		return nil
	}
	return t.rows[i].val
}

func (t *memTable) getBoth(key, value []byte) bool {
	i, ok := t.keyStart(key)
	if !ok {
		return false
	}
	for ; i < len(t.rows) && bytes.Equal(t.rows[i].key, key); i++ {
		if bytes.Equal(t.rows[i].val, value) {
			return true
		}
	}
	return false
}

func (t *memTable) put(key, value []byte) {
	if !t.dupSort() {
		i, ok := t.keyStart(key)
		if ok {
			t.rows[i].val = append([]byte(nil), value...)
			return
		}
		t.insertAt(i, row{key: append([]byte(nil), key...), val: append([]byte(nil), value...)})
		return
	}
	i := sort.Search(len(t.rows), func(i int) bool {
		if c := bytes.Compare(t.rows[i].key, key); c != 0 {
			return c >= 0
		}
		return bytes.Compare(t.rows[i].val, value) >= 0
	})
	if i < len(t.rows) && bytes.Equal(t.rows[i].key, key) && bytes.Equal(t.rows[i].val, value) {
		return // already present
	}
	t.insertAt(i, row{key: append([]byte(nil), key...), val: append([]byte(nil), value...)})
}

func (t *memTable) insertAt(i int, r row) {
	t.rows = append(t.rows, row{})
	copy(t.rows[i+1:], t.rows[i:])
	t.rows[i] = r
}

// del removes key. On a dup-sort table a non-nil value deletes only that
// duplicate; nil removes every duplicate under key (kv.RwTx.Del).
func (t *memTable) del(key, value []byte) {
	i, ok := t.keyStart(key)
	if !ok {
		return
	}
	if !t.dupSort() || value == nil {
		j := i
		for j < len(t.rows) && bytes.Equal(t.rows[j].key, key) {
			j++
		}
		t.rows = append(t.rows[:i], t.rows[j:]...)
		return
	}
	for j := i; j < len(t.rows) && bytes.Equal(t.rows[j].key, key); j++ {
		if bytes.Equal(t.rows[j].val, value) {
			t.rows = append(t.rows[:j], t.rows[j+1:]...)
			return
		}
	}
}

// DB is the in-memory kv.DB implementation.
type DB struct {
	mu     sync.Mutex
	wmu    sync.Mutex
	tables map[string]*memTable
}

// New builds an empty DB with every table in cfg declared.
func New(cfg kv.TableCfg) *DB {
	tables := make(map[string]*memTable, len(cfg))
	for name, item := range cfg {
		tables[name] = &memTable{flags: item.Flags}
	}
	return &DB{tables: tables}
}

func (db *DB) snapshot() map[string]*memTable {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make(map[string]*memTable, len(db.tables))
	for name, t := range db.tables {
		out[name] = t.clone()
	}
	return out
}

func (db *DB) Writer(ctx context.Context) (kv.RwTx, error) {
	db.wmu.Lock()
	return &rwTx{db: db, tables: db.snapshot()}, nil
}

func (db *DB) Reader(ctx context.Context) (kv.Tx, error) {
	return &roTx{tables: db.snapshot()}, nil
}

func (db *DB) Update(ctx context.Context, fn func(tx kv.RwTx) error) error {
	tx, err := db.Writer(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Abort()
		return err
	}
	return tx.Commit()
}

func (db *DB) View(ctx context.Context, fn func(tx kv.Tx) error) error {
	tx, err := db.Reader(ctx)
	if err != nil {
		return err
	}
	defer tx.Abort()
	return fn(tx)
}

func (db *DB) Flush() error { return nil }
func (db *DB) Close() error { return nil }

type roTx struct {
	tables map[string]*memTable
}

func (t *roTx) table(name string) *memTable {
	tb, ok := t.tables[name]
	if !ok {
		tb = &memTable{}
		t.tables[name] = tb
	}
	return tb
}

func (t *roTx) Get(table string, key []byte) ([]byte, error) {
	return t.table(table).get(key), nil
}

func (t *roTx) GetBoth(table string, key, value []byte) (bool, error) {
	return t.table(table).getBoth(key, value), nil
}

func (t *roTx) Cursor(table string) (kv.Cursor, error) {
	return &cursor{rows: append([]row(nil), t.table(table).rows...), pos: -1}, nil
}

func (t *roTx) Commit() error { return nil }
func (t *roTx) Abort()        {}

type rwTx struct {
	db     *DB
	tables map[string]*memTable
	done   bool
}

func (t *rwTx) table(name string) *memTable {
	tb, ok := t.tables[name]
	if !ok {
		tb = &memTable{}
		t.tables[name] = tb
	}
	return tb
}

func (t *rwTx) Get(table string, key []byte) ([]byte, error) {
	return t.table(table).get(key), nil
}

func (t *rwTx) GetBoth(table string, key, value []byte) (bool, error) {
	return t.table(table).getBoth(key, value), nil
}

func (t *rwTx) Cursor(table string) (kv.Cursor, error) {
	return &cursor{rows: append([]row(nil), t.table(table).rows...), pos: -1}, nil
}

func (t *rwTx) Put(table string, key, value []byte) error {
	t.table(table).put(key, value)
	return nil
}

func (t *rwTx) Del(table string, key, value []byte) error {
	t.table(table).del(key, value)
	return nil
}

func (t *rwTx) RwCursor(table string) (kv.RwCursor, error) {
	return &rwCursor{cursor: cursor{rows: append([]row(nil), t.table(table).rows...), pos: -1}, tx: t, table: table}, nil
}

func (t *rwTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.db.mu.Lock()
	t.db.tables = t.tables
	t.db.mu.Unlock()
	t.db.wmu.Unlock()
	return nil
}

func (t *rwTx) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.db.wmu.Unlock()
}

// cursor walks a point-in-time row snapshot; Seek/Next match kv.Cursor's
// contract exactly, including the (nil, nil, nil) end-of-stream sentinel.
type cursor struct {
	rows []row
	pos  int
	rev  bool
}

func (c *cursor) current() ([]byte, []byte, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, nil, nil
	}
	r := c.rows[c.pos]
	return r.key, r.val, nil
}

func (c *cursor) Seek(bound kv.Bound, rev bool) ([]byte, []byte, error) {
	c.rev = rev
	n := len(c.rows)
	switch bound.Kind {
	case kv.Unbounded:
		if rev {
			c.pos = n - 1
		} else {
			c.pos = 0
		}
	case kv.Included:
		if rev {
			i := sort.Search(n, func(i int) bool { return bytes.Compare(c.rows[i].key, bound.Key) > 0 })
			c.pos = i - 1
		} else {
			i := sort.Search(n, func(i int) bool { return bytes.Compare(c.rows[i].key, bound.Key) >= 0 })
			c.pos = i
		}
	case kv.Excluded:
		if rev {
			i := sort.Search(n, func(i int) bool { return bytes.Compare(c.rows[i].key, bound.Key) >= 0 })
			c.pos = i - 1
		} else {
			i := sort.Search(n, func(i int) bool { return bytes.Compare(c.rows[i].key, bound.Key) > 0 })
			c.pos = i
		}
	}
	return c.current()
}

func (c *cursor) Next() ([]byte, []byte, error) {
	if c.rev {
		c.pos--
	} else {
		c.pos++
	}
	return c.current()
}

func (c *cursor) Close() {}

// rwCursor additionally writes through to the owning transaction's
// table; store's write path never positions writes via a cursor (it
// uses RwTx.Put/Del directly), so this only needs to satisfy the
// interface, not a positioned-write workload.
type rwCursor struct {
	cursor
	tx    *rwTx
	table string
}

func (c *rwCursor) Put(k, v []byte) error {
	c.tx.table(c.table).put(k, v)
	return nil
}

func (c *rwCursor) Delete(k, v []byte) error {
	c.tx.table(c.table).del(k, v)
	return nil
}
