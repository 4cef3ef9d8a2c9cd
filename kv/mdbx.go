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

package kv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/erigontech/mdbx-go/mdbx"
)

// mdbxDB implements DB on top of libmdbx, following erigon's own
// kv_mdbx.go: one *mdbx.Env per database directory, one dbi per
// declared table, a mutex serializing writer acquisition since mdbx
// itself only allows a single read-write transaction at a time anyway
// (the mutex just lets us queue politely instead of blocking inside the
// C call with a live context).
type mdbxDB struct {
	env  *mdbx.Env
	dbis map[string]mdbx.DBI

	wmu sync.Mutex
}

// Open opens (creating if absent) an mdbx environment at opts.Path with
// every table in TablesCfg declared up front (§4.1: "Open/create a tree
// with optional dup-sort semantics").
func Open(opts Options) (DB, error) {
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, Wrap(err)
	}

	maxTables := opts.MaxTables
	if maxTables == 0 {
		maxTables = len(TablesCfg) + 8
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(maxTables)); err != nil {
		return nil, Wrap(err)
	}

	maxReaders := opts.MaxReaders
	if maxReaders == 0 {
		maxReaders = 4096
	}
	if err := env.SetOption(mdbx.OptMaxReaders, uint64(maxReaders)); err != nil {
		return nil, Wrap(err)
	}

	mapSize := opts.MaxMapSize
	if mapSize == 0 {
		mapSize = 1 << 30 // 1GiB default growth ceiling
	}
	if err := env.SetGeometry(-1, -1, int(mapSize), -1, -1, -1); err != nil {
		return nil, Wrap(err)
	}

	flags := uint(mdbx.NoReadahead)
	if opts.ReadOnly {
		flags |= mdbx.Readonly
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil && !opts.ReadOnly {
		return nil, Wrap(err)
	}
	if err := env.Open(opts.Path, flags, 0o644); err != nil {
		return nil, Wrap(err)
	}

	db := &mdbxDB{env: env, dbis: make(map[string]mdbx.DBI, len(TablesCfg))}
	if err := db.createTables(); err != nil {
		env.Close()
		return nil, err
	}
	return db, nil
}

func (db *mdbxDB) createTables() error {
	return db.env.Update(func(txn *mdbx.Txn) error {
		for name, cfg := range TablesCfg {
			nativeFlags := uint(mdbx.Create)
			if cfg.Flags&DupSort != 0 {
				nativeFlags |= mdbx.DupSort
			}
			if cfg.Flags&IntegerKey != 0 {
				nativeFlags |= mdbx.IntegerKey
			}
			dbi, err := txn.OpenDBISimple(name, nativeFlags)
			if err != nil {
				return fmt.Errorf("open table %s: %w", name, err)
			}
			db.dbis[name] = dbi
		}
		return nil
	})
}

func (db *mdbxDB) dbi(table string) (mdbx.DBI, error) {
	d, ok := db.dbis[table]
	if !ok {
		return 0, fmt.Errorf("kv: unknown table %q", table)
	}
	return d, nil
}

func (db *mdbxDB) Writer(ctx context.Context) (RwTx, error) {
	db.wmu.Lock()
	txn, err := db.env.BeginTxn(nil, 0)
	if err != nil {
		db.wmu.Unlock()
		return nil, Wrap(err)
	}
	return &mdbxTx{db: db, txn: txn, writer: true, release: db.wmu.Unlock}, nil
}

func (db *mdbxDB) Reader(ctx context.Context) (Tx, error) {
	txn, err := db.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, Wrap(err)
	}
	return &mdbxTx{db: db, txn: txn}, nil
}

func (db *mdbxDB) Update(ctx context.Context, fn func(tx RwTx) error) error {
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

func (db *mdbxDB) View(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := db.Reader(ctx)
	if err != nil {
		return err
	}
	defer tx.Abort()
	return fn(tx)
}

func (db *mdbxDB) Flush() error {
	return Wrap(db.env.Sync(true, false))
}

func (db *mdbxDB) Close() error {
	db.env.Close()
	return nil
}

// mdbxTx implements both Tx and RwTx; RwTx-only methods called on a
// reader do not panic: they return the error mdbx reports, wrapped.
type mdbxTx struct {
	db      *mdbxDB
	txn     *mdbx.Txn
	writer  bool
	release func() // unlocks db.wmu, only set for writers
	done    bool
}

func (tx *mdbxTx) Get(table string, key []byte) ([]byte, error) {
	dbi, err := tx.db.dbi(table)
	if err != nil {
		return nil, err
	}
	v, err := tx.txn.Get(dbi, key)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, Wrap(err)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (tx *mdbxTx) GetBoth(table string, key, value []byte) (bool, error) {
	cur, err := tx.Cursor(table)
	if err != nil {
		return false, err
	}
	defer cur.Close()
	mc := cur.(*mdbxCursor)
	_, v, err := mc.get(key, value, mdbx.GetBothRange)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return false, nil
		}
		return false, Wrap(err)
	}
	return bytes.Equal(v, value), nil
}

func (tx *mdbxTx) Cursor(table string) (Cursor, error) {
	dbi, err := tx.db.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := tx.txn.OpenCursor(dbi)
	if err != nil {
		return nil, Wrap(err)
	}
	return &mdbxCursor{c: c}, nil
}

func (tx *mdbxTx) RwCursor(table string) (RwCursor, error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return nil, err
	}
	return &mdbxCursor{c: c.(*mdbxCursor).c}, nil
}

func (tx *mdbxTx) Put(table string, key, value []byte) error {
	dbi, err := tx.db.dbi(table)
	if err != nil {
		return err
	}
	if err := tx.txn.Put(dbi, key, value, 0); err != nil {
		if mdbx.IsMapFull(err) {
			return ErrMapFull
		}
		return Wrap(err)
	}
	return nil
}

func (tx *mdbxTx) Del(table string, key, value []byte) error {
	dbi, err := tx.db.dbi(table)
	if err != nil {
		return err
	}
	if err := tx.txn.Del(dbi, key, value); err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		return Wrap(err)
	}
	return nil
}

func (tx *mdbxTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	_, err := tx.txn.Commit()
	if tx.release != nil {
		tx.release()
	}
	if err != nil {
		return Wrap(err)
	}
	return nil
}

func (tx *mdbxTx) Abort() {
	if tx.done {
		return
	}
	tx.done = true
	tx.txn.Abort()
	if tx.release != nil {
		tx.release()
	}
}

// mdbxCursor adapts mdbx's Get(key, val, op) state machine to the
// Seek/Next shape of kv.Cursor.
type mdbxCursor struct {
	c   *mdbx.Cursor
	rev bool
}

func (c *mdbxCursor) get(key, val []byte, op mdbx.CursorOp) ([]byte, []byte, error) {
	return c.c.Get(key, val, op)
}

func (c *mdbxCursor) Seek(bound Bound, rev bool) ([]byte, []byte, error) {
	c.rev = rev
	var (
		k, v []byte
		err  error
	)
	switch {
	case bound.IsUnbounded() && !rev:
		k, v, err = c.c.Get(nil, nil, mdbx.First)
	case bound.IsUnbounded() && rev:
		k, v, err = c.c.Get(nil, nil, mdbx.Last)
	case !rev:
		k, v, err = c.c.Get(bound.Key, nil, mdbx.SetRange)
		if err == nil && bound.Kind == Excluded && bytes.Equal(k, bound.Key) {
			k, v, err = c.c.Get(nil, nil, mdbx.Next)
		}
	default: // rev
		k, v, err = c.c.Get(bound.Key, nil, mdbx.SetRange)
		if err != nil && mdbx.IsNotFound(err) {
			k, v, err = c.c.Get(nil, nil, mdbx.Last)
		} else if err == nil && (bound.Kind == Excluded && bytes.Equal(k, bound.Key) || !bytes.Equal(k, bound.Key)) {
			k, v, err = c.c.Get(nil, nil, mdbx.Prev)
		}
	}
	return endOfStream(k, v, err)
}

func (c *mdbxCursor) Next() ([]byte, []byte, error) {
	op := mdbx.Next
	if c.rev {
		op = mdbx.Prev
	}
	k, v, err := c.c.Get(nil, nil, op)
	return endOfStream(k, v, err)
}

func (c *mdbxCursor) Put(k, v []byte) error {
	if err := c.c.Put(k, v, 0); err != nil {
		return Wrap(err)
	}
	return nil
}

func (c *mdbxCursor) Delete(k, v []byte) error {
	if v != nil {
		if _, _, err := c.c.Get(k, v, mdbx.GetBothRange); err != nil {
			if mdbx.IsNotFound(err) {
				return nil
			}
			return Wrap(err)
		}
	} else {
		if _, _, err := c.c.Get(k, nil, mdbx.SetKey); err != nil {
			if mdbx.IsNotFound(err) {
				return nil
			}
			return Wrap(err)
		}
	}
	if err := c.c.Del(0); err != nil {
		return Wrap(err)
	}
	return nil
}

func (c *mdbxCursor) Close() { c.c.Close() }

// endOfStream converts mdbx's NotFound into the contract's "end of
// stream, not an error" behavior (§4.1: "On wrong-direction bound
// overflow it returns end-of-stream rather than error").
func endOfStream(k, v []byte, err error) ([]byte, []byte, error) {
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, Wrap(err)
	}
	return k, v, nil
}

// Wrap turns a raw mdbx error into the KvError the contract promises.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("kv: %w", err)
}
