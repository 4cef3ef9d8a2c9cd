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

// Package kv is the ordered, transactional, duplicate-capable key/value
// engine contract (spec §4.1). It is deliberately narrow: callers only
// ever see Tx/RwTx/Cursor, never the underlying mdbx types, so the engine
// can be swapped without touching store/scanner/sub.
//
// Variable naming follows erigon's convention:
//
//	tx   - database transaction
//	k, v - key, value
//	dbi  - opened table handle
package kv

import (
	"context"
	"errors"
)

// BoundKind selects how a seek Bound is interpreted relative to the key.
type BoundKind int

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

// Bound is a one-sided seek/range boundary.
type Bound struct {
	Kind BoundKind
	Key  []byte
}

func Unbound() Bound              { return Bound{Kind: Unbounded} }
func Incl(key []byte) Bound       { return Bound{Kind: Included, Key: key} }
func Excl(key []byte) Bound       { return Bound{Kind: Excluded, Key: key} }
func (b Bound) IsUnbounded() bool { return b.Kind == Unbounded }

// TableFlags mirrors the erigon-lib TableFlags bitset used to declare
// dup-sort and key-ordering behavior per table at open time.
type TableFlags uint

const (
	Default    TableFlags = 0x00
	DupSort    TableFlags = 0x04
	IntegerKey TableFlags = 0x08
	IntegerDup TableFlags = 0x20
)

// TableCfgItem declares one table's flags. DupSort tables keep many
// values per key, lexicographically sorted, cursor-navigable (§4.1).
type TableCfgItem struct {
	Flags TableFlags
}

// TableCfg is the full schema handed to Open.
type TableCfg map[string]TableCfgItem

// ErrNotFound names a missing key. Tx.Get does not return it: both
// implementations report a missing key as a nil value with a nil error.
var ErrNotFound = errors.New("kv: not found")

// ErrMapFull surfaces the engine's fixed-map-size exhaustion (§4.1:
// "Fails with KvError on I/O, map-full, or key-too-large").
var ErrMapFull = errors.New("kv: map full")

// ErrKeyTooLarge names an over-length key/value. The mdbx backend does
// not return it: the engine's rejection reaches the caller as a wrapped
// engine error.
var ErrKeyTooLarge = errors.New("kv: key too large")

// Options configure Open (§4.1: "configurable maximum map size, maximum
// named trees, and maximum concurrent readers").
type Options struct {
	Path        string
	MaxMapSize  uint64 // bytes
	MaxTables   int
	MaxReaders  int
	ReadOnly    bool
}

// DB is an opened database directory with its table schema declared.
type DB interface {
	// Writer starts a serializable read-write transaction. Only one
	// writer may be active at a time; the call blocks until the
	// previous writer commits or aborts.
	Writer(ctx context.Context) (RwTx, error)

	// Reader starts a read snapshot. Many readers may coexist with
	// one writer, and never block it.
	Reader(ctx context.Context) (Tx, error)

	// Update runs fn inside a single write transaction, committing on
	// a nil return and aborting otherwise.
	Update(ctx context.Context, fn func(tx RwTx) error) error

	// View runs fn inside a single read transaction.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Flush forces previously committed writes durable to disk.
	Flush() error

	Close() error
}

// Cursor walks one table in key order, optionally across duplicate
// values of a dup-sort table.
type Cursor interface {
	// Seek repositions the cursor at the given bound, walking in
	// reverse if rev is true. On wrong-direction bound overflow it
	// returns (nil, nil, nil) -- end of stream, not an error.
	Seek(bound Bound, rev bool) (k, v []byte, err error)

	// Next advances one physical entry in the cursor's current
	// direction (as established by the last Seek).
	Next() (k, v []byte, err error)

	Close()
}

// Tx is a read-only transaction (a consistent point-in-time snapshot).
type Tx interface {
	// Get performs an exact-match lookup. On a dup-sort table this
	// returns the first (smallest) duplicate for the key.
	Get(table string, key []byte) (val []byte, err error)

	// GetBoth looks up an exact (key, value) pair in a dup-sort
	// table, used to confirm a specific duplicate is present before
	// deleting it.
	GetBoth(table string, key, value []byte) (found bool, err error)

	Cursor(table string) (Cursor, error)

	Commit() error // no-op for a read tx other than releasing it
	Abort()
}

// RwTx is a read-write transaction. Only one may be open at a time per DB.
type RwTx interface {
	Tx

	Put(table string, key, value []byte) error

	// Del removes key from a non-dup-sort table, or the specific
	// (key, value) duplicate from a dup-sort table when value is
	// non-nil; with a nil value on a dup-sort table it removes every
	// duplicate under key.
	Del(table string, key, value []byte) error

	RwCursor(table string) (RwCursor, error)

	Commit() error
}

// RwCursor additionally supports writes at the current position.
type RwCursor interface {
	Cursor
	Put(k, v []byte) error
	Delete(k, v []byte) error
}
