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

// Package store is the transactional write/read path over kv: the
// §4.2 key encodings, the §4.6 write path (dedup, deletion, replace),
// and the §4.7 read-path strategy selection.
package store

import (
	"encoding/binary"

	"github.com/nostrbase/relaydb/internal/relayerr"
	"github.com/nostrbase/relaydb/scanner"
)

// sep is the single zero byte separating a tag name/word from its
// value, and the value from the trailing time, in the Tag/Word tables
// (§4.2): it can never appear inside an indexed tag value (event
// parsing leaves any tag value containing 0x00 out of the indexed
// tags), so it is an unambiguous delimiter for lexicographic ordering.
const sep = 0

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func be64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func be16(v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return b[:]
}

// EncodeTime encodes a bare created_at key, for the CreatedAt table.
func EncodeTime(t uint64) []byte { return be64(t) }

// EncodeID encodes the ID table key: id(32) ++ created_at(8).
func EncodeID(id []byte, t uint64) []byte { return concat(id, be64(t)) }

// EncodeKind encodes the Kind table key: kind(2) ++ created_at(8).
func EncodeKind(kind uint16, t uint64) []byte { return concat(be16(kind), be64(t)) }

// EncodePubkey encodes the Pubkey table key: pubkey(32) ++ created_at(8).
func EncodePubkey(pubkey []byte, t uint64) []byte { return concat(pubkey, be64(t)) }

// EncodePubkeyKind encodes the PubkeyKind table key: pubkey(32) ++
// kind(2) ++ created_at(8).
func EncodePubkeyKind(pubkey []byte, kind uint16, t uint64) []byte {
	return concat(pubkey, be16(kind), be64(t))
}

// EncodeTag encodes the Tag table key: name(1) ++ sep ++ value ++ sep
// ++ created_at(8).
func EncodeTag(name byte, value []byte, t uint64) []byte {
	return concat([]byte{name, sep}, value, []byte{sep}, be64(t))
}

// EncodeWord encodes the Word table key: token ++ sep ++ created_at(8).
func EncodeWord(token []byte, t uint64) []byte {
	return concat(token, []byte{sep}, be64(t))
}

// IndexKey is the parsed (time, uid) pair recovered from a table key
// and its dup-sort value, implementing scanner.TimeKey.
type IndexKey struct {
	TimeVal uint64
	UID     uint64
}

func (k IndexKey) Time() uint64 { return k.TimeVal }

// Less orders by (time, uid), matching original_source/db/src/key.rs's
// overridden TimeKey::cmp: two events sharing the same created_at are
// distinguished by uid rather than treated as equal, so a Group's
// And-mode merge-join never conflates them.
func (k IndexKey) Less(other scanner.TimeKey) bool {
	o := other.(IndexKey)
	if k.TimeVal != o.TimeVal {
		return k.TimeVal < o.TimeVal
	}
	return k.UID < o.UID
}

// ChangeTime rewrites the trailing 8-byte created_at field of key,
// leaving every leading byte (the table-specific prefix) untouched
// (§4.5's re-seek optimization).
func (k IndexKey) ChangeTime(key []byte, t uint64) []byte {
	pos := len(key) - 8
	out := make([]byte, len(key))
	copy(out, key[:pos])
	binary.BigEndian.PutUint64(out[pos:], t)
	return out
}

// ParseIndexKey recovers (time, uid) from a table key (whose trailing
// 8 bytes are always created_at) and its dup-sort UID value.
func ParseIndexKey(key, uidVal []byte) (IndexKey, error) {
	if len(key) < 8 {
		return IndexKey{}, relayerr.New(relayerr.InvalidLength, "index key too short")
	}
	if len(uidVal) < 8 {
		return IndexKey{}, relayerr.New(relayerr.InvalidLength, "uid value too short")
	}
	t := binary.BigEndian.Uint64(key[len(key)-8:])
	uid := binary.BigEndian.Uint64(uidVal[:8])
	return IndexKey{TimeVal: t, UID: uid}, nil
}

// EncodeReplaceKey computes the Replacement table key for replaceable
// and parameterized-replaceable kinds, or reports ok=false for a
// regular kind (§3 invariant 3, NIP-16/NIP-33).
func EncodeReplaceKey(kind uint16, pubkey []byte, tags [][]string) ([]byte, bool) {
	switch {
	case kind == 0 || kind == 3 || kind == 41 || (kind >= 10000 && kind < 20000):
		return concat(pubkey, be16(kind)), true
	case kind >= 30000 && kind < 40000:
		d := ""
		for _, tag := range tags {
			if len(tag) > 1 && tag[0] == "d" {
				d = tag[1]
				break
			}
		}
		return concat(pubkey, be16(kind), []byte(d)), true
	default:
		return nil, false
	}
}

// UID encodes a UID as its 8-byte big-endian table key/value form.
func UID(uid uint64) []byte { return be64(uid) }

// ParseUID decodes a UID value.
func ParseUID(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, relayerr.New(relayerr.InvalidLength, "uid value too short")
	}
	return binary.BigEndian.Uint64(b[:8]), nil
}
