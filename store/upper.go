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

package store

import "github.com/nostrbase/relaydb/kv"

// upper returns the smallest key greater than every key with prefix key
// (e.g. upper([1,2,255]) == [1,3]), or ok=false if key is all 0xff --
// no such bound exists and the caller should scan unbounded instead.
// Reverse prefix scans use this as their exclusive start bound.
func upper(key []byte) ([]byte, bool) {
	out := append([]byte(nil), key...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1], true
		}
	}
	return nil, false
}

// prefixBound builds the seek bound and key for a forward or reverse
// prefix scan over prefix.
func prefixBound(prefix []byte, reverse bool) kv.Bound {
	if reverse {
		if up, ok := upper(prefix); ok {
			return kv.Excl(up)
		}
		return kv.Unbound()
	}
	return kv.Incl(prefix)
}
