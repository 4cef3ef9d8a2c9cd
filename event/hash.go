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

package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/nostrbase/relaydb/internal/relayerr"
)

// Hash computes the canonical SHA-256 id of the event's content, per
// §4.3: "SHA-256 of the JSON array [0, pubkey_hex, created_at, kind,
// tags, content], serialized with no extra whitespace". json.Marshal
// never inserts whitespace around array/object separators, so a plain
// marshal of the six-element slice is already canonical.
func (e *Event) Hash() [32]byte {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}
	arr := []any{0, hex.EncodeToString(e.Pubkey[:]), e.CreatedAt, e.Kind, tags, e.Content}
	b, _ := json.Marshal(arr)
	return sha256.Sum256(b)
}

// VerifyID checks that ID matches Hash() (§3 invariant 1).
func (e *Event) VerifyID() error {
	if e.Hash() != e.ID {
		return relayerr.Invalid("bad event id")
	}
	return nil
}
