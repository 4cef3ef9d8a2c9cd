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

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/kv"
	"github.com/nostrbase/relaydb/kv/kvtest"
)

// newTestStore builds a Store over a fresh in-memory kv.DB.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := kvtest.New(kv.TablesCfg)
	s, err := Open(db, false)
	require.NoError(t, err)
	return s
}

// fakeHex fills a 32-byte id-like value deterministically from seed so
// tests don't need real secp256k1 keys (Put never verifies signatures).
func fakeHex(seed byte) string {
	var b [32]byte
	for i := range b {
		b[i] = seed + byte(i)
	}
	return hex.EncodeToString(b[:])
}

type wireEvent struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt uint64     `json:"created_at"`
	Kind      uint16     `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// mustEvent builds an *event.Event via event.Parse (exercising the real
// JSON/tag-indexing path) without needing a valid signature.
func mustEvent(t *testing.T, idSeed byte, pubkeySeed byte, kind uint16, createdAt uint64, tags [][]string, content string) *event.Event {
	t.Helper()
	if tags == nil {
		tags = [][]string{}
	}
	w := wireEvent{
		ID:        fakeHex(idSeed),
		Pubkey:    fakeHex(pubkeySeed),
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
		Sig:       hex.EncodeToString(make([]byte, 64)),
	}
	raw, err := json.Marshal(w)
	require.NoError(t, err)
	ev, err := event.Parse(raw)
	require.NoError(t, err)
	return ev
}

// mustEventWithPubkeyHex is mustEvent with an explicit pubkey hex, for
// delegation tests that must use the delegator's own pubkey as the
// deleter's pubkey.
func mustEventWithPubkeyHex(t *testing.T, idSeed byte, pubkeyHex string, kind uint16, createdAt uint64, tags [][]string, content string) *event.Event {
	t.Helper()
	if tags == nil {
		tags = [][]string{}
	}
	w := wireEvent{
		ID:        fakeHex(idSeed),
		Pubkey:    pubkeyHex,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
		Sig:       hex.EncodeToString(make([]byte, 64)),
	}
	raw, err := json.Marshal(w)
	require.NoError(t, err)
	ev, err := event.Parse(raw)
	require.NoError(t, err)
	return ev
}
