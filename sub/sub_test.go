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

package sub

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/filter"
)

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

func mustEvent(t *testing.T, idSeed, pubkeySeed byte, kind uint16, tags [][]string) *event.Event {
	t.Helper()
	if tags == nil {
		tags = [][]string{}
	}
	w := wireEvent{
		ID:        fakeHex(idSeed),
		Pubkey:    fakeHex(pubkeySeed),
		CreatedAt: 1000,
		Kind:      kind,
		Tags:      tags,
		Content:   "",
		Sig:       hex.EncodeToString(make([]byte, 64)),
	}
	raw, err := json.Marshal(w)
	require.NoError(t, err)
	ev, err := event.Parse(raw)
	require.NoError(t, err)
	return ev
}

// TestSubscribe_BucketPriority confirms the ids > authors > tags > kinds
// > other priority (§4.8): a filter carrying both ids and kinds is
// bucketed only by ids, so an event that only matches on kind but not on
// the listed id is never dispatched to it.
func TestSubscribe_BucketPriority(t *testing.T) {
	m := New(10)
	target := mustEvent(t, 1, 1, 1, nil)
	other := mustEvent(t, 2, 1, 1, nil)

	f := &filter.Filter{
		IDs:   []string{hex.EncodeToString(target.ID[:])},
		Kinds: []uint16{1},
	}
	require.NoError(t, m.Subscribe(1, "sub1", []*filter.Filter{f}))

	assert.Empty(t, m.Dispatch(other), "bucketed by id, an unlisted id of the same kind must not match")
	assert.Len(t, m.Dispatch(target), 1)
}

func TestDispatch_MatchesAcrossBuckets(t *testing.T) {
	m := New(10)
	ev := mustEvent(t, 1, 1, 1, [][]string{{"t", "hello"}})

	byKind := &filter.Filter{Kinds: []uint16{1}}
	byTag := &filter.Filter{Tags: map[byte]filter.TagList{'t': filter.NewTagList([][]byte{[]byte("hello")})}}
	byOther := &filter.Filter{Since: uint64Ptr(1)}

	require.NoError(t, m.Subscribe(1, "a", []*filter.Filter{byKind}))
	require.NoError(t, m.Subscribe(2, "b", []*filter.Filter{byTag}))
	require.NoError(t, m.Subscribe(3, "c", []*filter.Filter{byOther}))

	keys := m.Dispatch(ev)
	assert.ElementsMatch(t, []Key{
		{Session: 1, SubID: "a"},
		{Session: 2, SubID: "b"},
		{Session: 3, SubID: "c"},
	}, keys)
}

func uint64Ptr(v uint64) *uint64 { return &v }

func TestDispatch_DedupesWhenSameSubMatchesTwoFilters(t *testing.T) {
	m := New(10)
	ev := mustEvent(t, 1, 1, 1, [][]string{{"t", "hello"}})

	byKind := &filter.Filter{Kinds: []uint16{1}}
	byTag := &filter.Filter{Tags: map[byte]filter.TagList{'t': filter.NewTagList([][]byte{[]byte("hello")})}}
	require.NoError(t, m.Subscribe(1, "a", []*filter.Filter{byKind, byTag}))

	keys := m.Dispatch(ev)
	assert.Equal(t, []Key{{Session: 1, SubID: "a"}}, keys)
}

func TestUnsubscribe_RemovesOnlyNamedSub(t *testing.T) {
	m := New(10)
	ev := mustEvent(t, 1, 1, 1, nil)
	f := &filter.Filter{Kinds: []uint16{1}}
	require.NoError(t, m.Subscribe(1, "a", []*filter.Filter{f}))
	require.NoError(t, m.Subscribe(1, "b", []*filter.Filter{f}))

	m.Unsubscribe(1, "a")
	keys := m.Dispatch(ev)
	assert.Equal(t, []Key{{Session: 1, SubID: "b"}}, keys)
}

func TestDisconnect_RemovesEverySubForSession(t *testing.T) {
	m := New(10)
	ev := mustEvent(t, 1, 1, 1, nil)
	f := &filter.Filter{Kinds: []uint16{1}}
	require.NoError(t, m.Subscribe(1, "a", []*filter.Filter{f}))
	require.NoError(t, m.Subscribe(1, "b", []*filter.Filter{f}))
	require.NoError(t, m.Subscribe(2, "c", []*filter.Filter{f}))

	m.Disconnect(1)
	keys := m.Dispatch(ev)
	assert.Equal(t, []Key{{Session: 2, SubID: "c"}}, keys)
}

func TestSubscribe_EnforcesMaxPerSession(t *testing.T) {
	m := New(1)
	f := &filter.Filter{Kinds: []uint16{1}}
	require.NoError(t, m.Subscribe(1, "a", []*filter.Filter{f}))
	err := m.Subscribe(1, "b", []*filter.Filter{f})
	assert.Error(t, err)
}

func TestSubscribe_ReplacingSameSubIDDoesNotCountTwice(t *testing.T) {
	m := New(1)
	f := &filter.Filter{Kinds: []uint16{1}}
	require.NoError(t, m.Subscribe(1, "a", []*filter.Filter{f}))
	require.NoError(t, m.Subscribe(1, "a", []*filter.Filter{f}), "re-subscribing the same sub_id must not hit the cap")
}

func TestSubscribe_RejectsBadSubID(t *testing.T) {
	m := New(10)
	f := &filter.Filter{Kinds: []uint16{1}}
	assert.Error(t, m.Subscribe(1, "", []*filter.Filter{f}))
}
