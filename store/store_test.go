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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrbase/relaydb/kv"
)

// TestPut_DuplicateRejected covers universal property 3 (id uniqueness):
// admitting the same id twice yields PutDuplicate, not a second row.
func TestPut_DuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	ev := mustEvent(t, 1, 1, 1, 1000, nil, "hello")

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		res, err := s.Put(tx, ev)
		require.NoError(t, err)
		assert.Equal(t, PutOK, res.Outcome)

		res2, err := s.Put(tx, ev)
		require.NoError(t, err)
		assert.Equal(t, PutDuplicate, res2.Outcome)
		return nil
	})
	require.NoError(t, err)
}

// TestPut_DeletedBeforeWrite covers §4.6: a kind-5 deletion seen first
// blocks the later admission of the id it names, via the Deletion table.
func TestPut_DeletedBeforeWrite(t *testing.T) {
	s := newTestStore(t)
	target := mustEvent(t, 2, 5, 1, 1000, nil, "will be deleted first")
	del := mustEvent(t, 3, 5, 5, 1001, [][]string{{"e", target.IDHex()}}, "")

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		res, err := s.Put(tx, del)
		require.NoError(t, err)
		assert.Equal(t, PutOK, res.Outcome)

		res2, err := s.Put(tx, target)
		require.NoError(t, err)
		assert.Equal(t, PutDeleted, res2.Outcome)
		return nil
	})
	require.NoError(t, err)
}

// TestPut_ReplaceWinsOnCreatedAt is scenario S1: a replaceable kind (0)
// keeps only the newest created_at per pubkey.
func TestPut_ReplaceWinsOnCreatedAt(t *testing.T) {
	s := newTestStore(t)
	older := mustEvent(t, 10, 1, 0, 1000, nil, `{"name":"old"}`)
	newer := mustEvent(t, 11, 1, 0, 2000, nil, `{"name":"new"}`)

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		res, err := s.Put(tx, older)
		require.NoError(t, err)
		assert.Equal(t, PutOK, res.Outcome)

		res2, err := s.Put(tx, newer)
		require.NoError(t, err)
		assert.Equal(t, PutOK, res2.Outcome)
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		got, found, err := s.Get(tx, older.ID)
		require.NoError(t, err)
		assert.False(t, found, "replaced event must be gone")

		got, found, err = s.Get(tx, newer.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, newer.Content, got.Content)
		return nil
	})
	require.NoError(t, err)
}

// TestPut_ReplaceTieBreak is scenario S1's tie-break: equal created_at,
// lowest id lexicographically wins and occupies the slot.
func TestPut_ReplaceTieBreak(t *testing.T) {
	s := newTestStore(t)
	a := mustEvent(t, 0x10, 2, 0, 5000, nil, "a")
	b := mustEvent(t, 0x20, 2, 0, 5000, nil, "b")
	// a.ID < b.ID since fakeHex(0x10) < fakeHex(0x20) byte-for-byte.

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		res, err := s.Put(tx, b)
		require.NoError(t, err)
		assert.Equal(t, PutOK, res.Outcome)

		// a has a lower id at the same created_at: it must win and evict b.
		res2, err := s.Put(tx, a)
		require.NoError(t, err)
		assert.Equal(t, PutOK, res2.Outcome)
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		_, found, err := s.Get(tx, b.ID)
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = s.Get(tx, a.ID)
		require.NoError(t, err)
		assert.True(t, found)
		return nil
	})
	require.NoError(t, err)

	// The reverse order: a later-seen higher id at the same created_at
	// must lose and leave the lower id's event in place.
	s2 := newTestStore(t)
	err = s2.DB().Update(context.Background(), func(tx kv.RwTx) error {
		res, err := s2.Put(tx, a)
		require.NoError(t, err)
		assert.Equal(t, PutOK, res.Outcome)

		res2, err := s2.Put(tx, b)
		require.NoError(t, err)
		assert.Equal(t, PutReplaceIgnored, res2.Outcome)
		return nil
	})
	require.NoError(t, err)
}

// TestPut_ParameterizedReplacement is scenario S2: kind 30000-39999
// replaces per (pubkey, kind, d-tag value), and the d tag need not be
// the first tag in the array (regression test for the EncodeReplaceKey
// "d" tag scan).
func TestPut_ParameterizedReplacement(t *testing.T) {
	s := newTestStore(t)
	first := mustEvent(t, 0x30, 3, 30000, 1000,
		[][]string{{"t", "unrelated"}, {"d", "profile"}}, "v1")
	second := mustEvent(t, 0x31, 3, 30000, 2000,
		[][]string{{"t", "unrelated"}, {"d", "profile"}}, "v2")
	otherD := mustEvent(t, 0x32, 3, 30000, 3000,
		[][]string{{"d", "other"}}, "v3")

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		res, err := s.Put(tx, first)
		require.NoError(t, err)
		assert.Equal(t, PutOK, res.Outcome)

		res2, err := s.Put(tx, second)
		require.NoError(t, err)
		assert.Equal(t, PutOK, res2.Outcome)

		res3, err := s.Put(tx, otherD)
		require.NoError(t, err)
		assert.Equal(t, PutOK, res3.Outcome)
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		_, found, err := s.Get(tx, first.ID)
		require.NoError(t, err)
		assert.False(t, found, "first profile revision must be replaced")

		got, found, err := s.Get(tx, second.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "v2", got.Content)

		got, found, err = s.Get(tx, otherD.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "v3", got.Content, "a different d value must not be replaced")
		return nil
	})
	require.NoError(t, err)
}

// TestPut_DeletionCascade_Author is scenario S3: a kind-5 "e" tag from
// the target's own author deletes the target.
func TestPut_DeletionCascade_Author(t *testing.T) {
	s := newTestStore(t)
	target := mustEvent(t, 0x40, 7, 1, 1000, nil, "note")
	del := mustEvent(t, 0x41, 7, 5, 1001, [][]string{{"e", target.IDHex()}}, "")

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		_, err := s.Put(tx, target)
		require.NoError(t, err)
		res, err := s.Put(tx, del)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Count, "deletion event + cascaded delete")
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		_, found, err := s.Get(tx, target.ID)
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	})
	require.NoError(t, err)
}

// TestPut_DeletionCascade_Delegate is scenario S3's delegated variant:
// a kind-5 from the target's delegator (not its literal pubkey) still
// authorizes the delete.
func TestPut_DeletionCascade_Delegate(t *testing.T) {
	s := newTestStore(t)
	delegator := fakeHex(0x50)
	target := mustEvent(t, 0x51, 8, 1, 1000, [][]string{{"delegation", delegator}}, "note")
	del := mustEventWithPubkeyHex(t, 0x52, delegator, 5, 1001, [][]string{{"e", target.IDHex()}}, "")

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		_, err := s.Put(tx, target)
		require.NoError(t, err)
		res, err := s.Put(tx, del)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Count)
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		_, found, err := s.Get(tx, target.ID)
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	})
	require.NoError(t, err)
}

// TestPut_DeletionCascade_NeverTargetsKind5 covers universal property 5:
// a kind-5 "e" tag that happens to name another kind-5 event never
// cascades onto it.
func TestPut_DeletionCascade_NeverTargetsKind5(t *testing.T) {
	s := newTestStore(t)
	victimDel := mustEvent(t, 0x60, 9, 5, 1000, nil, "")
	attacker := mustEvent(t, 0x61, 9, 5, 1001, [][]string{{"e", victimDel.IDHex()}}, "")

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		_, err := s.Put(tx, victimDel)
		require.NoError(t, err)
		res, err := s.Put(tx, attacker)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count, "no cascade onto another kind-5")
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		_, found, err := s.Get(tx, victimDel.ID)
		require.NoError(t, err)
		assert.True(t, found, "kind-5 target must survive")
		return nil
	})
	require.NoError(t, err)
}

// TestPut_DeletionCascade_UnauthorizedSkipped: an "e" tag naming an
// event from a different author (no delegation) is left untouched.
func TestPut_DeletionCascade_UnauthorizedSkipped(t *testing.T) {
	s := newTestStore(t)
	target := mustEvent(t, 0x70, 11, 1, 1000, nil, "note")
	del := mustEvent(t, 0x71, 12, 5, 1001, [][]string{{"e", target.IDHex()}}, "")

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		_, err := s.Put(tx, target)
		require.NoError(t, err)
		res, err := s.Put(tx, del)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count, "unauthorized deletion is not cascaded")
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		_, found, err := s.Get(tx, target.ID)
		require.NoError(t, err)
		assert.True(t, found)
		return nil
	})
	require.NoError(t, err)
}
