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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/filter"
	"github.com/nostrbase/relaydb/internal/relayerr"
	"github.com/nostrbase/relaydb/kv"
	"github.com/nostrbase/relaydb/search"
)

func drain(t *testing.T, tx kv.Tx, s *Store, f *filter.Filter) []string {
	t.Helper()
	it, err := s.Query(tx, f)
	require.NoError(t, err)
	var ids []string
	for {
		ev, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		ids = append(ids, ev.IDHex())
	}
	return ids
}

// TestQueryTag_FiltersByKindToo is scenario S4: thirty events share one
// tag value across kinds 0..29; a tag+kinds filter over a 3-kind subset
// returns exactly those three.
func TestQueryTag_FiltersByKindToo(t *testing.T) {
	s := newTestStore(t)

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		for kind := uint16(0); kind < 30; kind++ {
			ev := mustEvent(t, byte(kind+1), 1, kind, 1000+uint64(kind),
				[][]string{{"t", "query tag"}}, "")
			_, err := s.Put(tx, ev)
			require.NoError(t, err)
		}
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		f := &filter.Filter{
			Kinds: []uint16{1, 2, 3},
			Tags:  map[byte]filter.TagList{'t': filter.NewTagList([][]byte{[]byte("query tag")})},
		}
		ids := drain(t, tx, s, f)
		assert.Len(t, ids, 3)
		return nil
	})
	require.NoError(t, err)
}

// TestQueryWord_RequiresAllWords is scenario S5: a multi-word search
// filter must match only events containing every word, not any of them
// (§8 S5, original_source/extensions/src/search.rs's test). Uses
// Latin-script content: the default WordTokenizer has no CJK segmenter
// (DESIGN.md), so this exercises the same AND-vs-OR semantics on
// content the tokenizer can actually split into distinct words.
func TestQueryWord_RequiresAllWords(t *testing.T) {
	s := newTestStore(t)
	tok := search.WordTokenizer{}

	neither := mustEvent(t, 1, 1, 1, 1000, nil, "just a test")
	both := mustEvent(t, 2, 1, 1, 1001, nil, "nostr users from china")
	onlyChina := mustEvent(t, 3, 1, 1, 1002, nil, "china travel blog")

	neither.Words = tok.Tokenize(neither.Content)
	both.Words = tok.Tokenize(both.Content)
	onlyChina.Words = tok.Tokenize(onlyChina.Content)

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		for _, ev := range []*event.Event{neither, both, onlyChina} {
			_, err := s.Put(tx, ev)
			require.NoError(t, err)
		}
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		single := &filter.Filter{Words: tok.Tokenize("nostr")}
		ids := drain(t, tx, s, single)
		assert.ElementsMatch(t, []string{both.IDHex()}, ids,
			"single-word search over this corpus matches only the nostr+china note")

		multi := &filter.Filter{Words: tok.Tokenize("china nostr")}
		ids = drain(t, tx, s, multi)
		assert.ElementsMatch(t, []string{both.IDHex()}, ids,
			"a two-word search must intersect, not union, the per-word matches")
		return nil
	})
	require.NoError(t, err)
}

// TestQueryWord_NoIntersectionYieldsNothing confirms the AND semantics
// the other way: a word combination no single note contains returns no
// results, not the union of partial matches.
func TestQueryWord_NoIntersectionYieldsNothing(t *testing.T) {
	s := newTestStore(t)
	tok := search.WordTokenizer{}

	a := mustEvent(t, 1, 1, 1, 1000, nil, "apples and oranges")
	b := mustEvent(t, 2, 1, 1, 1001, nil, "bananas and pears")
	a.Words = tok.Tokenize(a.Content)
	b.Words = tok.Tokenize(b.Content)

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		_, err := s.Put(tx, a)
		require.NoError(t, err)
		_, err = s.Put(tx, b)
		require.NoError(t, err)
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		f := &filter.Filter{Words: tok.Tokenize("apples bananas")}
		ids := drain(t, tx, s, f)
		assert.Empty(t, ids)
		return nil
	})
	require.NoError(t, err)
}

// TestQueryTag_SameTimestampDoesNotCrossMatch is a regression test for
// IndexKey's (time, uid) ordering: two distinct events sharing the same
// created_at, where both match one tag name but only one of them also
// matches a second tag name, must intersect correctly rather than have
// queryTag's scanner.And merge-join conflate the two same-time entries
// from different tag-name scanners (DESIGN.md's scanner.TimeKey note).
func TestQueryTag_SameTimestampDoesNotCrossMatch(t *testing.T) {
	s := newTestStore(t)

	onlyAB := mustEvent(t, 1, 1, 1, 5000,
		[][]string{{"r", "alpha"}, {"t", "bravo"}}, "")
	onlyAC := mustEvent(t, 2, 1, 1, 5000,
		[][]string{{"r", "alpha"}, {"t", "charlie"}}, "")

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		_, err := s.Put(tx, onlyAB)
		require.NoError(t, err)
		_, err = s.Put(tx, onlyAC)
		require.NoError(t, err)
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		// Both events match "r":"alpha"; only onlyAB also matches
		// "t":"bravo". The intersection across the two tag names must
		// yield just onlyAB, not both (a false match) or neither (a
		// merge-join stall) from conflating the two same-time rows.
		f := &filter.Filter{
			Tags: map[byte]filter.TagList{
				'r': filter.NewTagList([][]byte{[]byte("alpha")}),
				't': filter.NewTagList([][]byte{[]byte("bravo")}),
			},
		}
		ids := drain(t, tx, s, f)
		assert.ElementsMatch(t, []string{onlyAB.IDHex()}, ids)
		return nil
	})
	require.NoError(t, err)
}

// TestHexPrefixBytes_RejectsShortPrefix: a single hex nibble is refused
// rather than widened into a whole-table scan (§9 design note c).
func TestHexPrefixBytes_RejectsShortPrefix(t *testing.T) {
	_, err := hexPrefixBytes("a")
	require.Error(t, err)
	assert.True(t, relayerr.Is(err, relayerr.InvalidEvent))
}

// TestHexPrefixBytes_TruncatesOddNibble: an odd trailing nibble widens
// the prefix by one nibble instead of failing.
func TestHexPrefixBytes_TruncatesOddNibble(t *testing.T) {
	got, err := hexPrefixBytes("abc")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab}, got)
}

// TestScanTimeout is scenario S6: once the scan step budget is
// exhausted, Next surfaces relayerr.ScanTimeout.
func TestScanTimeout(t *testing.T) {
	s := newTestStore(t)

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		for i := byte(0); i < 5; i++ {
			ev := mustEvent(t, i+1, 1, 1, 1000+uint64(i), nil, "")
			_, err := s.Put(tx, ev)
			require.NoError(t, err)
		}
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		it, err := s.Query(tx, &filter.Filter{Kinds: []uint16{1}})
		require.NoError(t, err)
		// A budget already exceeded before the first step forces the
		// very next Advance to fail.
		it.ScanTimeout(-1*time.Second, 0)
		_, _, err = it.Next()
		require.Error(t, err)
		assert.True(t, relayerr.Is(err, relayerr.ScanTimeout))
		return nil
	})
	require.NoError(t, err)
}

// TestCount_MatchesQueryLength: Count tallies the same set Query streams,
// without materializing documents.
func TestCount_MatchesQueryLength(t *testing.T) {
	s := newTestStore(t)

	err := s.DB().Update(context.Background(), func(tx kv.RwTx) error {
		for i := byte(0); i < 4; i++ {
			ev := mustEvent(t, i+1, 1, 1, 1000+uint64(i), nil, "")
			_, err := s.Put(tx, ev)
			require.NoError(t, err)
		}
		return nil
	})
	require.NoError(t, err)

	err = s.DB().View(context.Background(), func(tx kv.Tx) error {
		f := &filter.Filter{Kinds: []uint16{1}}
		ids := drain(t, tx, s, f)

		n, err := s.Count(tx, &filter.Filter{Kinds: []uint16{1}})
		require.NoError(t, err)
		assert.Equal(t, uint64(len(ids)), n)
		return nil
	})
	require.NoError(t, err)
}
