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

package filter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagList_SortsDedupsAndSearches(t *testing.T) {
	l := NewTagList([][]byte{[]byte("b"), []byte("a"), []byte("b"), []byte("c")})
	require.Len(t, l, 3)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, [][]byte(l))
	assert.True(t, l.Contains([]byte("b")))
	assert.False(t, l.Contains([]byte("z")))
}

func TestFilter_UnmarshalJSON_FixedFields(t *testing.T) {
	raw := `{"ids":["abcd"],"authors":["ef01"],"kinds":[1,2],"since":100,"until":200,"limit":10,"search":"hello"}`
	var f Filter
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	assert.Equal(t, []string{"abcd"}, f.IDs)
	assert.Equal(t, []string{"ef01"}, f.Authors)
	assert.Equal(t, []uint16{1, 2}, f.Kinds)
	require.NotNil(t, f.Since)
	assert.Equal(t, uint64(100), *f.Since)
	require.NotNil(t, f.Until)
	assert.Equal(t, uint64(200), *f.Until)
	require.NotNil(t, f.Limit)
	assert.Equal(t, 10, *f.Limit)
	assert.Equal(t, "hello", f.Search)
	assert.True(t, f.Desc, "a present limit implies newest-first ordering")
}

func TestFilter_UnmarshalJSON_NoLimitIsNotDesc(t *testing.T) {
	var f Filter
	require.NoError(t, json.Unmarshal([]byte(`{"kinds":[1]}`), &f))
	assert.False(t, f.Desc)
}

func TestFilter_UnmarshalJSON_HashTagFilters(t *testing.T) {
	eHex := strings.Repeat("ab", 32)
	raw := `{"#e":["` + eHex + `"],"#t":["hello","world"]}`
	var f Filter
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	require.Contains(t, f.Tags, byte('e'))
	require.Contains(t, f.Tags, byte('t'))
	assert.Len(t, f.Tags['e'], 1)
	assert.Len(t, f.Tags['t'], 2)
	assert.True(t, f.Tags['t'].Contains([]byte("hello")))
}

func TestFilter_UnmarshalJSON_RejectsMalformedEOrPTag(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{"#e":["not-hex"]}`), &f)
	assert.Error(t, err)
}

func TestFilter_UnmarshalJSON_EmptyTagsIsNil(t *testing.T) {
	var f Filter
	require.NoError(t, json.Unmarshal([]byte(`{"kinds":[1]}`), &f))
	assert.Nil(t, f.Tags)
}

type upperTokenizer struct{}

func (upperTokenizer) Tokenize(text string) [][]byte {
	return [][]byte{[]byte(strings.ToUpper(text))}
}

func TestFilter_BuildWords(t *testing.T) {
	f := &Filter{Search: "hello"}
	f.BuildWords(upperTokenizer{})
	assert.Equal(t, [][]byte{[]byte("HELLO")}, f.Words)
}

func TestFilter_BuildWords_NoSearchLeavesWordsNil(t *testing.T) {
	f := &Filter{}
	f.BuildWords(upperTokenizer{})
	assert.Nil(t, f.Words)
}

func TestFilter_DefaultLimit(t *testing.T) {
	f := &Filter{}
	f.DefaultLimit(500)
	require.NotNil(t, f.Limit)
	assert.Equal(t, 500, *f.Limit)

	ten := 10
	f2 := &Filter{Limit: &ten}
	f2.DefaultLimit(500)
	assert.Equal(t, 10, *f2.Limit, "an explicit limit must not be overridden")
}

func TestMatchID_PrefixAndEmpty(t *testing.T) {
	id := []byte{0xab, 0xcd, 0xef}
	assert.True(t, MatchID(nil, id))
	assert.True(t, MatchID([]string{"ab"}, id))
	assert.False(t, MatchID([]string{"ff"}, id))
}

func TestMatchAuthor_DelegatorFallback(t *testing.T) {
	pubkey := []byte{0x01, 0x02}
	delegator := []byte{0xaa, 0xbb}
	assert.True(t, MatchAuthor([]string{"0102"}, pubkey, nil))
	assert.False(t, MatchAuthor([]string{"ffff"}, pubkey, nil))
	assert.True(t, MatchAuthor([]string{"aabb"}, pubkey, delegator))
}

func TestMatchKind(t *testing.T) {
	assert.True(t, MatchKind(nil, 7))
	assert.True(t, MatchKind([]uint16{1, 7}, 7))
	assert.False(t, MatchKind([]uint16{1, 2}, 7))
}
