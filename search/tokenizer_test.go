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

package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordTokenizer_LowercasesAndSplits(t *testing.T) {
	tok := WordTokenizer{}
	got := tok.Tokenize("Hello, World! 123")
	assert.Equal(t, [][]byte{[]byte("123"), []byte("hello"), []byte("world")}, got)
}

func TestWordTokenizer_DedupesAndSorts(t *testing.T) {
	tok := WordTokenizer{}
	got := tok.Tokenize("nostr NOSTR nostr users")
	assert.Equal(t, [][]byte{[]byte("nostr"), []byte("users")}, got)
}

func TestWordTokenizer_EmptyInputYieldsNoTokens(t *testing.T) {
	tok := WordTokenizer{}
	assert.Nil(t, tok.Tokenize("   !!! ,,, "))
}

func TestWordTokenizer_TruncatesOverlongToken(t *testing.T) {
	tok := WordTokenizer{}
	long := strings.Repeat("a", MaxTokenLen+50)
	got := tok.Tokenize(long)
	require.Len(t, got, 1)
	assert.Len(t, got[0], MaxTokenLen)
}

func TestTruncateUTF8_DoesNotSplitARune(t *testing.T) {
	// "é" is two bytes (0xC3 0xA9); truncating to 1 byte must back off to 0.
	s := "é"
	got := truncateUTF8(s, 1)
	assert.Equal(t, "", got)
}
