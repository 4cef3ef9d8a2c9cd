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

// Package search is the default Tokenizer for the search extension
// (spec §4.4, §6.5): splits on non-letter/non-digit runes, lowercases,
// sorts, and de-duplicates, truncating any token over 254 bytes.
package search

import (
	"sort"
	"strings"
	"unicode"
)

// MaxTokenLen is the per-token byte cap (§6.5).
const MaxTokenLen = 254

// WordTokenizer implements filter.Tokenizer.
type WordTokenizer struct{}

func (WordTokenizer) Tokenize(text string) [][]byte {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := map[string]bool{}
	var out [][]byte
	for _, f := range fields {
		if len(f) > MaxTokenLen {
			f = truncateUTF8(f, MaxTokenLen)
		}
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, []byte(f))
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i]) < string(out[j]) })
	return out
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}
