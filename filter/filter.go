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

// Package filter is the declarative query: id/author prefixes, kinds,
// indexed tags, time bounds, search terms, limit, order (spec §4.4).
package filter

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/internal/relayerr"
)

// TagList is a sorted, de-duplicated set of byte-string tag values,
// binary-searchable in Contains (mirrors rnostr's TagList).
type TagList [][]byte

func NewTagList(values [][]byte) TagList {
	cp := make(TagList, len(values))
	copy(cp, values)
	sort.Slice(cp, func(i, j int) bool { return bytes.Compare(cp[i], cp[j]) < 0 })
	out := cp[:0]
	for i, v := range cp {
		if i == 0 || !bytes.Equal(v, cp[i-1]) {
			out = append(out, v)
		}
	}
	return out
}

func (l TagList) Contains(v []byte) bool {
	i := sort.Search(len(l), func(i int) bool { return bytes.Compare(l[i], v) >= 0 })
	return i < len(l) && bytes.Equal(l[i], v)
}

// Filter is one subscription/query clause (§3 "Filter").
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []uint16
	Tags    map[byte]TagList
	Since   *uint64
	Until   *uint64
	Limit   *int
	Search  string
	Desc    bool

	// Words is populated by BuildWords from Search via a Tokenizer.
	Words [][]byte
}

type wireFilter struct {
	IDs     []string            `json:"ids,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Kinds   []uint16            `json:"kinds,omitempty"`
	Since   *uint64             `json:"since,omitempty"`
	Until   *uint64             `json:"until,omitempty"`
	Limit   *int                `json:"limit,omitempty"`
	Search  string              `json:"search,omitempty"`
	Extra   map[string][]string `json:"-"`
}

// UnmarshalJSON pulls the fixed fields and any "#x" single-byte tag
// filters out of an arbitrary JSON object (§3: "tags is a mapping from
// single-byte tag name to a sorted, de-duplicated list of byte values").
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return relayerr.Wrap(relayerr.Json, err)
	}

	var w wireFilter
	if v, ok := raw["ids"]; ok {
		if err := json.Unmarshal(v, &w.IDs); err != nil {
			return relayerr.Wrap(relayerr.Json, err)
		}
	}
	if v, ok := raw["authors"]; ok {
		if err := json.Unmarshal(v, &w.Authors); err != nil {
			return relayerr.Wrap(relayerr.Json, err)
		}
	}
	if v, ok := raw["kinds"]; ok {
		if err := json.Unmarshal(v, &w.Kinds); err != nil {
			return relayerr.Wrap(relayerr.Json, err)
		}
	}
	if v, ok := raw["since"]; ok {
		if err := json.Unmarshal(v, &w.Since); err != nil {
			return relayerr.Wrap(relayerr.Json, err)
		}
	}
	if v, ok := raw["until"]; ok {
		if err := json.Unmarshal(v, &w.Until); err != nil {
			return relayerr.Wrap(relayerr.Json, err)
		}
	}
	if v, ok := raw["limit"]; ok {
		if err := json.Unmarshal(v, &w.Limit); err != nil {
			return relayerr.Wrap(relayerr.Json, err)
		}
	}
	if v, ok := raw["search"]; ok {
		_ = json.Unmarshal(v, &w.Search)
	}

	f.IDs = clean(w.IDs)
	f.Authors = clean(w.Authors)
	f.Kinds = w.Kinds
	f.Since = w.Since
	f.Until = w.Until
	f.Limit = w.Limit
	f.Search = w.Search
	f.Desc = w.Limit != nil
	f.Tags = map[byte]TagList{}

	for key, v := range raw {
		if len(key) != 2 || key[0] != '#' {
			continue
		}
		name := key[1]
		var vals []string
		if err := json.Unmarshal(v, &vals); err != nil {
			return relayerr.Wrap(relayerr.Json, err)
		}
		list := make([][]byte, 0, len(vals))
		for _, s := range vals {
			if name == 'e' || name == 'p' {
				h, err := hex.DecodeString(s)
				if err != nil || len(h) != 32 {
					return relayerr.Invalid("invalid e or p tag value")
				}
				list = append(list, h)
			} else {
				list = append(list, []byte(s))
			}
		}
		if len(list) > 0 {
			f.Tags[name] = NewTagList(list)
		}
	}
	if len(f.Tags) == 0 {
		f.Tags = nil
	}
	return nil
}

func clean(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	return ss
}

// Tokenizer is the collaborator interface consumed to turn Search into
// Words (§6.5: "tokenize(text) -> sorted deduplicated byte-token list").
type Tokenizer interface {
	Tokenize(text string) [][]byte
}

// BuildWords populates Words from Search using tok (§4.4).
func (f *Filter) BuildWords(tok Tokenizer) {
	if f.Search == "" {
		return
	}
	words := tok.Tokenize(f.Search)
	if len(words) > 0 {
		f.Words = words
	}
}

// DefaultLimit sets Limit if unset.
func (f *Filter) DefaultLimit(n int) {
	if f.Limit == nil {
		f.Limit = &n
	}
}

func matchPrefix(prefixes []string, id []byte) bool {
	if len(prefixes) == 0 {
		return true
	}
	full := hex.EncodeToString(id)
	for _, p := range prefixes {
		if len(p) <= len(full) && full[:len(p)] == p {
			return true
		}
	}
	return false
}

// MatchID reports whether id's hex matches some prefix in ids (or ids is empty).
func MatchID(ids []string, id []byte) bool { return matchPrefix(ids, id) }

// MatchAuthor reports whether pubkey or delegator's hex matches some
// prefix in authors (or authors is empty) (§4.4).
func MatchAuthor(authors []string, pubkey []byte, delegator []byte) bool {
	if len(authors) == 0 {
		return true
	}
	if matchPrefix(authors, pubkey) {
		return true
	}
	if delegator != nil {
		return matchPrefix(authors, delegator)
	}
	return false
}

// MatchKind reports whether kind is in kinds (or kinds is empty).
func MatchKind(kinds []uint16, kind uint16) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// MatchTags reports whether every tags entry has some matching indexed
// tag on the event (§4.4).
func MatchTags(tags map[byte]TagList, eventTags []event.IndexedTag) bool {
	if len(tags) == 0 {
		return true
	}
	if len(eventTags) == 0 {
		return false
	}
	for name, values := range tags {
		found := false
		for _, t := range eventTags {
			if t.Name == name && values.Contains(t.Value) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Match reports whether ix satisfies f in full (used by post-filter and
// the subscription matcher alike) (§4.4).
func (f *Filter) Match(ix *event.ArchivedEventIndex) bool {
	if !MatchID(f.IDs, ix.ID()) {
		return false
	}
	created := ix.CreatedAt()
	if f.Since != nil && created < *f.Since {
		return false
	}
	if f.Until != nil && created > *f.Until {
		return false
	}
	if !MatchKind(f.Kinds, ix.Kind()) {
		return false
	}
	if !MatchAuthor(f.Authors, ix.Pubkey(), ix.Delegator()) {
		return false
	}
	if len(f.Tags) > 0 {
		full, err := ix.Full()
		if err != nil {
			return false
		}
		if !MatchTags(f.Tags, full.IndexedTags) {
			return false
		}
	}
	return true
}
