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

// Package sub is the process-local inverted index of live
// subscriptions (spec §4.8, §5). No goroutine owns the index: a mutex
// serializes every Matcher method, so sessions and the broker's writer
// call it directly from their own goroutines.
package sub

import (
	"encoding/hex"
	"sync"

	"github.com/google/btree"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/filter"
	"github.com/nostrbase/relaydb/internal/relayerr"
)

// SessionID identifies one connected client session.
type SessionID uint64

// Key names a single subscription within a session.
type Key struct {
	Session SessionID
	SubID   string
}

// entry is one filter placed into exactly one bucket.
type entry struct {
	key    Key
	filter *filter.Filter
}

func (e entry) Less(than btree.Item) bool {
	o := than.(entry)
	if e.key.Session != o.key.Session {
		return e.key.Session < o.key.Session
	}
	return e.key.SubID < o.key.SubID
}

// Matcher is the subscription matcher: tracks every live filter,
// bucketed by its most selective clause, and dispatches events to the
// subscriptions they satisfy (§4.8).
type Matcher struct {
	mu sync.Mutex

	bySession map[SessionID]map[string][]*filter.Filter

	ids     map[[32]byte][]entry
	authors map[[32]byte][]entry
	tags    map[string][]entry
	kinds   map[uint16][]entry
	other   *btree.BTree

	maxPerSession int
}

// New builds an empty Matcher. maxPerSession enforces
// max_subscriptions_per_session (§4.8).
func New(maxPerSession int) *Matcher {
	return &Matcher{
		bySession:     map[SessionID]map[string][]*filter.Filter{},
		ids:           map[[32]byte][]entry{},
		authors:       map[[32]byte][]entry{},
		tags:          map[string][]entry{},
		kinds:         map[uint16][]entry{},
		other:         btree.New(32),
		maxPerSession: maxPerSession,
	}
}

// Subscribe replaces any previous filters under (session, subID) with
// filters, bucketing each by priority ids > authors > tags > kinds >
// other (§4.8).
func (m *Matcher) Subscribe(session SessionID, subID string, filters []*filter.Filter) error {
	if subID == "" || len(subID) > 64 {
		return relayerr.New(relayerr.InvalidEvent, "invalid sub_id length")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.bySession[session]
	if !ok {
		sess = map[string][]*filter.Filter{}
		m.bySession[session] = sess
	}
	if _, exists := sess[subID]; !exists && len(sess) >= m.maxPerSession {
		return relayerr.New(relayerr.InvalidEvent, "too many subscriptions for session")
	}

	m.removeLocked(session, subID)

	sess[subID] = filters
	k := Key{Session: session, SubID: subID}
	for _, f := range filters {
		m.insertLocked(k, f)
	}
	return nil
}

// Unsubscribe removes subID from session, or every subscription for
// session when subID is "".
func (m *Matcher) Unsubscribe(session SessionID, subID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if subID == "" {
		sess, ok := m.bySession[session]
		if !ok {
			return
		}
		for id := range sess {
			m.removeLocked(session, id)
		}
		delete(m.bySession, session)
		return
	}
	m.removeLocked(session, subID)
	if sess, ok := m.bySession[session]; ok {
		delete(sess, subID)
	}
}

// Disconnect removes every subscription belonging to session.
func (m *Matcher) Disconnect(session SessionID) { m.Unsubscribe(session, "") }

func (m *Matcher) removeLocked(session SessionID, subID string) {
	sess, ok := m.bySession[session]
	if !ok {
		return
	}
	if _, exists := sess[subID]; !exists {
		return
	}
	k := Key{Session: session, SubID: subID}
	pred := func(e entry) bool { return e.key == k }
	for id, list := range m.ids {
		m.ids[id] = removeMatching(list, pred)
	}
	for a, list := range m.authors {
		m.authors[a] = removeMatching(list, pred)
	}
	for t, list := range m.tags {
		m.tags[t] = removeMatching(list, pred)
	}
	for kd, list := range m.kinds {
		m.kinds[kd] = removeMatching(list, pred)
	}
	m.other.Delete(entry{key: k})
}

func removeMatching(list []entry, pred func(entry) bool) []entry {
	out := list[:0]
	for _, e := range list {
		if !pred(e) {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (m *Matcher) insertLocked(k Key, f *filter.Filter) {
	e := entry{key: k, filter: f}
	switch {
	case len(f.IDs) > 0:
		var keys [][32]byte
		for _, idHex := range f.IDs {
			id, ok := prefixKey(idHex)
			if !ok {
				m.other.ReplaceOrInsert(e)
				return
			}
			keys = append(keys, id)
		}
		for _, id := range keys {
			m.ids[id] = append(m.ids[id], e)
		}
	case len(f.Authors) > 0:
		var keys [][32]byte
		for _, aHex := range f.Authors {
			a, ok := prefixKey(aHex)
			if !ok {
				m.other.ReplaceOrInsert(e)
				return
			}
			keys = append(keys, a)
		}
		for _, a := range keys {
			m.authors[a] = append(m.authors[a], e)
		}
	case len(f.Tags) > 0:
		for name, values := range f.Tags {
			for _, v := range values {
				tk := tagKey(name, v)
				m.tags[tk] = append(m.tags[tk], e)
			}
		}
	case len(f.Kinds) > 0:
		for _, kd := range f.Kinds {
			m.kinds[kd] = append(m.kinds[kd], e)
		}
	default:
		m.other.ReplaceOrInsert(e)
	}
}

// prefixKey derives the full-32-byte bucket key for an id/author
// filter entry; only exact 64-hex-char entries index directly (a
// prefix filter falls back to the catch-all bucket, since it cannot
// be probed by exact event id/pubkey).
func prefixKey(hexStr string) ([32]byte, bool) {
	var out [32]byte
	if len(hexStr) != 64 {
		return out, false
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, false
	}
	copy(out[:], b)
	return out, true
}

func tagKey(name byte, value []byte) string {
	return string(name) + "\x00" + string(value)
}

// Dispatch returns every (session, sub_id) whose filter matches ev,
// de-duplicated, probing the id/author/kind/tag buckets and the
// catch-all bucket (§4.8).
func (m *Matcher) Dispatch(ev *event.Event) []Key {
	m.mu.Lock()
	defer m.mu.Unlock()

	ix := event.IndexOf(ev)
	encoded := ix.Encode()
	archived, err := event.FromBytes(encoded)
	if err != nil {
		return nil
	}

	seen := map[Key]bool{}
	var out []Key
	probe := func(list []entry) {
		for _, e := range list {
			if seen[e.key] {
				continue
			}
			if e.filter.Match(archived) {
				seen[e.key] = true
				out = append(out, e.key)
			}
		}
	}

	probe(m.ids[ev.ID])
	probe(m.authors[ev.Pubkey])
	if ev.Delegator != nil {
		probe(m.authors[*ev.Delegator])
	}
	probe(m.kinds[ev.Kind])
	for _, tag := range ix.IndexedTags {
		probe(m.tags[tagKey(tag.Name, tag.Value)])
	}
	m.other.Ascend(func(item btree.Item) bool {
		e := item.(entry)
		if !seen[e.key] && e.filter.Match(archived) {
			seen[e.key] = true
			out = append(out, e.key)
		}
		return true
	})
	return out
}
