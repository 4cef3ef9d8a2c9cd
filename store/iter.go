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
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/filter"
	"github.com/nostrbase/relaydb/internal/relayerr"
	"github.com/nostrbase/relaydb/kv"
	"github.com/nostrbase/relaydb/scanner"
)

func scanTimeoutErr() error {
	return relayerr.New(relayerr.ScanTimeout, "scan exceeded its time budget")
}

// matchIndex selects how much post-filter work a read needs once a
// scanner yields a candidate: None (the index was already exact -- go
// straight to the document), Pubkey (the index doesn't check authors),
// or All (re-run the whole filter against the archived index) (§4.7).
type matchIndex int

const (
	matchNone matchIndex = iota
	matchPubkey
	matchAll
)

func (m matchIndex) match(f *filter.Filter, ix *event.ArchivedEventIndex) bool {
	if m == matchPubkey {
		return filter.MatchAuthor(f.Authors, ix.Pubkey(), ix.Delegator())
	}
	return f.Match(ix)
}

// Stats reports the scan cost of an Iter, for diagnostics/metrics.
type Stats struct {
	ScanIndex uint64
	GetIndex  uint64
	GetData   uint64
}

// Iter streams matching events for one Filter, in the strategy chosen
// by Query (§4.7).
type Iter struct {
	tx         kv.Tx
	s          *Store
	filter     *filter.Filter
	group      *scanner.Group
	matchIndex matchIndex

	getIndex uint64
	getData  uint64
}

func (s *Store) newIter(tx kv.Tx, f *filter.Filter, group *scanner.Group, mi matchIndex) *Iter {
	return &Iter{tx: tx, s: s, filter: f, group: group, matchIndex: mi}
}

// Query builds an Iter for f, choosing among the search/ids/tags/
// authors+kinds/authors/kinds/time-scan strategies in priority order
// (§4.7).
func (s *Store) Query(tx kv.Tx, f *filter.Filter) (*Iter, error) {
	fullAuthors := len(f.Authors) > 0
	for _, a := range f.Authors {
		if len(a) != 64 {
			fullAuthors = false
		}
	}
	switch {
	case len(f.Words) > 0:
		mi := matchNone
		if len(f.IDs) > 0 || len(f.Tags) > 0 || len(f.Authors) > 0 || len(f.Kinds) > 0 {
			mi = matchAll
		}
		return s.queryWord(tx, f, mi)
	case len(f.IDs) > 0:
		mi := matchNone
		if len(f.Tags) > 0 || len(f.Authors) > 0 || len(f.Kinds) > 0 {
			mi = matchAll
		}
		return s.queryPrefix(tx, f, f.IDs, kv.ID, mi)
	case len(f.Tags) > 0:
		mi := matchNone
		if len(f.Authors) > 0 {
			mi = matchPubkey
		}
		return s.queryTag(tx, f, mi)
	case fullAuthors && len(f.Kinds) > 0:
		return s.queryAuthorKind(tx, f, matchNone)
	case len(f.Authors) > 0:
		mi := matchNone
		if len(f.Kinds) > 0 {
			mi = matchAll
		}
		return s.queryPrefix(tx, f, f.Authors, kv.Pubkey, mi)
	case len(f.Kinds) > 0:
		return s.queryKind(tx, f, matchNone)
	default:
		return s.queryTime(tx, f, matchNone)
	}
}

func createCursor(tx kv.Tx, table string) (kv.Cursor, error) { return tx.Cursor(table) }

func (s *Store) queryTime(tx kv.Tx, f *filter.Filter, mi matchIndex) (*Iter, error) {
	group := scanner.NewGroup(scanner.One, f.Desc, false)
	cur, err := createCursor(tx, kv.CreatedAt)
	if err != nil {
		return nil, err
	}
	bound := kv.Unbound()
	sc := scanner.New(cur, bound, f.Desc, f.Since, f.Until, func(k, v []byte) (scanner.MatchResult, error) {
		key, err := ParseIndexKey(k, v)
		if err != nil {
			return scanner.MatchResult{}, err
		}
		return scanner.Found(key), nil
	})
	if err := group.Add(sc); err != nil {
		return nil, err
	}
	return s.newIter(tx, f, group, mi), nil
}

func (s *Store) queryKind(tx kv.Tx, f *filter.Filter, mi matchIndex) (*Iter, error) {
	group := scanner.NewGroup(scanner.One, f.Desc, false)
	for _, kind := range f.Kinds {
		prefix := be16(kind)
		cur, err := createCursor(tx, kv.Kind)
		if err != nil {
			return nil, err
		}
		sc := scanner.New(cur, prefixBound(prefix, f.Desc), f.Desc, f.Since, f.Until,
			prefixMatcher(prefix))
		if err := group.Add(sc); err != nil {
			return nil, err
		}
	}
	return s.newIter(tx, f, group, mi), nil
}

func (s *Store) queryPrefix(tx kv.Tx, f *filter.Filter, hexPrefixes []string, table string, mi matchIndex) (*Iter, error) {
	group := scanner.NewGroup(scanner.One, f.Desc, false)
	for _, hp := range hexPrefixes {
		prefix, err := hexPrefixBytes(hp)
		if err != nil {
			return nil, err
		}
		cur, err := createCursor(tx, table)
		if err != nil {
			return nil, err
		}
		sc := scanner.New(cur, prefixBound(prefix, f.Desc), f.Desc, f.Since, f.Until,
			prefixMatcher(prefix))
		if err := group.Add(sc); err != nil {
			return nil, err
		}
	}
	return s.newIter(tx, f, group, mi), nil
}

func (s *Store) queryAuthorKind(tx kv.Tx, f *filter.Filter, mi matchIndex) (*Iter, error) {
	group := scanner.NewGroup(scanner.One, f.Desc, false)
	for _, author := range f.Authors {
		pk, err := hexPrefixBytes(author)
		if err != nil {
			return nil, err
		}
		for _, kind := range f.Kinds {
			prefix := concat(pk, be16(kind))
			cur, err := createCursor(tx, kv.PubkeyKind)
			if err != nil {
				return nil, err
			}
			sc := scanner.New(cur, prefixBound(prefix, f.Desc), f.Desc, f.Since, f.Until,
				prefixMatcher(prefix))
			if err := group.Add(sc); err != nil {
				return nil, err
			}
		}
	}
	return s.newIter(tx, f, group, mi), nil
}

func (s *Store) queryTag(tx kv.Tx, f *filter.Filter, mi matchIndex) (*Iter, error) {
	group := scanner.NewGroup(scanner.And, f.Desc, true)
	hasKind := len(f.Kinds) > 0
	for name, values := range f.Tags {
		sub := scanner.NewGroup(scanner.Or, f.Desc, true)
		for _, val := range values {
			prefix := concat([]byte{name, sep}, val, []byte{sep})
			klen := len(prefix) + 8
			cur, err := createCursor(tx, kv.Tag)
			if err != nil {
				return nil, err
			}
			kinds := f.Kinds
			sc := scanner.New(cur, prefixBound(prefix, f.Desc), f.Desc, f.Since, f.Until,
				func(k, v []byte) (scanner.MatchResult, error) {
					if len(k) != klen || !bytes.HasPrefix(k, prefix) {
						return scanner.Stop(), nil
					}
					if hasKind {
						if len(v) < 10 {
							return scanner.Continue(), nil
						}
						kind := binary.BigEndian.Uint16(v[8:10])
						if !filter.MatchKind(kinds, kind) {
							return scanner.Continue(), nil
						}
					}
					key, err := ParseIndexKey(k, v)
					if err != nil {
						return scanner.MatchResult{}, err
					}
					return scanner.Found(key), nil
				})
			if err := sub.Add(sc); err != nil {
				return nil, err
			}
		}
		if err := group.Add(sub); err != nil {
			return nil, err
		}
	}
	return s.newIter(tx, f, group, mi), nil
}

// queryWord intersects one scanner per search word (§4.7, §8 S5): a
// multi-word search only matches events whose word index contains every
// word, mirroring the source's word Group built with and=true.
func (s *Store) queryWord(tx kv.Tx, f *filter.Filter, mi matchIndex) (*Iter, error) {
	group := scanner.NewGroup(scanner.And, f.Desc, true)
	for _, word := range f.Words {
		prefix := concat(word, []byte{sep})
		klen := len(prefix) + 8
		cur, err := createCursor(tx, kv.Word)
		if err != nil {
			return nil, err
		}
		sc := scanner.New(cur, prefixBound(prefix, f.Desc), f.Desc, f.Since, f.Until,
			func(k, v []byte) (scanner.MatchResult, error) {
				if len(k) != klen || !bytes.HasPrefix(k, prefix) {
					return scanner.Stop(), nil
				}
				key, err := ParseIndexKey(k, v)
				if err != nil {
					return scanner.MatchResult{}, err
				}
				return scanner.Found(key), nil
			})
		if err := group.Add(sc); err != nil {
			return nil, err
		}
	}
	return s.newIter(tx, f, group, mi), nil
}

// QueryExpiration streams the events whose expiration time is at most
// until, in ascending expiration-time order, for the expiration-sweep
// GC collaborator.
func (s *Store) QueryExpiration(tx kv.Tx, until uint64) (*Iter, error) {
	f := &filter.Filter{Until: &until}
	group := scanner.NewGroup(scanner.One, false, false)
	cur, err := createCursor(tx, kv.Expiration)
	if err != nil {
		return nil, err
	}
	sc := scanner.New(cur, kv.Unbound(), false, nil, &until, func(k, v []byte) (scanner.MatchResult, error) {
		key, err := ParseIndexKey(k, v)
		if err != nil {
			return scanner.MatchResult{}, err
		}
		return scanner.Found(key), nil
	})
	if err := group.Add(sc); err != nil {
		return nil, err
	}
	return s.newIter(tx, f, group, matchNone), nil
}

// QueryEphemeral streams the events whose kind is in [20000, 30000),
// for the ephemeral-kind sweep collaborator.
func (s *Store) QueryEphemeral(tx kv.Tx) (*Iter, error) {
	f := &filter.Filter{}
	group := scanner.NewGroup(scanner.One, false, false)
	prefix := be16(20000)
	end := be16(30000)
	cur, err := createCursor(tx, kv.Kind)
	if err != nil {
		return nil, err
	}
	sc := scanner.New(cur, prefixBound(prefix, false), false, nil, nil,
		func(k, v []byte) (scanner.MatchResult, error) {
			if bytes.Compare(k, end) >= 0 {
				return scanner.Stop(), nil
			}
			key, err := ParseIndexKey(k, v)
			if err != nil {
				return scanner.MatchResult{}, err
			}
			return scanner.Found(key), nil
		})
	if err := group.Add(sc); err != nil {
		return nil, err
	}
	return s.newIter(tx, f, group, matchNone), nil
}

func prefixMatcher(prefix []byte) scanner.Matcher {
	return func(k, v []byte) (scanner.MatchResult, error) {
		if !bytes.HasPrefix(k, prefix) {
			return scanner.Stop(), nil
		}
		key, err := ParseIndexKey(k, v)
		if err != nil {
			return scanner.MatchResult{}, err
		}
		return scanner.Found(key), nil
	}
}

// hexPrefixBytes decodes an id/author hex prefix filter value into scan
// bound bytes. An odd trailing nibble is truncated rather than rejected
// (widens the match by one nibble, never narrows it — see DESIGN.md).
// A prefix shorter than 2 hex characters is rejected outright: the
// source leaves this case unspecified, and allowing it would scan the
// entire id or pubkey index for a single-nibble filter (§9 design note c).
func hexPrefixBytes(hp string) ([]byte, error) {
	if len(hp) < 2 {
		return nil, relayerr.Invalid("hex prefix must be at least 2 characters")
	}
	if len(hp)%2 == 1 {
		hp = hp[:len(hp)-1]
	}
	return hex.DecodeString(hp)
}

func (it *Iter) limitReached(n uint64) bool {
	return it.filter.Limit != nil && n >= uint64(*it.filter.Limit)
}

// Next returns the next matching event, or ok=false when the iterator
// is exhausted or its limit is reached.
func (it *Iter) Next() (*event.Event, bool, error) {
	if it.limitReached(it.getData) {
		return nil, false, nil
	}
	for {
		key, ok, err := it.group.Advance()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		ik := key.(IndexKey)

		if it.matchIndex == matchNone {
			it.getData++
			ev, found, err := it.s.eventByUID(it.tx, ik.UID)
			if err != nil {
				return nil, false, err
			}
			if found {
				return ev, true, nil
			}
			continue
		}

		raw, err := it.s.indexBytes(it.tx, ik.UID)
		if err != nil {
			return nil, false, err
		}
		if raw == nil {
			continue
		}
		it.getIndex++
		ax, err := event.FromBytes(raw)
		if err != nil {
			return nil, false, err
		}
		if !it.matchIndex.match(it.filter, ax) {
			continue
		}
		it.getData++
		ev, found, err := it.s.eventByUID(it.tx, ik.UID)
		if err != nil {
			return nil, false, err
		}
		if found {
			return ev, true, nil
		}
	}
}

// ScanTimeout installs a time budget checked every checkStep scan
// steps: each time the running scan-step total passes the next
// threshold, the elapsed wall-clock time is compared with timeout, and
// once it exceeds timeout the Advance in progress fails with
// relayerr.ScanTimeout (§7, §4.5).
func (it *Iter) ScanTimeout(timeout time.Duration, checkStep uint64) {
	start := time.Now()
	last := checkStep
	it.group.SetWatcher(func(count uint64) error {
		if count > last {
			if time.Since(start) > timeout {
				return scanTimeoutErr()
			}
			last = count + checkStep
		}
		return nil
	})
}

// Stats reports this Iter's scan cost. GetIndex and GetData are totals
// so far; ScanIndex counts only the cursor steps of the most recent
// group Advance.
func (it *Iter) Stats() Stats {
	return Stats{ScanIndex: it.group.CurTimes(), GetIndex: it.getIndex, GetData: it.getData}
}

// Count drains the iterator counting matches without materializing
// events, for the COUNT wire command (§6.3 SUPPLEMENTED FEATURES).
func (it *Iter) Count() (uint64, error) {
	var n uint64
	for {
		key, ok, err := it.group.Advance()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		ik := key.(IndexKey)
		if it.matchIndex == matchNone {
			n++
			if it.limitReached(n) {
				return n, nil
			}
			continue
		}
		raw, err := it.s.indexBytes(it.tx, ik.UID)
		if err != nil {
			return n, err
		}
		if raw == nil {
			continue
		}
		ax, err := event.FromBytes(raw)
		if err != nil {
			return n, err
		}
		if it.matchIndex.match(it.filter, ax) {
			n++
			if it.limitReached(n) {
				return n, nil
			}
		}
	}
}
