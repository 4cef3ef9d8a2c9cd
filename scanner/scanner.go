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

// Package scanner walks one or more cursors in time order, re-seeking
// past non-matching ranges instead of stepping through them one key at
// a time (spec §4.5).
package scanner

import (
	"math"

	"github.com/nostrbase/relaydb/kv"
)

// TimeKey is a found result that carries a time component an enclosing
// Group can sort by, and knows how to rewrite an index key's trailing
// time field for a re-seek.
type TimeKey interface {
	// Time returns the key's ordering time component.
	Time() uint64
	// ChangeTime rewrites key's time field, for seeking to a new range.
	ChangeTime(key []byte, time uint64) []byte
	// Less reports whether this key sorts before other. Implementations
	// must break Time ties on a secondary field (the reference
	// implementation's IndexKey::cmp orders by (time, uid)): two
	// distinct entries sharing the same time are never equal to a Group
	// merge-join, only entries that are truly the same index row are.
	Less(other TimeKey) bool
}

// Less orders two TimeKeys, delegating tie-breaking to a's own Less so a
// Group's And/Or merge-join can tell apart same-time entries from
// different index rows.
func Less(a, b TimeKey) bool { return a.Less(b) }

// MatchResult is returned by a Scanner's matcher for each cursor entry.
type MatchResult struct {
	state matchState
	key   TimeKey
}

type matchState int

const (
	matchContinue matchState = iota
	matchFound
	matchStop
)

func Continue() MatchResult          { return MatchResult{state: matchContinue} }
func Stop() MatchResult              { return MatchResult{state: matchStop} }
func Found(key TimeKey) MatchResult { return MatchResult{state: matchFound, key: key} }

// Matcher inspects one raw (key, value) cursor entry and decides
// whether it is a match, should be skipped, or ends the scan.
type Matcher func(k, v []byte) (MatchResult, error)

// GroupItem is the common interface Scanner and Group both satisfy, so
// groups can nest.
type GroupItem interface {
	// Advance returns the next found key, or ok=false at end of data.
	Advance() (TimeKey, bool, error)
	// CurTimes is how many cursor steps the last Advance call consumed.
	CurTimes() uint64
	// SetWatcher installs a callback that a Group invokes with its
	// running scan-step total after each member Advance, so a caller can
	// enforce a budget; a Scanner stores the callback but does not
	// invoke it itself.
	SetWatcher(w func(total uint64) error)
}

// Scanner walks a single cursor, applying matcher to each entry and
// re-seeking around since/until gaps via TimeKey.ChangeTime (§4.5).
type Scanner struct {
	cur     kv.Cursor
	reverse bool
	since   *uint64
	until   *uint64
	matcher Matcher

	times     uint64
	curTimes  uint64
	watcher   func(uint64) error
	started   bool
	startBound kv.Bound

	// pendingK/pendingV hold an item already fetched by a seek (initial
	// or re-seek) so the next step() need not call Next again.
	pendingK, pendingV []byte
	hasPending         bool
}

// New builds a Scanner over cur, seeked initially to startBound (the
// caller picks Incl/Excl/Unbound -- a reverse prefix scan needs an
// exclusive upper bound, a forward one an inclusive lower bound).
func New(cur kv.Cursor, startBound kv.Bound, reverse bool, since, until *uint64, matcher Matcher) *Scanner {
	return &Scanner{cur: cur, reverse: reverse, since: since, until: until, matcher: matcher, startBound: startBound}
}

func (s *Scanner) CurTimes() uint64 { return s.curTimes }

func (s *Scanner) SetWatcher(w func(uint64) error) { s.watcher = w }

func (s *Scanner) step() (k, v []byte, err error) {
	if s.hasPending {
		s.hasPending = false
		return s.pendingK, s.pendingV, nil
	}
	if !s.started {
		s.started = true
		return s.cur.Seek(s.startBound, s.reverse)
	}
	return s.cur.Next()
}

func (s *Scanner) seekTo(target []byte, excl bool) error {
	var b kv.Bound
	if excl {
		b = kv.Excl(target)
	} else {
		b = kv.Incl(target)
	}
	k, v, err := s.cur.Seek(b, s.reverse)
	if err != nil {
		return err
	}
	s.started = true
	s.pendingK, s.pendingV, s.hasPending = k, v, true
	return nil
}

// Advance walks the cursor until the matcher finds a key, hits Stop, or
// the cursor is exhausted.
func (s *Scanner) Advance() (TimeKey, bool, error) {
	s.curTimes = 0
	for {
		s.times++
		s.curTimes++
		k, v, err := s.step()
		if err != nil {
			return nil, false, err
		}
		if k == nil {
			return nil, false, nil
		}
		res, err := s.matcher(k, v)
		if err != nil {
			return nil, false, err
		}
		switch res.state {
		case matchContinue:
			continue
		case matchStop:
			return nil, false, nil
		case matchFound:
			key := res.key
			if target, excl, skip := s.outOfRange(key, k); skip {
				if err := s.seekTo(target, excl); err != nil {
					return nil, false, err
				}
				continue
			}
			return key, true, nil
		}
	}
}

// outOfRange reports whether key falls outside [since, until] and, if
// so, the key to re-seek to (§4.5: skip the whole non-matching range in
// one seek instead of stepping through it one entry at a time).
func (s *Scanner) outOfRange(key TimeKey, itemKey []byte) (target []byte, excl, skip bool) {
	t := key.Time()
	if s.reverse {
		if s.until != nil && t > *s.until {
			return key.ChangeTime(itemKey, *s.until), false, true
		}
		if s.since != nil && t < *s.since {
			return key.ChangeTime(itemKey, 0), true, true
		}
	} else {
		if s.since != nil && t < *s.since {
			return key.ChangeTime(itemKey, *s.since), false, true
		}
		if s.until != nil && t > *s.until {
			return key.ChangeTime(itemKey, math.MaxUint64), true, true
		}
	}
	return nil, false, false
}
