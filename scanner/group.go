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

package scanner

// entry pairs a GroupItem's index with its most recently produced key,
// kept sorted by SortedKeyList so the group can pop the next item in
// overall time order without re-scanning every member on each step.
type entry struct {
	idx int
	key TimeKey
}

// SortedKeyList keeps entries ordered by TimeKey.Less (time, then uid
// for store's IndexKey), with the next key in scan order (the smallest
// when forward, the largest when reverse) at the back, so Pop always
// returns the next key in scan order.
type SortedKeyList struct {
	items   []entry
	reverse bool
}

func NewSortedKeyList(reverse bool) *SortedKeyList {
	return &SortedKeyList{reverse: reverse}
}

func (l *SortedKeyList) less(a, b TimeKey) bool {
	if l.reverse {
		return Less(a, b)
	}
	return Less(b, a)
}

// Add inserts (idx, key) keeping items sorted; the next Pop target ends
// up at the back of the slice.
func (l *SortedKeyList) Add(idx int, key TimeKey) {
	i := 0
	for i < len(l.items) && l.less(l.items[i].key, key) {
		i++
	}
	l.items = append(l.items, entry{})
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = entry{idx: idx, key: key}
}

func (l *SortedKeyList) Len() int { return len(l.items) }

func (l *SortedKeyList) Peek() (entry, bool) {
	if len(l.items) == 0 {
		return entry{}, false
	}
	return l.items[len(l.items)-1], true
}

func (l *SortedKeyList) Pop() (entry, bool) {
	if len(l.items) == 0 {
		return entry{}, false
	}
	last := len(l.items) - 1
	e := l.items[last]
	l.items = l.items[:last]
	return e, true
}

func (l *SortedKeyList) Clear() { l.items = l.items[:0] }

// Mode is the composition rule a Group applies across its members.
type Mode int

const (
	// One wraps a single GroupItem with no composition overhead.
	One Mode = iota
	// And yields only keys every member produces at the same time (set
	// intersection).
	And
	// Or yields every key any member produces, de-duplicated when Dup
	// is set (set union).
	Or
)

// Group composes GroupItems (Scanners or nested Groups) by time,
// matching §4.5's And/Or/One scan composition.
type Group struct {
	mode    Mode
	dup     bool
	one     GroupItem
	items   []GroupItem
	founds  *SortedKeyList
	done    bool
	scanTot uint64
	curTot  uint64
	watcher func(uint64) error
}

// NewGroup builds an empty Group. reverse controls time order, dup
// controls whether Or-mode de-dupes identical keys produced by more
// than one member in the same step.
func NewGroup(mode Mode, reverse, dup bool) *Group {
	return &Group{mode: mode, dup: dup, founds: NewSortedKeyList(reverse)}
}

func (g *Group) CurTimes() uint64 { return g.curTot }

func (g *Group) SetWatcher(w func(uint64) error) {
	g.watcher = w
	if g.one != nil {
		g.one.SetWatcher(w)
	}
	for _, it := range g.items {
		it.SetWatcher(w)
	}
}

func (g *Group) watch(n uint64) error {
	g.scanTot += n
	g.curTot += n
	if g.watcher != nil {
		return g.watcher(g.scanTot)
	}
	return nil
}

// Add appends a member. The first member added is held bare (One mode
// fast path); a second Add promotes it into the composed list.
func (g *Group) Add(item GroupItem) error {
	if g.done {
		return nil
	}
	if len(g.items) == 0 && g.one == nil {
		g.one = item
		return nil
	}
	if g.one != nil {
		prior := g.one
		g.one = nil
		if err := g.addToList(prior); err != nil {
			return err
		}
	}
	return g.addToList(item)
}

func (g *Group) addToList(item GroupItem) error {
	if g.done {
		return nil
	}
	idx := len(g.items)
	key, ok, err := item.Advance()
	if err != nil {
		return err
	}
	if err := g.watch(item.CurTimes()); err != nil {
		return err
	}
	if ok {
		g.founds.Add(idx, key)
	} else if g.mode == And {
		g.done = true
		g.founds.Clear()
	}
	g.items = append(g.items, item)
	return nil
}

// Advance returns the next key in composed order, or ok=false when the
// group is exhausted.
func (g *Group) Advance() (TimeKey, bool, error) {
	g.curTot = 0
	if g.one != nil {
		key, ok, err := g.one.Advance()
		if err != nil {
			return nil, false, err
		}
		if err := g.watch(g.one.CurTimes()); err != nil {
			return nil, false, err
		}
		return key, ok, nil
	}
	if g.founds.Len() == 0 || g.done {
		return nil, false, nil
	}
	if g.mode == And {
		return g.advanceAnd()
	}
	return g.advanceOr()
}

func (g *Group) advanceAnd() (TimeKey, bool, error) {
outer:
	for {
		cur, _ := g.founds.Pop()
		for i := g.founds.Len() - 1; i >= 0; i-- {
			if Less(g.founds.items[i].key, cur.key) || Less(cur.key, g.founds.items[i].key) {
				item := g.items[cur.idx]
				key, ok, err := item.Advance()
				if err != nil {
					return nil, false, err
				}
				if err := g.watch(item.CurTimes()); err != nil {
					return nil, false, err
				}
				if ok {
					g.founds.Add(cur.idx, key)
					continue outer
				}
				g.founds.Clear()
				return nil, false, nil
			}
		}

		item := g.items[cur.idx]
		key, ok, err := item.Advance()
		if err != nil {
			return nil, false, err
		}
		if err := g.watch(item.CurTimes()); err != nil {
			return nil, false, err
		}
		if ok {
			g.founds.Add(cur.idx, key)
		} else {
			g.founds.Clear()
		}
		return cur.key, true, nil
	}
}

func (g *Group) advanceOr() (TimeKey, bool, error) {
	cur, _ := g.founds.Pop()
	var dupEntries []entry
	if g.dup {
		for g.founds.Len() > 0 {
			top, _ := g.founds.Peek()
			if !Less(top.key, cur.key) && !Less(cur.key, top.key) {
				e, _ := g.founds.Pop()
				dupEntries = append(dupEntries, e)
				continue
			}
			break
		}
	}

	for _, e := range dupEntries {
		item := g.items[e.idx]
		key, ok, err := item.Advance()
		if err != nil {
			return nil, false, err
		}
		if err := g.watch(item.CurTimes()); err != nil {
			return nil, false, err
		}
		if ok {
			g.founds.Add(e.idx, key)
		}
	}

	item := g.items[cur.idx]
	key, ok, err := item.Advance()
	if err != nil {
		return nil, false, err
	}
	if err := g.watch(item.CurTimes()); err != nil {
		return nil, false, err
	}
	if ok {
		g.founds.Add(cur.idx, key)
	}
	return cur.key, true, nil
}
