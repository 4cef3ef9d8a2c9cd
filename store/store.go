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
	"context"
	"sort"
	"sync/atomic"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/filter"
	"github.com/nostrbase/relaydb/internal/relayerr"
	"github.com/nostrbase/relaydb/kv"
)

// PutOutcome classifies the result of a Put admission attempt (§4.6).
type PutOutcome int

const (
	// PutOK means the event (and any replaced/deleted predecessor) was
	// written.
	PutOK PutOutcome = iota
	// PutDuplicate means an event with this id is already stored.
	PutDuplicate
	// PutDeleted means a kind-5 deletion for this id was seen first.
	PutDeleted
	// PutReplaceIgnored means a newer replacement already occupies this
	// replaceable slot.
	PutReplaceIgnored
)

// PutResult is the outcome plus how many events the write touched
// (itself, plus any deletion cascade or replacement eviction).
type PutResult struct {
	Outcome PutOutcome
	Count   int
}

// Store is the transactional event database: the write path (§4.6) and
// read path (§4.7) over a kv.DB opened with kv.TablesCfg.
type Store struct {
	db       kv.DB
	seq      atomic.Uint64
	compress bool
}

// Open opens db (already created with kv.TablesCfg) as a Store,
// initializing the UID sequence from the highest UID in Data (§4.6:
// "allocate from an atomic counter").
func Open(db kv.DB, compress bool) (*Store, error) {
	if err := checkVersion(db); err != nil {
		return nil, err
	}

	s := &Store{db: db, compress: compress}
	err := db.View(context.Background(), func(tx kv.Tx) error {
		cur, err := tx.Cursor(kv.Data)
		if err != nil {
			return err
		}
		defer cur.Close()
		k, _, err := cur.Seek(kv.Unbound(), true)
		if err != nil {
			return err
		}
		if k != nil {
			uid, err := ParseUID(k)
			if err != nil {
				return err
			}
			s.seq.Store(uid + 1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// checkVersion enforces §6.2: the Meta tree's mandatory "version" key
// must match kv.DBSchemaVersion; absent, it is written; present and
// unequal, the open fails with VersionMismatch and the store refuses
// all further work.
func checkVersion(db kv.DB) error {
	return db.Update(context.Background(), func(tx kv.RwTx) error {
		v, err := tx.Get(kv.Meta, []byte(kv.MetaVersionKey))
		if err != nil {
			return err
		}
		if v == nil {
			return tx.Put(kv.Meta, []byte(kv.MetaVersionKey), []byte(kv.DBSchemaVersion))
		}
		if string(v) != kv.DBSchemaVersion {
			return relayerr.New(relayerr.VersionMismatch,
				"database schema version "+string(v)+" does not match "+kv.DBSchemaVersion)
		}
		return nil
	})
}

func (s *Store) eventByUID(tx kv.Tx, uid uint64) (*event.Event, bool, error) {
	raw, err := tx.Get(kv.Data, UID(uid))
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	ev, err := DecodeEvent(raw)
	if err != nil {
		return nil, false, err
	}
	return ev, true, nil
}

func (s *Store) indexBytes(tx kv.Tx, uid uint64) ([]byte, error) {
	return tx.Get(kv.Index, UID(uid))
}

func (s *Store) uidByID(tx kv.Tx, id []byte) ([]byte, error) {
	return tx.Get(kv.IDUid, id)
}

// Get looks up an event by id.
func (s *Store) Get(tx kv.Tx, id [32]byte) (*event.Event, bool, error) {
	uidb, err := s.uidByID(tx, id[:])
	if err != nil {
		return nil, false, err
	}
	if uidb == nil {
		return nil, false, nil
	}
	uid, err := ParseUID(uidb)
	if err != nil {
		return nil, false, err
	}
	return s.eventByUID(tx, uid)
}

// Put admits ev under tx, applying the dedup/deletion/replacement
// pipeline of §4.6 in order.
func (s *Store) Put(tx kv.RwTx, ev *event.Event) (PutResult, error) {
	id := ev.ID[:]
	pubkey := ev.Pubkey[:]

	if existing, err := s.uidByID(tx, id); err != nil {
		return PutResult{}, err
	} else if existing != nil {
		return PutResult{Outcome: PutDuplicate}, nil
	}

	if v, err := tx.Get(kv.Deletion, concat(id, pubkey)); err != nil {
		return PutResult{}, err
	} else if v != nil {
		return PutResult{Outcome: PutDeleted}, nil
	}

	count := 0

	if ev.Kind == 5 {
		n, err := s.applyDeletionCascade(tx, ev)
		if err != nil {
			return PutResult{}, err
		}
		count += n
	}

	replaceKey, hasReplace := EncodeReplaceKey(ev.Kind, pubkey, ev.Tags)
	if hasReplace {
		const maxTagValueSize = 255
		if len(replaceKey) > maxTagValueSize+8+32 {
			return PutResult{}, relayerr.Invalid("invalid replace key")
		}
		if v, err := tx.Get(kv.Replacement, replaceKey); err != nil {
			return PutResult{}, err
		} else if v != nil {
			uid, err := ParseUID(v)
			if err != nil {
				return PutResult{}, err
			}
			prior, found, err := s.eventByUID(tx, uid)
			if err != nil {
				return PutResult{}, err
			}
			if found {
				if ev.CreatedAt < prior.CreatedAt ||
					(ev.CreatedAt == prior.CreatedAt && bytes.Compare(id, prior.ID[:]) > 0) {
					return PutResult{Outcome: PutReplaceIgnored}, nil
				}
				if err := s.delEvent(tx, prior, uid); err != nil {
					return PutResult{}, err
				}
				count++
			}
		}
	}

	count++
	uid := s.seq.Add(1) - 1
	if err := s.putEvent(tx, ev, uid, replaceKey, hasReplace); err != nil {
		return PutResult{}, err
	}
	return PutResult{Outcome: PutOK, Count: count}, nil
}

// applyDeletionCascade implements NIP-09: a kind-5 event's "e" tags
// delete the referenced events, provided the deleter is the author or
// delegate and the target is not itself a kind-5 (§4.6).
func (s *Store) applyDeletionCascade(tx kv.RwTx, delEvent *event.Event) (int, error) {
	count := 0
	for _, tag := range delEvent.IndexedTags {
		if tag.Name != 'e' {
			continue
		}
		uidb, err := s.uidByID(tx, tag.Value)
		if err != nil {
			return count, err
		}
		if uidb == nil {
			continue
		}
		uid, err := ParseUID(uidb)
		if err != nil {
			return count, err
		}
		target, found, err := s.eventByUID(tx, uid)
		if err != nil {
			return count, err
		}
		if !found || target.Kind == 5 {
			continue
		}
		isAuthor := bytes.Equal(target.Pubkey[:], delEvent.Pubkey[:])
		isDelegate := target.Delegator != nil && bytes.Equal(target.Delegator[:], delEvent.Pubkey[:])
		if isAuthor || isDelegate {
			count++
			if err := s.delEvent(tx, target, uid); err != nil {
				return count, err
			}
		}
	}
	return count, nil
}

func (s *Store) putEvent(tx kv.RwTx, ev *event.Event, uid uint64, replaceKey []byte, hasReplace bool) error {
	uidb := UID(uid)
	t := ev.CreatedAt
	kind := ev.Kind
	pubkey := ev.Pubkey[:]
	id := ev.ID[:]

	raw, err := EncodeEvent(ev, s.compress)
	if err != nil {
		return err
	}
	if err := tx.Put(kv.Data, uidb, raw); err != nil {
		return err
	}

	ix := event.IndexOf(ev)
	if err := tx.Put(kv.Index, uidb, ix.Encode()); err != nil {
		return err
	}

	if err := tx.Put(kv.IDUid, id, uidb); err != nil {
		return err
	}
	if err := tx.Put(kv.ID, EncodeID(id, t), uidb); err != nil {
		return err
	}
	if err := tx.Put(kv.Kind, EncodeKind(kind, t), uidb); err != nil {
		return err
	}
	if err := tx.Put(kv.Pubkey, EncodePubkey(pubkey, t), uidb); err != nil {
		return err
	}
	if err := tx.Put(kv.PubkeyKind, EncodePubkeyKind(pubkey, kind, t), uidb); err != nil {
		return err
	}
	if ev.Delegator != nil {
		d := ev.Delegator[:]
		if err := tx.Put(kv.Pubkey, EncodePubkey(d, t), uidb); err != nil {
			return err
		}
		if err := tx.Put(kv.PubkeyKind, EncodePubkeyKind(d, kind, t), uidb); err != nil {
			return err
		}
	}
	if err := tx.Put(kv.CreatedAt, EncodeTime(t), uidb); err != nil {
		return err
	}

	tagVal := concat(uidb, be16(kind))
	for _, tag := range ix.IndexedTags {
		if kind == 5 && tag.Name == 'e' {
			if err := tx.Put(kv.Deletion, concat(tag.Value, pubkey), uidb); err != nil {
				return err
			}
		}
		if err := tx.Put(kv.Tag, EncodeTag(tag.Name, tag.Value, t), tagVal); err != nil {
			return err
		}
	}

	if hasReplace {
		if err := tx.Put(kv.Replacement, replaceKey, uidb); err != nil {
			return err
		}
	}

	if ix.Expiration != nil {
		if err := tx.Put(kv.Expiration, EncodeTime(*ix.Expiration), uidb); err != nil {
			return err
		}
	}

	if len(ev.Words) > 0 {
		if err := tx.Put(kv.UidWords, uidb, encodeWordList(ev.Words)); err != nil {
			return err
		}
		for _, w := range ev.Words {
			if err := tx.Put(kv.Word, EncodeWord(w, t), uidb); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) delEvent(tx kv.RwTx, ev *event.Event, uid uint64) error {
	uidb := UID(uid)
	t := ev.CreatedAt
	kind := ev.Kind
	pubkey := ev.Pubkey[:]
	id := ev.ID[:]
	ix := event.IndexOf(ev)

	if raw, err := tx.Get(kv.UidWords, uidb); err != nil {
		return err
	} else if raw != nil {
		if err := tx.Del(kv.UidWords, uidb, nil); err != nil {
			return err
		}
		for _, w := range decodeWordList(raw) {
			if err := tx.Del(kv.Word, EncodeWord(w, t), uidb); err != nil {
				return err
			}
		}
	}

	if err := tx.Del(kv.Data, uidb, nil); err != nil {
		return err
	}
	if err := tx.Del(kv.Index, uidb, nil); err != nil {
		return err
	}
	if err := tx.Del(kv.IDUid, id, nil); err != nil {
		return err
	}
	if err := tx.Del(kv.ID, EncodeID(id, t), uidb); err != nil {
		return err
	}
	if err := tx.Del(kv.Kind, EncodeKind(kind, t), uidb); err != nil {
		return err
	}
	if err := tx.Del(kv.Pubkey, EncodePubkey(pubkey, t), uidb); err != nil {
		return err
	}
	if err := tx.Del(kv.PubkeyKind, EncodePubkeyKind(pubkey, kind, t), uidb); err != nil {
		return err
	}
	if ev.Delegator != nil {
		d := ev.Delegator[:]
		if err := tx.Del(kv.Pubkey, EncodePubkey(d, t), uidb); err != nil {
			return err
		}
		if err := tx.Del(kv.PubkeyKind, EncodePubkeyKind(d, kind, t), uidb); err != nil {
			return err
		}
	}
	if err := tx.Del(kv.CreatedAt, EncodeTime(t), uidb); err != nil {
		return err
	}

	tagVal := concat(uidb, be16(kind))
	for _, tag := range ix.IndexedTags {
		if err := tx.Del(kv.Tag, EncodeTag(tag.Name, tag.Value, t), tagVal); err != nil {
			return err
		}
	}

	if replaceKey, ok := EncodeReplaceKey(kind, pubkey, ev.Tags); ok {
		if err := tx.Del(kv.Replacement, replaceKey, nil); err != nil {
			return err
		}
	}

	if ix.Expiration != nil {
		if err := tx.Del(kv.Expiration, EncodeTime(*ix.Expiration), uidb); err != nil {
			return err
		}
	}
	return nil
}

// Del removes the event with the given id, reporting whether it
// existed.
func (s *Store) Del(tx kv.RwTx, id [32]byte) (bool, error) {
	uidb, err := s.uidByID(tx, id[:])
	if err != nil {
		return false, err
	}
	if uidb == nil {
		return false, nil
	}
	uid, err := ParseUID(uidb)
	if err != nil {
		return false, err
	}
	ev, found, err := s.eventByUID(tx, uid)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return true, s.delEvent(tx, ev, uid)
}

// BatchPut admits events in one transaction, sorted and de-duplicated
// by id first (§4.6: "batch_put").
func (s *Store) BatchPut(events []*event.Event) (int, error) {
	sorted := append([]*event.Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0 })

	count := 0
	err := s.db.Update(context.Background(), func(tx kv.RwTx) error {
		for i, ev := range sorted {
			if i != 0 && sorted[i].ID == sorted[i-1].ID {
				continue
			}
			res, err := s.Put(tx, ev)
			if err != nil {
				return err
			}
			if res.Outcome == PutOK {
				count += res.Count
			}
		}
		return nil
	})
	return count, err
}

// BatchDel removes every id in ids in one transaction.
func (s *Store) BatchDel(ids [][32]byte) error {
	return s.db.Update(context.Background(), func(tx kv.RwTx) error {
		for _, id := range ids {
			if _, err := s.Del(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// DB exposes the underlying kv.DB for callers that need to open their
// own transactions (the broker's single-writer loop, the CLI tools).
func (s *Store) DB() kv.DB { return s.db }

// Count runs the same strategy selection as Query but only tallies
// matches, skipping get_data entirely (SUPPLEMENTED FEATURES #2,
// extensions/src/count.rs's COUNT handler).
func (s *Store) Count(tx kv.Tx, f *filter.Filter) (uint64, error) {
	it, err := s.Query(tx, f)
	if err != nil {
		return 0, err
	}
	return it.Count()
}
