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

// Package event is the canonical event representation: parsing,
// canonical hashing, signature/delegation verification, and the
// indexed-tag projection every secondary index is built from (spec §4.3).
package event

import (
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/nostrbase/relaydb/internal/relayerr"
)

// IndexedTag is a single-byte-name tag eligible for the tag index
// (§3: "name is exactly one byte, non-zero").
type IndexedTag struct {
	Name  byte
	Value []byte
}

// Event is the immutable, parsed, content-addressed message (§3).
type Event struct {
	ID        [32]byte
	Pubkey    [32]byte
	CreatedAt uint64
	Kind      uint16
	Tags      [][]string
	Content   string
	Sig       [64]byte

	// Derived fields, computed by New/Parse from Tags.
	Delegator   *[32]byte
	Expiration  *uint64
	IndexedTags []IndexedTag

	// Words is populated by a collaborator Tokenizer against Content
	// for kind 1 notes when the search extension is enabled (§4.4).
	Words [][]byte
}

// wireEvent is the JSON shape on the wire (§3, §6.1).
type wireEvent struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt uint64     `json:"created_at"`
	Kind      uint16     `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Parse decodes a JSON event and derives its indexed-tag projection.
// It rejects malformed hex, wrong-length ids, and over-large kinds, but
// does NOT verify the hash/signature -- callers call Verify* explicitly
// so that admission failures carry a distinct reason per §7.
func Parse(data []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, relayerr.Wrap(relayerr.Json, err)
	}
	ev := &Event{
		Tags:    w.Tags,
		Content: w.Content,
	}
	if err := decodeHex32(w.ID, &ev.ID); err != nil {
		return nil, relayerr.Wrapf(relayerr.Hex, err, "invalid id")
	}
	if err := decodeHex32(w.Pubkey, &ev.Pubkey); err != nil {
		return nil, relayerr.Wrapf(relayerr.Hex, err, "invalid pubkey")
	}
	sig, err := hex.DecodeString(w.Sig)
	if err != nil || len(sig) != 64 {
		return nil, relayerr.Invalid("invalid sig length")
	}
	copy(ev.Sig[:], sig)
	ev.CreatedAt = w.CreatedAt
	ev.Kind = w.Kind

	if err := ev.buildIndexedTags(); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeHex32(s string, out *[32]byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return relayerr.New(relayerr.InvalidLength, "expected 32 bytes")
	}
	copy(out[:], b)
	return nil
}

// buildIndexedTags derives Delegator, Expiration and IndexedTags from
// Tags, mirroring rnostr's EventIndex::build_index_tags.
func (e *Event) buildIndexedTags() error {
	for _, tag := range e.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "expiration":
			n, err := strconv.ParseUint(tag[1], 10, 64)
			if err != nil {
				return relayerr.Invalid("invalid expiration")
			}
			e.Expiration = &n
		case "delegation":
			var d [32]byte
			if err := decodeHex32(tag[1], &d); err != nil {
				return relayerr.Invalid("invalid delegation tag")
			}
			e.Delegator = &d
		}

		name := tag[0]
		if len(name) != 1 || name[0] == 0 {
			continue
		}
		var val []byte
		if name == "e" || name == "p" {
			h, err := hex.DecodeString(tag[1])
			if err != nil || len(h) != 32 {
				return relayerr.Invalid("invalid e or p tag value")
			}
			val = h
		} else {
			v := []byte(tag[1])
			// 0x00 breaks the value separator and >255 bytes exceeds
			// the indexable length (§3 invariant 9); skip silently,
			// same as rnostr's "continue" rather than reject.
			if len(v) > 255 || containsZero(v) {
				continue
			}
			val = v
		}
		e.IndexedTags = append(e.IndexedTags, IndexedTag{Name: name[0], Value: val})
	}
	return nil
}

func containsZero(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			return true
		}
	}
	return false
}

// IsEphemeral reports whether Kind falls in [20000, 30000) (§3, GLOSSARY).
func (e *Event) IsEphemeral() bool { return e.Kind >= 20000 && e.Kind < 30000 }

// IsReplaceable reports whether Kind is one of the always-replaceable
// kinds (0, 3, 41, 10000..20000) (§3 invariant 3).
func IsReplaceable(kind uint16) bool {
	return kind == 0 || kind == 3 || kind == 41 || (kind >= 10000 && kind < 20000)
}

// IsParamReplaceable reports whether Kind is in 30000..40000.
func IsParamReplaceable(kind uint16) bool { return kind >= 30000 && kind < 40000 }

// IsExpired reports whether the event's expiration tag has passed now.
func (e *Event) IsExpired(now uint64) bool {
	return e.Expiration != nil && *e.Expiration < now
}

// DTagValue returns the value of the first "d" tag, or "" (§3 invariant 3).
func DTagValue(tags [][]string) string {
	for _, tag := range tags {
		if len(tag) > 1 && tag[0] == "d" {
			return tag[1]
		}
	}
	return ""
}

// ToJSON re-serializes the event in wire form.
func (e *Event) ToJSON() ([]byte, error) {
	w := wireEvent{
		ID:        hex.EncodeToString(e.ID[:]),
		Pubkey:    hex.EncodeToString(e.Pubkey[:]),
		CreatedAt: e.CreatedAt,
		Kind:      e.Kind,
		Tags:      e.Tags,
		Content:   e.Content,
		Sig:       hex.EncodeToString(e.Sig[:]),
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.Json, err)
	}
	return b, nil
}

// IDHex returns the event id as lowercase hex.
func (e *Event) IDHex() string { return hex.EncodeToString(e.ID[:]) }

// PubkeyHex returns the event's pubkey as lowercase hex.
func (e *Event) PubkeyHex() string { return hex.EncodeToString(e.Pubkey[:]) }
