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

package event

import (
	"encoding/binary"

	"github.com/nostrbase/relaydb/internal/relayerr"
)

// indexVersion tags the ArchivedEventIndex layout (§4.3: "version-tag
// the layout"). A reader refuses to interpret a mismatched version
// rather than silently misreading fixed offsets.
const indexVersion = 1

// fixed-field offsets of the archived record: version(1) id(32)
// pubkey(32) created_at(8) kind(2) hasDelegator(1) delegator(32)
// hasExpiration(1) expiration(8) tagCount(2) = 119 bytes before the
// variable-length tag vector.
const (
	offVersion      = 0
	offID           = 1
	offPubkey       = offID + 32
	offCreatedAt    = offPubkey + 32
	offKind         = offCreatedAt + 8
	offHasDelegator = offKind + 2
	offDelegator    = offHasDelegator + 1
	offHasExpire    = offDelegator + 32
	offExpiration   = offHasExpire + 1
	offTagCount     = offExpiration + 8
	fixedHeaderLen  = offTagCount + 2
)

// EventIndex is the compact projection written alongside the full
// event, carrying only what scanners and filters need (§3 "EventIndex").
type EventIndex struct {
	ID          [32]byte
	Pubkey      [32]byte
	CreatedAt   uint64
	Kind        uint16
	IndexedTags []IndexedTag
	Expiration  *uint64
	Delegator   *[32]byte
}

// IndexOf projects an Event's EventIndex.
func IndexOf(e *Event) EventIndex {
	return EventIndex{
		ID:          e.ID,
		Pubkey:      e.Pubkey,
		CreatedAt:   e.CreatedAt,
		Kind:        e.Kind,
		IndexedTags: e.IndexedTags,
		Expiration:  e.Expiration,
		Delegator:   e.Delegator,
	}
}

// IsEphemeral reports whether Kind falls in [20000, 30000).
func (ix EventIndex) IsEphemeral() bool { return ix.Kind >= 20000 && ix.Kind < 30000 }

// IsExpired reports whether Expiration has passed now.
func (ix EventIndex) IsExpired(now uint64) bool {
	return ix.Expiration != nil && *ix.Expiration < now
}

// Encode serializes ix into the versioned, fixed-offset archived form.
func (ix EventIndex) Encode() []byte {
	buf := make([]byte, fixedHeaderLen)
	buf[offVersion] = indexVersion
	copy(buf[offID:offID+32], ix.ID[:])
	copy(buf[offPubkey:offPubkey+32], ix.Pubkey[:])
	binary.BigEndian.PutUint64(buf[offCreatedAt:offCreatedAt+8], ix.CreatedAt)
	binary.BigEndian.PutUint16(buf[offKind:offKind+2], ix.Kind)
	if ix.Delegator != nil {
		buf[offHasDelegator] = 1
		copy(buf[offDelegator:offDelegator+32], ix.Delegator[:])
	}
	if ix.Expiration != nil {
		buf[offHasExpire] = 1
		binary.BigEndian.PutUint64(buf[offExpiration:offExpiration+8], *ix.Expiration)
	}
	binary.BigEndian.PutUint16(buf[offTagCount:offTagCount+2], uint16(len(ix.IndexedTags)))

	for _, t := range ix.IndexedTags {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(t.Value)))
		buf = append(buf, t.Name)
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, t.Value...)
	}
	return buf
}

// Decode parses the archived form back into an EventIndex. Round-trips
// identity on {id, pubkey, created_at, kind, indexed_tags, expiration,
// delegator} per §8 property 2.
func Decode(raw []byte) (EventIndex, error) {
	var ix EventIndex
	if len(raw) < fixedHeaderLen {
		return ix, relayerr.New(relayerr.InvalidLength, "event index record too short")
	}
	if raw[offVersion] != indexVersion {
		return ix, relayerr.New(relayerr.Serialization, "unsupported event index version")
	}
	copy(ix.ID[:], raw[offID:offID+32])
	copy(ix.Pubkey[:], raw[offPubkey:offPubkey+32])
	ix.CreatedAt = binary.BigEndian.Uint64(raw[offCreatedAt : offCreatedAt+8])
	ix.Kind = binary.BigEndian.Uint16(raw[offKind : offKind+2])
	if raw[offHasDelegator] == 1 {
		var d [32]byte
		copy(d[:], raw[offDelegator:offDelegator+32])
		ix.Delegator = &d
	}
	if raw[offHasExpire] == 1 {
		exp := binary.BigEndian.Uint64(raw[offExpiration : offExpiration+8])
		ix.Expiration = &exp
	}
	count := binary.BigEndian.Uint16(raw[offTagCount : offTagCount+2])

	pos := fixedHeaderLen
	for i := uint16(0); i < count; i++ {
		if pos+3 > len(raw) {
			return ix, relayerr.New(relayerr.InvalidLength, "truncated tag vector")
		}
		name := raw[pos]
		vlen := int(binary.BigEndian.Uint16(raw[pos+1 : pos+3]))
		pos += 3
		if pos+vlen > len(raw) {
			return ix, relayerr.New(relayerr.InvalidLength, "truncated tag value")
		}
		val := make([]byte, vlen)
		copy(val, raw[pos:pos+vlen])
		pos += vlen
		ix.IndexedTags = append(ix.IndexedTags, IndexedTag{Name: name, Value: val})
	}
	return ix, nil
}

// ArchivedEventIndex is a read-through accessor over raw Encode()
// bytes: the four fixed fields are read with zero allocation; Tags()
// allocates only when the caller actually needs the tag vector (§9
// "Zero-copy archived index").
type ArchivedEventIndex struct {
	raw []byte
}

// FromBytes wraps raw for zero-copy fixed-field access without a full Decode.
func FromBytes(raw []byte) (*ArchivedEventIndex, error) {
	if len(raw) < fixedHeaderLen {
		return nil, relayerr.New(relayerr.InvalidLength, "event index record too short")
	}
	if raw[offVersion] != indexVersion {
		return nil, relayerr.New(relayerr.Serialization, "unsupported event index version")
	}
	return &ArchivedEventIndex{raw: raw}, nil
}

func (a *ArchivedEventIndex) ID() []byte        { return a.raw[offID : offID+32] }
func (a *ArchivedEventIndex) Pubkey() []byte    { return a.raw[offPubkey : offPubkey+32] }
func (a *ArchivedEventIndex) CreatedAt() uint64 { return binary.BigEndian.Uint64(a.raw[offCreatedAt : offCreatedAt+8]) }
func (a *ArchivedEventIndex) Kind() uint16      { return binary.BigEndian.Uint16(a.raw[offKind : offKind+2]) }

func (a *ArchivedEventIndex) Delegator() []byte {
	if a.raw[offHasDelegator] != 1 {
		return nil
	}
	return a.raw[offDelegator : offDelegator+32]
}

func (a *ArchivedEventIndex) Expiration() (uint64, bool) {
	if a.raw[offHasExpire] != 1 {
		return 0, false
	}
	return binary.BigEndian.Uint64(a.raw[offExpiration : offExpiration+8]), true
}

func (a *ArchivedEventIndex) IsEphemeral() bool {
	k := a.Kind()
	return k >= 20000 && k < 30000
}

func (a *ArchivedEventIndex) IsExpired(now uint64) bool {
	exp, ok := a.Expiration()
	return ok && exp < now
}

// Full materializes the EventIndex (allocates the tag vector).
func (a *ArchivedEventIndex) Full() (EventIndex, error) { return Decode(a.raw) }
