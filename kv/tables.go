// Copyright 2021 The Erigon Authors
// (original work)
// Copyright 2026 The Relaydb Authors
// (modifications)
//
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

package kv

// DBSchemaVersion is written to the Meta table on first open (§6.2) and
// checked on every subsequent open; a mismatch is VersionMismatch and is
// fatal for the process.
const DBSchemaVersion = "1.0.0"

// Table name constants for the key layout of §4.2. Comment format:
// key -> value.
const (
	// Data - UID -> encoded event (raw JSON, or compressed + 0x01 trailer)
	Data = "Data"

	// Index - UID -> EventIndex bytes (archived, zero-copy readable)
	Index = "Index"

	// IDUid - event_id(32) -> UID
	IDUid = "IDUid"

	// UidWords - UID -> archived word list, kept so a delete can remove
	// every word-index entry without re-tokenizing the content
	UidWords = "UidWords"

	// ID - event_id(32) ‖ created_at(8) -> UID, dup-sort
	ID = "ID"

	// Pubkey - pubkey(32) ‖ created_at(8) -> UID, dup-sort
	Pubkey = "Pubkey"

	// Kind - kind(2) ‖ created_at(8) -> UID, dup-sort
	Kind = "Kind"

	// PubkeyKind - pubkey(32) ‖ kind(2) ‖ created_at(8) -> UID, dup-sort
	PubkeyKind = "PubkeyKind"

	// CreatedAt - created_at(8) -> UID, dup-sort
	CreatedAt = "CreatedAt"

	// Tag - tag_name(1) 0x00 tag_value 0x00 created_at(8) -> UID ‖ kind(2), dup-sort
	Tag = "Tag"

	// Word - token 0x00 created_at(8) -> UID, dup-sort
	Word = "Word"

	// Deletion - referenced_id(32) ‖ deleter_pubkey(32) -> UID of the deleter;
	// Put refuses a later event whose id ‖ pubkey matches a key here
	Deletion = "Deletion"

	// Replacement - pubkey(32) ‖ kind(2) [‖ d-value] -> UID
	Replacement = "Replacement"

	// Expiration - expiration_time(8) -> UID, dup-sort
	Expiration = "Expiration"

	// Meta - arbitrary -> arbitrary, holds the schema version key
	Meta = "Meta"
)

// MetaVersionKey is the mandatory key in Meta holding DBSchemaVersion.
const MetaVersionKey = "version"

// TablesCfg is the full schema handed to kv.Open (§4.2). Every dup-sort
// table of the layout carries the DupSort flag; Data/Index/IDUid/
// UidWords/Replacement/Meta are single-valued.
var TablesCfg = TableCfg{
	Data:        {Flags: Default},
	Index:       {Flags: Default},
	IDUid:       {Flags: Default},
	UidWords:    {Flags: Default},
	ID:          {Flags: DupSort},
	Pubkey:      {Flags: DupSort},
	Kind:        {Flags: DupSort},
	PubkeyKind:  {Flags: DupSort},
	CreatedAt:   {Flags: DupSort},
	Tag:         {Flags: DupSort},
	Word:        {Flags: DupSort},
	Deletion:    {Flags: Default},
	Replacement: {Flags: Default},
	Expiration:  {Flags: DupSort},
	Meta:        {Flags: Default},
}

// Tables lists every table name in TablesCfg, for iteration at open time.
func Tables() []string {
	names := make([]string, 0, len(TablesCfg))
	for name := range TablesCfg {
		names = append(names, name)
	}
	return names
}
