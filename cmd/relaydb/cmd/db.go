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

package cmd

import (
	"github.com/nostrbase/relaydb/filter"
	"github.com/nostrbase/relaydb/kv"
	"github.com/nostrbase/relaydb/store"
)

// openStore opens the mdbx environment at path and wraps it in a Store,
// enforcing the on-disk schema version (§6.2). compress toggles the
// Data table's zstd trailer (§4.6 "encode_event").
func openStore(path string, readOnly, compress bool) (kv.DB, *store.Store, error) {
	db, err := kv.Open(kv.Options{Path: path, ReadOnly: readOnly})
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(db, compress)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, st, nil
}

// parseFilter parses a single JSON filter object from a -f flag value,
// or returns an unrestricted catch-all filter when raw is empty.
func parseFilter(raw string) (*filter.Filter, error) {
	f := &filter.Filter{}
	if raw == "" {
		return f, nil
	}
	if err := f.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, err
	}
	return f, nil
}
