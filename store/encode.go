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
	"github.com/klauspost/compress/zstd"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/internal/relayerr"
)

// zstdTrailer marks a Data table record as zstd-compressed; a record
// with no trailing 0x01 byte is raw JSON (§4.6's optional compression).
const zstdTrailer = 1

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// EncodeEvent serializes ev for the Data table. Compress controls
// whether the JSON is zstd-compressed with the 0x01 trailer byte.
func EncodeEvent(ev *event.Event, compress bool) ([]byte, error) {
	js, err := ev.ToJSON()
	if err != nil {
		return nil, err
	}
	if !compress {
		return js, nil
	}
	out := encoder.EncodeAll(js, nil)
	return append(out, zstdTrailer), nil
}

// DecodeEvent reverses EncodeEvent.
func DecodeEvent(raw []byte) (*event.Event, error) {
	js := raw
	if len(raw) > 0 && raw[len(raw)-1] == zstdTrailer {
		var err error
		js, err = decoder.DecodeAll(raw[:len(raw)-1], nil)
		if err != nil {
			return nil, relayerr.Wrap(relayerr.Serialization, err)
		}
	}
	return event.Parse(js)
}
