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

import "encoding/binary"

// encodeWordList serializes a UidWords record: count(2) followed by
// len(2)++bytes per word, so delEvent can remove every word index
// entry for a uid without re-tokenizing the original content.
func encodeWordList(words [][]byte) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(len(words)))
	for _, w := range words {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(w)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, w...)
	}
	return buf
}

func decodeWordList(raw []byte) [][]byte {
	if len(raw) < 2 {
		return nil
	}
	count := binary.BigEndian.Uint16(raw[:2])
	pos := 2
	words := make([][]byte, 0, count)
	for i := uint16(0); i < count; i++ {
		if pos+2 > len(raw) {
			break
		}
		l := int(binary.BigEndian.Uint16(raw[pos : pos+2]))
		pos += 2
		if pos+l > len(raw) {
			break
		}
		words = append(words, raw[pos:pos+l])
		pos += l
	}
	return words
}
