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

package wire

import (
	"bufio"
	"io"
	"sync"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/internal/relayerr"
)

// DefaultMaxFrameSize bounds one line, per §6.1 "Frame size ... bounded
// by configuration".
const DefaultMaxFrameSize = 512 * 1024

// Reader pulls one client frame per line off a duplex text channel.
type Reader struct {
	sc *bufio.Scanner
}

func NewReader(r io.Reader, maxFrameSize int) *Reader {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 4096), maxFrameSize)
	return &Reader{sc: sc}
}

// ReadFrame returns the next parsed client frame, or io.EOF when the
// channel is closed.
func (rd *Reader) ReadFrame() (*ClientFrame, error) {
	if !rd.sc.Scan() {
		if err := rd.sc.Err(); err != nil {
			return nil, relayerr.Wrap(relayerr.Message, err)
		}
		return nil, io.EOF
	}
	line := rd.sc.Bytes()
	if len(line) == 0 {
		return rd.ReadFrame()
	}
	return ParseClient(line)
}

// Writer serializes server frames as newline-terminated JSON, safe for
// concurrent use by the writer thread and the dispatch path alike.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (wr *Writer) writeLine(b []byte) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if _, err := wr.w.Write(b); err != nil {
		return relayerr.Wrap(relayerr.Message, err)
	}
	if _, err := wr.w.Write([]byte("\n")); err != nil {
		return relayerr.Wrap(relayerr.Message, err)
	}
	return nil
}

func (wr *Writer) OK(eventID string, ok bool, prefix, reason string) error {
	b, err := OKFrame(eventID, ok, prefix, reason)
	if err != nil {
		return err
	}
	return wr.writeLine(b)
}

func (wr *Writer) Event(subID string, ev *event.Event) error {
	b, err := EventFrame(subID, ev)
	if err != nil {
		return err
	}
	return wr.writeLine(b)
}

func (wr *Writer) EOSE(subID string) error {
	b, err := EOSEFrame(subID)
	if err != nil {
		return err
	}
	return wr.writeLine(b)
}

func (wr *Writer) Notice(text string) error {
	b, err := NoticeFrame(text)
	if err != nil {
		return err
	}
	return wr.writeLine(b)
}

func (wr *Writer) AuthChallenge(challenge string) error {
	b, err := AuthChallengeFrame(challenge)
	if err != nil {
		return err
	}
	return wr.writeLine(b)
}

func (wr *Writer) Count(subID string, count uint64) error {
	b, err := CountFrame(subID, count)
	if err != nil {
		return err
	}
	return wr.writeLine(b)
}
