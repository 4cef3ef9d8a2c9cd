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

package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nostrbase/relaydb/broker"
	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/filter"
	"github.com/nostrbase/relaydb/internal/relayerr"
	"github.com/nostrbase/relaydb/internal/rlog"
	"github.com/nostrbase/relaydb/kv"
	"github.com/nostrbase/relaydb/sub"
	"github.com/nostrbase/relaydb/wire"
)

// Session is one client connection: it decodes frames off conn,
// drives the broker and matcher, and serializes its own writes since
// dispatch and the read loop both write concurrently.
type Session struct {
	id     sub.SessionID
	conn   *websocket.Conn
	remote string
	srv    *Server
	log    rlog.Logger

	writeMu sync.Mutex
	auth    *broker.AuthState
}

func (s *Session) run(ctx context.Context) {
	s.log.Info("session connected", "remote", s.remote)
	defer s.log.Info("session disconnected", "remote", s.remote)

	if s.auth != nil {
		s.writeFrame(wire.AuthChallengeFrame(s.auth.Challenge()))
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if err := s.handle(ctx, data); err != nil {
			s.notice(err.Error())
		}
	}
}

func (s *Session) handle(ctx context.Context, data []byte) error {
	frame, err := wire.ParseClient(data)
	if err != nil {
		return err
	}
	switch frame.Type {
	case wire.TypeEvent:
		return s.handleEvent(ctx, frame.Event)
	case wire.TypeAuth:
		return s.handleAuth(frame.Event)
	case wire.TypeReq:
		return s.handleReq(ctx, frame.SubID, frame.Filters)
	case wire.TypeClose:
		s.srv.matcher.Unsubscribe(s.id, frame.SubID)
		return nil
	case wire.TypeCount:
		return s.handleCount(ctx, frame.SubID, frame.Filters)
	default:
		return relayerr.Invalid("unhandled frame type " + frame.Type)
	}
}

func (s *Session) handleEvent(ctx context.Context, ev *event.Event) error {
	if err := ev.Validate(s.srv.clock.Now(), 0, 0); err != nil {
		s.writeFrame(wire.OKFrame(ev.IDHex(), false, wire.ReasonInvalid, err.Error()))
		return nil
	}
	if s.srv.tokenizer != nil && ev.Kind == 1 {
		ev.Words = s.srv.tokenizer.Tokenize(ev.Content)
	}
	res, err := s.srv.broker.WriteEvent(ctx, uint64(s.id), ev)
	if err != nil {
		return err
	}
	ok := res.Result == broker.WriteOK
	prefix := statusPrefix(res.Result)
	detail := ""
	if res.Err != nil {
		detail = res.Err.Error()
	}
	s.writeFrame(wire.OKFrame(ev.IDHex(), ok, prefix, detail))
	return nil
}

func statusPrefix(r broker.WriteResult) string {
	switch r {
	case broker.WriteOK:
		return ""
	case broker.WriteDuplicate:
		return wire.ReasonDuplicate
	case broker.WriteDeleted:
		return wire.ReasonDeleted
	case broker.WriteReplaceIgnored:
		return wire.ReasonReplaced
	case broker.WriteRateLimited:
		return wire.ReasonRateLimited
	default:
		return wire.ReasonInvalid
	}
}

func (s *Session) handleAuth(ev *event.Event) error {
	if s.auth == nil {
		s.notice("auth error: not requested")
		return nil
	}
	if err := s.auth.Verify(ev, s.srv.clock.Now()); err != nil {
		s.notice("auth error: " + err.Error())
		return nil
	}
	s.notice("auth success")
	return nil
}

func (s *Session) handleReq(ctx context.Context, subID string, filters []*filter.Filter) error {
	if err := s.srv.matcher.Subscribe(s.id, subID, filters); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.srv.queryTimeout)
	defer cancel()

	seen := make(map[[32]byte]bool)
	err := s.srv.broker.Query(ctx, func(tx kv.Tx) error {
		for _, f := range filters {
			it, err := s.srv.store.Query(tx, f)
			if err != nil {
				return err
			}
			it.ScanTimeout(s.srv.queryTimeout, 2000)
			for {
				ev, ok, err := it.Next()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				if seen[ev.ID] {
					continue
				}
				seen[ev.ID] = true
				s.writeFrame(wire.EventFrame(subID, ev))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.writeFrame(wire.EOSEFrame(subID))
	return nil
}

func (s *Session) handleCount(ctx context.Context, subID string, filters []*filter.Filter) error {
	ctx, cancel := context.WithTimeout(ctx, s.srv.queryTimeout)
	defer cancel()

	var total uint64
	err := s.srv.broker.Query(ctx, func(tx kv.Tx) error {
		for _, f := range filters {
			n, err := s.srv.store.Count(tx, f)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.writeFrame(wire.CountFrame(subID, total))
	return nil
}

// deliver writes a live-tail match to this session under subID,
// called from the broker's dispatch path (possibly concurrently with
// this session's own read loop).
func (s *Session) deliver(subID string, ev *event.Event) {
	s.writeFrame(wire.EventFrame(subID, ev))
}

func (s *Session) notice(text string) {
	s.writeFrame(wire.NoticeFrame(text))
}

func (s *Session) writeFrame(raw []byte, err error) {
	if err != nil {
		s.log.Warn("frame encode failed", "err", err)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = s.conn.WriteMessage(websocket.TextMessage, raw)
}
