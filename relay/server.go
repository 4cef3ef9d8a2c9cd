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

// Package relay is the HTTP/WebSocket framing collaborator (§1, §6.1):
// it upgrades connections, decodes/encodes the wire protocol over
// them, and bridges sessions to the broker and subscription matcher.
// None of this is part of the core storage/matching engine; it is the
// seam the spec names but leaves to a collaborator.
package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nostrbase/relaydb/broker"
	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/filter"
	"github.com/nostrbase/relaydb/internal/rlog"
	"github.com/nostrbase/relaydb/relayclock"
	"github.com/nostrbase/relaydb/store"
	"github.com/nostrbase/relaydb/sub"
)

// Server upgrades HTTP connections to WebSocket and runs one Session
// per connection, all sharing one Broker and subscription Matcher.
type Server struct {
	broker  *broker.Broker
	matcher *sub.Matcher
	store   *store.Store
	clock   relayclock.Clock
	log     rlog.Logger

	authRequired bool
	maxFrame     int
	queryTimeout time.Duration
	tokenizer    filter.Tokenizer

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[sub.SessionID]*Session
	nextID   uint64
}

// Options configure a new Server.
type Options struct {
	AuthRequired bool
	MaxFrameSize int
	QueryTimeout time.Duration
	Tokenizer    filter.Tokenizer
	Clock        relayclock.Clock
	Logger       rlog.Logger
}

// New builds a Server bound to br and matcher. The caller must start
// br.Run in its own goroutine before the server handles connections.
func New(br *broker.Broker, matcher *sub.Matcher, st *store.Store, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = relayclock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = rlog.Root().New("component", "relay")
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = 512 * 1024
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	return &Server{
		broker:       br,
		matcher:      matcher,
		store:        st,
		clock:        opts.Clock,
		log:          opts.Logger,
		authRequired: opts.AuthRequired,
		maxFrame:     opts.MaxFrameSize,
		queryTimeout: opts.QueryTimeout,
		tokenizer:    opts.Tokenizer,
		upgrader:     websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		sessions:     make(map[sub.SessionID]*Session),
	}
}

// ServeHTTP upgrades the request and runs the session until it closes.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Warn("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(int64(srv.maxFrame))

	sess := srv.newSession(conn, r.RemoteAddr)
	defer srv.dropSession(sess)
	sess.run(r.Context())
}

func (srv *Server) newSession(conn *websocket.Conn, remote string) *Session {
	srv.mu.Lock()
	srv.nextID++
	id := sub.SessionID(srv.nextID)
	sess := &Session{
		id:     id,
		conn:   conn,
		remote: remote,
		srv:    srv,
		log:    srv.log.New("session", uint64(id)),
	}
	if srv.authRequired {
		st, err := broker.NewChallenge()
		if err == nil {
			sess.auth = st
		}
	}
	srv.sessions[id] = sess
	srv.mu.Unlock()
	return sess
}

func (srv *Server) dropSession(sess *Session) {
	srv.mu.Lock()
	delete(srv.sessions, sess.id)
	srv.mu.Unlock()
	srv.matcher.Disconnect(sess.id)
}

// Send implements broker.Sender: the broker hands a matched event
// back to whichever session owns key.Session.
func (srv *Server) Send(key sub.Key, ev *event.Event) {
	srv.mu.Lock()
	sess, ok := srv.sessions[key.Session]
	srv.mu.Unlock()
	if !ok {
		return
	}
	sess.deliver(key.SubID, ev)
}

// ListenAndServe runs the WebSocket endpoint at addr until ctx is
// cancelled.
func (srv *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", srv)
	hsrv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- hsrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hsrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
