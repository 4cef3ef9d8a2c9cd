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

package broker

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/nostrbase/relaydb/event"
)

// KindAuth is the NIP-42 challenge-response event kind.
const KindAuth = 22242

// AuthState is one session's NIP-42 authentication progress: an issued
// challenge, optionally upgraded to an authenticated pubkey once the
// session replies with a matching kind:22242 event (SUPPLEMENTED
// FEATURES #1; mechanics only, no authorization policy).
type AuthState struct {
	challenge string
	pubkey    *[32]byte
}

// NewChallenge issues a fresh per-session challenge.
func NewChallenge() (*AuthState, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return &AuthState{challenge: hex.EncodeToString(b)}, nil
}

// Challenge returns the string a session's AUTH frame should carry.
func (a *AuthState) Challenge() string { return a.challenge }

// Authed reports whether this session has completed the handshake.
func (a *AuthState) Authed() bool { return a.pubkey != nil }

// Pubkey returns the authenticated pubkey, if any.
func (a *AuthState) Pubkey() ([32]byte, bool) {
	if a.pubkey == nil {
		return [32]byte{}, false
	}
	return *a.pubkey, true
}

// Verify checks ev against this session's outstanding challenge: it
// must be an unexpired kind:22242 event with a valid id and signature
// (its created_at is not bounded), carrying a "challenge" tag equal to
// the issued value. On success the session
// is upgraded to authenticated and ev.Pubkey remembered.
func (a *AuthState) Verify(ev *event.Event, now uint64) error {
	if err := ev.Validate(now, 0, 0); err != nil {
		return err
	}
	if ev.Kind != KindAuth {
		return errAuthKind
	}
	for _, tag := range ev.Tags {
		if len(tag) > 1 && tag[0] == "challenge" && tag[1] == a.challenge {
			pk := ev.Pubkey
			a.pubkey = &pk
			return nil
		}
	}
	return errAuthChallenge
}

var (
	errAuthKind      = authError("AUTH event must be kind 22242")
	errAuthChallenge = authError("AUTH event does not match issued challenge")
)

type authError string

func (e authError) Error() string { return string(e) }
