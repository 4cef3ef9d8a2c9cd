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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/nostrbase/relaydb/internal/relayerr"
)

// xOnlyPubKey lifts a BIP-340 32-byte x-only pubkey to a full curve
// point, assuming the conventional even-Y parity (the same assumption
// every BIP-340 verifier makes: only the x coordinate is transmitted).
func xOnlyPubKey(x [32]byte) (*secp256k1.PublicKey, error) {
	compressed := append([]byte{0x02}, x[:]...)
	return secp256k1.ParsePubKey(compressed)
}

// verifySchnorr checks a BIP-340 Schnorr signature of msg under the
// x-only pubkey pk (§4.3: "Verify signature").
func verifySchnorr(sig [64]byte, pk [32]byte, msg [32]byte) error {
	s, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return relayerr.Wrap(relayerr.Secp, err)
	}
	pub, err := xOnlyPubKey(pk)
	if err != nil {
		return relayerr.Wrap(relayerr.Secp, err)
	}
	if !s.Verify(msg[:], pub) {
		return relayerr.Invalid("signature is wrong")
	}
	return nil
}

// VerifySig checks Sig against ID under Pubkey.
func (e *Event) VerifySig() error {
	return verifySchnorr(e.Sig, e.Pubkey, e.ID)
}

// VerifyTime enforces "now - older <= created_at <= now + newer"; a
// zero bound is skipped (§4.3).
func (e *Event) VerifyTime(now, older, newer uint64) error {
	t := e.CreatedAt
	if older != 0 && t+older < now {
		return relayerr.Invalid(fmt.Sprintf("event creation date must be newer than %d", now-older))
	}
	if newer != 0 && t > now+newer {
		return relayerr.Invalid(fmt.Sprintf("event creation date must be older than %d", now+newer))
	}
	return nil
}

// VerifyDelegation checks the `delegation` tag's signature and its
// `&`-separated condition list against this event (§4.3, NIP-26).
func (e *Event) VerifyDelegation() error {
	if e.Delegator == nil {
		return nil
	}
	for _, tag := range e.Tags {
		if len(tag) == 4 && tag[0] == "delegation" {
			return verifyDelegationTag(e, tag[1], tag[2], tag[3])
		}
	}
	return relayerr.Invalid("error delegation arguments")
}

func verifyDelegationTag(e *Event, delegatorHex, conditions, sigHex string) error {
	msg := sha256.Sum256([]byte("nostr:delegation:" + e.PubkeyHex() + ":" + conditions))

	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil || len(sigBytes) != 64 {
		return relayerr.Invalid("invalid delegation signature")
	}
	var sig [64]byte
	copy(sig[:], sigBytes)

	delegator, err := hex.DecodeString(delegatorHex)
	if err != nil || len(delegator) != 32 {
		return relayerr.Invalid("invalid delegator pubkey")
	}
	var dpk [32]byte
	copy(dpk[:], delegator)

	if err := verifySchnorr(sig, dpk, msg); err != nil {
		return err
	}

	for _, cond := range strings.Split(conditions, "&") {
		switch {
		case strings.HasPrefix(cond, "kind="):
			n, err := strconv.ParseUint(strings.TrimPrefix(cond, "kind="), 10, 16)
			if err != nil || uint16(n) != e.Kind {
				return relayerr.Invalid(fmt.Sprintf("event kind must be %d", n))
			}
		case strings.HasPrefix(cond, "created_at<"):
			n, err := strconv.ParseUint(strings.TrimPrefix(cond, "created_at<"), 10, 64)
			if err != nil || e.CreatedAt >= n {
				return relayerr.Invalid(fmt.Sprintf("event created_at must be older than %d", n))
			}
		case strings.HasPrefix(cond, "created_at>"):
			n, err := strconv.ParseUint(strings.TrimPrefix(cond, "created_at>"), 10, 64)
			if err != nil || e.CreatedAt <= n {
				return relayerr.Invalid(fmt.Sprintf("event created_at must be newer than %d", n))
			}
		}
	}
	return nil
}

// Validate runs the full admission pipeline: expiration, time bounds,
// id, signature, delegation (§4.3 "validate").
func (e *Event) Validate(now, older, newer uint64) error {
	if e.IsExpired(now) {
		return relayerr.Invalid("event is expired")
	}
	if err := e.VerifyTime(now, older, newer); err != nil {
		return err
	}
	if err := e.VerifyID(); err != nil {
		return err
	}
	if err := e.VerifySig(); err != nil {
		return err
	}
	return e.VerifyDelegation()
}
