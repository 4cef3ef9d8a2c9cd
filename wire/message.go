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

// Package wire is the line-delimited JSON protocol: client and server
// frame types and the codec between them and the domain's event/filter
// types (spec §6.1).
package wire

import (
	"encoding/json"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/filter"
	"github.com/nostrbase/relaydb/internal/relayerr"
)

// OK reason prefixes (§6.1).
const (
	ReasonDuplicate   = "duplicate"
	ReasonInvalid     = "invalid"
	ReasonDeleted     = "deleted"
	ReasonReplaced    = "replaced"
	ReasonRestricted  = "restricted"
	ReasonRateLimited = "rate-limited"
	ReasonError       = "error"
)

// MinSubIDLen/MaxSubIDLen bound sub_id (§6.1, §4.8).
const (
	MinSubIDLen = 1
	MaxSubIDLen = 64
)

// ClientFrame is one parsed client→server message (§6.1).
type ClientFrame struct {
	Type    string
	Event   *event.Event
	SubID   string
	Filters []*filter.Filter
}

const (
	TypeEvent  = "EVENT"
	TypeReq    = "REQ"
	TypeClose  = "CLOSE"
	TypeAuth   = "AUTH"
	TypeCount  = "COUNT"
	TypeOK     = "OK"
	TypeEOSE   = "EOSE"
	TypeNotice = "NOTICE"
)

// ParseClient decodes one client frame from a single line of JSON
// (§6.1: EVENT/REQ/CLOSE/AUTH/COUNT).
func ParseClient(line []byte) (*ClientFrame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, relayerr.Wrap(relayerr.Json, err)
	}
	if len(raw) == 0 {
		return nil, relayerr.Invalid("empty frame")
	}
	var typ string
	if err := json.Unmarshal(raw[0], &typ); err != nil {
		return nil, relayerr.Wrap(relayerr.Json, err)
	}

	switch typ {
	case TypeEvent, TypeAuth:
		if len(raw) != 2 {
			return nil, relayerr.Invalid("EVENT/AUTH frame needs exactly one event")
		}
		ev, err := event.Parse(raw[1])
		if err != nil {
			return nil, err
		}
		return &ClientFrame{Type: typ, Event: ev}, nil

	case TypeReq:
		if len(raw) < 3 {
			return nil, relayerr.Invalid("REQ frame needs a sub_id and at least one filter")
		}
		subID, err := parseSubID(raw[1])
		if err != nil {
			return nil, err
		}
		filters, err := parseFilters(raw[2:])
		if err != nil {
			return nil, err
		}
		return &ClientFrame{Type: typ, SubID: subID, Filters: filters}, nil

	case TypeClose:
		if len(raw) != 2 {
			return nil, relayerr.Invalid("CLOSE frame needs exactly one sub_id")
		}
		subID, err := parseSubID(raw[1])
		if err != nil {
			return nil, err
		}
		return &ClientFrame{Type: typ, SubID: subID}, nil

	case TypeCount:
		if len(raw) != 3 {
			return nil, relayerr.Invalid("COUNT frame needs a sub_id and exactly one filter")
		}
		subID, err := parseSubID(raw[1])
		if err != nil {
			return nil, err
		}
		filters, err := parseFilters(raw[2:])
		if err != nil {
			return nil, err
		}
		return &ClientFrame{Type: typ, SubID: subID, Filters: filters}, nil

	default:
		return nil, relayerr.Invalid("unknown frame type " + typ)
	}
}

func parseSubID(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", relayerr.Wrap(relayerr.Json, err)
	}
	if len(id) < MinSubIDLen || len(id) > MaxSubIDLen {
		return "", relayerr.New(relayerr.InvalidLength, "sub_id length out of bounds")
	}
	return id, nil
}

func parseFilters(raws []json.RawMessage) ([]*filter.Filter, error) {
	filters := make([]*filter.Filter, 0, len(raws))
	for _, r := range raws {
		f := &filter.Filter{}
		if err := json.Unmarshal(r, f); err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// OKFrame encodes ["OK", <event_id_hex>, <ok>, "<prefix>: <reason>"].
func OKFrame(eventID string, ok bool, prefix, reason string) ([]byte, error) {
	msg := prefix
	if reason != "" {
		msg = prefix + ": " + reason
	}
	return json.Marshal([]any{TypeOK, eventID, ok, msg})
}

// EventFrame encodes ["EVENT", <sub_id>, <event>].
func EventFrame(subID string, ev *event.Event) ([]byte, error) {
	raw, err := ev.ToJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal([]any{TypeEvent, subID, json.RawMessage(raw)})
}

// EOSEFrame encodes ["EOSE", <sub_id>].
func EOSEFrame(subID string) ([]byte, error) {
	return json.Marshal([]any{TypeEOSE, subID})
}

// NoticeFrame encodes ["NOTICE", "<text>"].
func NoticeFrame(text string) ([]byte, error) {
	return json.Marshal([]any{TypeNotice, text})
}

// AuthChallengeFrame encodes ["AUTH", "<challenge>"].
func AuthChallengeFrame(challenge string) ([]byte, error) {
	return json.Marshal([]any{TypeAuth, challenge})
}

// CountFrame encodes ["COUNT", <sub_id>, {"count": N}].
func CountFrame(subID string, count uint64) ([]byte, error) {
	return json.Marshal([]any{TypeCount, subID, map[string]uint64{"count": count}})
}
