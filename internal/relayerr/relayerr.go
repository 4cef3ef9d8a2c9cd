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

// Package relayerr carries the stable error taxonomy of the engine: every
// error that can cross a component boundary has a Kind, so callers can
// branch on it without string matching.
package relayerr

import "fmt"

// Kind classifies an error without leaking implementation detail onto the wire.
type Kind int

const (
	Kv Kind = iota
	Serialization
	InvalidEvent
	InvalidLength
	Hex
	Json
	Secp
	ScanTimeout
	VersionMismatch
	Message
)

func (k Kind) String() string {
	switch k {
	case Kv:
		return "kv"
	case Serialization:
		return "serialization"
	case InvalidEvent:
		return "invalid"
	case InvalidLength:
		return "invalid-length"
	case Hex:
		return "hex"
	case Json:
		return "json"
	case Secp:
		return "secp"
	case ScanTimeout:
		return "scan-timeout"
	case VersionMismatch:
		return "version-mismatch"
	case Message:
		return "message"
	default:
		return "unknown"
	}
}

// Error wraps a Kind and an optional reason/cause. Reason is the stable,
// unambiguous string that is safe to put on the wire (§7: "no stack traces
// cross the wire").
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Reason == "" && e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause.Error())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Reason, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a bare Error of the given kind with a reason string.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Wrapf attaches a Kind and a formatted reason to an existing error.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Cause: cause}
}

// Invalid is shorthand for an InvalidEvent error carrying a reason, the
// value returned on admit rejection (§7: "Validation errors on admit
// become OK(false, ...) with a kind-prefixed reason").
func Invalid(reason string) *Error {
	return New(InvalidEvent, reason)
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind of err, or Message if err is not a *Error.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return Message
}
