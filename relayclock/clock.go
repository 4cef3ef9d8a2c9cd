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

// Package relayclock is the Clock collaborator (spec §6.5): monotonic
// UNIX-second time for event-time validation and expiration GC, kept
// behind an interface so tests can fix the wall clock.
package relayclock

import "time"

// Clock supplies the current time in UNIX seconds.
type Clock interface {
	Now() uint64
}

// System is the real wall clock.
type System struct{}

func (System) Now() uint64 { return uint64(time.Now().Unix()) }

// Fixed is a deterministic clock for tests.
type Fixed uint64

func (f Fixed) Now() uint64 { return uint64(f) }
