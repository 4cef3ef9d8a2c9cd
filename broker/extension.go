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

import "time"

// Limiter is the rate-limiting extension point (§1: rate-limiting is
// out of scope; SUPPLEMENTED FEATURES #3 gives it a seam modeled on
// extensions/src/rate_limiter.rs's per-session, per-kind quotas).
// Allow is consulted before WriteEvent admits ev from session.
type Limiter interface {
	Allow(session uint64, kind uint16) bool
}

// NoopLimiter allows everything; the default when no Limiter is wired.
type NoopLimiter struct{}

func (NoopLimiter) Allow(uint64, uint16) bool { return true }

// Metrics is the observability extension point (§1: metrics is out of
// scope; SUPPLEMENTED FEATURES #4 gives it a seam modeled on
// extensions/src/metrics.rs's counters around write/scan/dispatch).
type Metrics interface {
	ObserveWrite(result WriteResult, d time.Duration)
	ObserveScan(d time.Duration, matched int)
	ObserveDispatch(n int)
}

// NoopMetrics discards every observation; the default when no Metrics
// collector is wired.
type NoopMetrics struct{}

func (NoopMetrics) ObserveWrite(WriteResult, time.Duration) {}
func (NoopMetrics) ObserveScan(time.Duration, int)          {}
func (NoopMetrics) ObserveDispatch(int)                     {}
