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
	"reflect"

	"go.uber.org/mock/gomock"
)

// MockLimiter is a hand-authored mockgen-style mock of Limiter, kept
// test-only rather than generated so the build carries no go:generate
// dependency on the mockgen binary.
type MockLimiter struct {
	ctrl     *gomock.Controller
	recorder *MockLimiterMockRecorder
}

type MockLimiterMockRecorder struct {
	mock *MockLimiter
}

func NewMockLimiter(ctrl *gomock.Controller) *MockLimiter {
	m := &MockLimiter{ctrl: ctrl}
	m.recorder = &MockLimiterMockRecorder{mock: m}
	return m
}

func (m *MockLimiter) EXPECT() *MockLimiterMockRecorder { return m.recorder }

func (m *MockLimiter) Allow(session uint64, kind uint16) bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Allow", session, kind)
	ok, _ := ret[0].(bool)
	return ok
}

func (mr *MockLimiterMockRecorder) Allow(session, kind interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Allow",
		reflect.TypeOf((*MockLimiter)(nil).Allow), session, kind)
}
