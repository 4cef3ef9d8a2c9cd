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

// Package broker is the single-writer actor that serializes admission,
// batches commits on a timer, and fans matched events out to the
// subscription matcher only after the batch they arrived in is durable
// (spec §4.9, §5).
package broker

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/internal/rlog"
	"github.com/nostrbase/relaydb/kv"
	"github.com/nostrbase/relaydb/store"
	"github.com/nostrbase/relaydb/sub"
)

// WriteResult classifies the outcome of one admitted event (§4.9).
type WriteResult int

const (
	WriteOK WriteResult = iota
	WriteDuplicate
	WriteInvalid
	WriteDeleted
	WriteReplaceIgnored
	WriteRateLimited
)

func (r WriteResult) String() string {
	switch r {
	case WriteOK:
		return "ok"
	case WriteDuplicate:
		return "duplicate"
	case WriteInvalid:
		return "invalid"
	case WriteDeleted:
		return "deleted"
	case WriteReplaceIgnored:
		return "replaced"
	case WriteRateLimited:
		return "rate-limited"
	default:
		return "error"
	}
}

var errRateLimited = authError("rate limit exceeded")

// WriteEventResult is what a caller of WriteEvent receives once its
// event has been admitted (or rejected) and, for an OK outcome, the
// commit that holds it is durable.
type WriteEventResult struct {
	Result WriteResult
	Err    error
}

// Dispatcher is the collaborator notified of every successfully
// written, non-duplicate event once its containing commit lands
// (§4.9: "dispatch happens strictly after the writer commits").
type Dispatcher interface {
	Dispatch(ev *event.Event) []sub.Key
}

// Sender delivers a matched event to one live subscription. The broker
// never holds a session's socket itself; Sender is the seam a wire
// session registers so dispatch can reach it.
type Sender func(key sub.Key, ev *event.Event)

// QueryFunc is one unit of read work handed to the reader pool.
type QueryFunc func(tx kv.Tx) error

type writeRequest struct {
	ev     *event.Event
	replyC chan WriteEventResult
}

// Broker owns the single writer transaction, a CPU-sized reader pool,
// and the subscription matcher's dispatch hand-off (§4.9, §5).
type Broker struct {
	db    kv.DB
	store *store.Store
	disp  Dispatcher
	send  Sender
	log   rlog.Logger
	limit Limiter
	mtx   Metrics

	commitInterval time.Duration
	readerCount    int
	writeCh        chan writeRequest
	queryCh        chan QueryFunc

	cancel context.CancelFunc
}

// Option configures New.
type Option func(*Broker)

// WithCommitInterval overrides the default 100ms commit tick (§4.9).
func WithCommitInterval(d time.Duration) Option { return func(b *Broker) { b.commitInterval = d } }

// WithReaders overrides the reader pool size (default: NumCPU).
func WithReaders(n int) Option {
	return func(b *Broker) { b.readerCount = n }
}

// WithLogger overrides the broker's logger (default: rlog.Root()).
func WithLogger(l rlog.Logger) Option { return func(b *Broker) { b.log = l } }

// WithLimiter wires a rate-limiting extension (default: NoopLimiter).
func WithLimiter(l Limiter) Option { return func(b *Broker) { b.limit = l } }

// WithMetrics wires a metrics extension (default: NoopMetrics).
func WithMetrics(m Metrics) Option { return func(b *Broker) { b.mtx = m } }

func New(db kv.DB, st *store.Store, disp Dispatcher, send Sender, opts ...Option) *Broker {
	b := &Broker{
		db:             db,
		store:          st,
		disp:           disp,
		send:           send,
		log:            rlog.Root().New("component", "broker"),
		limit:          NoopLimiter{},
		mtx:            NoopMetrics{},
		commitInterval: 100 * time.Millisecond,
		readerCount:    runtime.NumCPU(),
		writeCh:        make(chan writeRequest, 256),
		queryCh:        make(chan QueryFunc, 256),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Run starts the writer and reader-pool goroutines and blocks until ctx
// is cancelled or Close is called.
func (b *Broker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.log.Info("broker starting", "readers", b.readerCount, "commitInterval", b.commitInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { b.writerLoop(gctx); return nil })
	for i := 0; i < b.readerCount; i++ {
		g.Go(func() error { b.readerLoop(gctx); return nil })
	}
	return g.Wait()
}

// Close stops the broker's goroutines; Run's error return is nil.
func (b *Broker) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

// WriteEvent admits ev through the single-writer path and blocks until
// the commit covering it (if any) is durable. session identifies the
// calling connection for the Limiter extension point.
func (b *Broker) WriteEvent(ctx context.Context, session uint64, ev *event.Event) (WriteEventResult, error) {
	if !b.limit.Allow(session, ev.Kind) {
		return WriteEventResult{Result: WriteInvalid, Err: errRateLimited}, nil
	}
	req := writeRequest{ev: ev, replyC: make(chan WriteEventResult, 1)}
	select {
	case b.writeCh <- req:
	case <-ctx.Done():
		return WriteEventResult{}, ctx.Err()
	}
	select {
	case res := <-req.replyC:
		return res, nil
	case <-ctx.Done():
		return WriteEventResult{}, ctx.Err()
	}
}

// Query runs fn against a fresh read snapshot on the reader pool.
func (b *Broker) Query(ctx context.Context, fn QueryFunc) error {
	errC := make(chan error, 1)
	job := func(tx kv.Tx) error {
		err := fn(tx)
		errC <- err
		return err
	}
	select {
	case b.queryCh <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pendingWrite couples a queued admission with the event that produced
// it, so dispatch can happen in commit order after Commit succeeds.
type pendingWrite struct {
	req    writeRequest
	result store.PutResult
	err    error
}

// writerLoop is the single writer thread (§5): it batches admitted
// events into one RwTx per commitInterval tick, commits, then only
// then notifies each caller and dispatches matched events.
func (b *Broker) writerLoop(ctx context.Context) {
	ticker := time.NewTicker(b.commitInterval)
	defer ticker.Stop()

	var batch []pendingWrite
	flush := func() {
		if len(batch) == 0 {
			return
		}
		b.commitBatch(ctx, batch)
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		case req := <-b.writeCh:
			batch = append(batch, pendingWrite{req: req})
		}
	}
}

func (b *Broker) commitBatch(ctx context.Context, batch []pendingWrite) {
	start := time.Now()
	err := b.db.Update(ctx, func(tx kv.RwTx) error {
		for i := range batch {
			res, err := b.store.Put(tx, batch[i].req.ev)
			batch[i].result = res
			batch[i].err = err
		}
		return nil
	})
	commitDur := time.Since(start)

	for i := range batch {
		pw := batch[i]
		var out WriteEventResult
		switch {
		case err != nil:
			out = WriteEventResult{Result: WriteInvalid, Err: err}
		case pw.err != nil:
			out = WriteEventResult{Result: WriteInvalid, Err: pw.err}
		default:
			out = WriteEventResult{Result: resultFromOutcome(pw.result.Outcome)}
		}
		pw.req.replyC <- out
		b.mtx.ObserveWrite(out.Result, commitDur)

		if err == nil && pw.err == nil && pw.result.Outcome == store.PutOK {
			b.dispatch(pw.req.ev)
		}
	}
}

func (b *Broker) dispatch(ev *event.Event) {
	if b.disp == nil || b.send == nil {
		return
	}
	keys := b.disp.Dispatch(ev)
	for _, key := range keys {
		b.send(key, ev)
	}
	b.mtx.ObserveDispatch(len(keys))
}

func resultFromOutcome(o store.PutOutcome) WriteResult {
	switch o {
	case store.PutOK:
		return WriteOK
	case store.PutDuplicate:
		return WriteDuplicate
	case store.PutDeleted:
		return WriteDeleted
	case store.PutReplaceIgnored:
		return WriteReplaceIgnored
	default:
		return WriteInvalid
	}
}

// readerLoop is one worker in the CPU-sized reader pool (§5): it takes
// jobs off queryCh and runs each inside its own read snapshot.
func (b *Broker) readerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-b.queryCh:
			_ = b.db.View(ctx, job)
		}
	}
}
