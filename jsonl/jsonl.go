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

// Package jsonl bulk-loads and dumps one event JSON per line (spec
// §6.3): import parses batches of 30 in parallel and commits them in
// groups of 10000; export streams events in a Filter's requested order.
package jsonl

import (
	"bufio"
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/filter"
	"github.com/nostrbase/relaydb/internal/rlog"
	"github.com/nostrbase/relaydb/kv"
	"github.com/nostrbase/relaydb/store"
)

// ParseBatchSize is how many lines are parsed concurrently per batch (§6.3).
const ParseBatchSize = 30

// CommitGroupSize is how many parsed events are written per commit (§6.3).
const CommitGroupSize = 10000

// ImportStats summarizes one Import run.
type ImportStats struct {
	Read      int
	Imported  int
	Skipped   int
	ParseErrs int
}

// Import reads one event JSON per line from r, tokenizing with tok when
// non-nil (the --search flag), and loads it into st.
func Import(ctx context.Context, st *store.Store, r io.Reader, tok filter.Tokenizer, log rlog.Logger) (ImportStats, error) {
	if log == nil {
		log = rlog.Nop()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var stats ImportStats
	var pending []*event.Event

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := st.BatchPut(pending)
		stats.Imported += n
		pending = pending[:0]
		return err
	}

	var lineBatch [][]byte
	parseBatch := func() error {
		if len(lineBatch) == 0 {
			return nil
		}
		events := make([]*event.Event, len(lineBatch))
		g, _ := errgroup.WithContext(ctx)
		for i, line := range lineBatch {
			i, line := i, line
			g.Go(func() error {
				ev, err := event.Parse(line)
				if err != nil {
					log.Warn("skipping unparseable event line", "err", err)
					return nil
				}
				if err := ev.VerifyID(); err != nil {
					log.Warn("skipping event with bad hash", "err", err)
					return nil
				}
				if err := ev.VerifySig(); err != nil {
					log.Warn("skipping event with bad signature", "err", err)
					return nil
				}
				if tok != nil && ev.Kind == 1 {
					ev.Words = tok.Tokenize(ev.Content)
				}
				events[i] = ev
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, ev := range events {
			if ev == nil {
				stats.ParseErrs++
				continue
			}
			pending = append(pending, ev)
		}
		lineBatch = lineBatch[:0]
		if len(pending) >= CommitGroupSize {
			return flush()
		}
		return nil
	}

	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		if len(line) == 0 {
			continue
		}
		stats.Read++
		lineBatch = append(lineBatch, line)
		if len(lineBatch) >= ParseBatchSize {
			if err := parseBatch(); err != nil {
				return stats, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return stats, err
	}
	if err := parseBatch(); err != nil {
		return stats, err
	}
	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

// Export streams every event matching f, in f's requested order, one
// JSON object per line, to w (§6.3).
func Export(ctx context.Context, db kv.DB, st *store.Store, f *filter.Filter, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	count := 0
	var iterErr error
	err := db.View(ctx, func(tx kv.Tx) error {
		it, err := st.Query(tx, f)
		if err != nil {
			return err
		}
		for {
			ev, ok, err := it.Next()
			if err != nil {
				iterErr = err
				return err
			}
			if !ok {
				return nil
			}
			raw, err := ev.ToJSON()
			if err != nil {
				return err
			}
			if _, err := bw.Write(raw); err != nil {
				return err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
			count++
		}
	})
	if err != nil {
		return count, err
	}
	return count, iterErr
}
