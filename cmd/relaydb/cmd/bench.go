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

package cmd

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nostrbase/relaydb/kv"
	"github.com/nostrbase/relaydb/store"
)

// benchCmd builds `relaydb bench <db> [-f <filter>] [--count]` (§6.4),
// a supplemented feature carried over from the original implementation's
// query-throughput harness.
func benchCmd() *cobra.Command {
	var filterJSON string
	var countOnly bool

	c := &cobra.Command{
		Use:   "bench <db>",
		Short: "Measure query throughput for a filter against db",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilter(filterJSON)
			if err != nil {
				return fmt.Errorf("parse filter: %w", err)
			}

			db, st, err := openStore(args[0], true, false)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()

			run := func() (uint64, store.Stats, error) {
				var n uint64
				var stats store.Stats
				err := db.View(context.Background(), func(tx kv.Tx) error {
					it, err := st.Query(tx, f)
					if err != nil {
						return err
					}
					if countOnly {
						n, err = it.Count()
						return err
					}
					for {
						_, ok, err := it.Next()
						if err != nil {
							return err
						}
						if !ok {
							break
						}
						n++
					}
					stats = it.Stats()
					return nil
				})
				return n, stats, err
			}

			start := time.Now()
			n, stats, err := run()
			if err != nil {
				return fmt.Errorf("bench: %w", err)
			}
			elapsed := time.Since(start)
			fmt.Fprintf(out, "size=%d stats=%+v\n", n, stats)
			fmt.Fprintf(out, "first run: %s, %s\n", elapsed, perSec(1, elapsed))

			times := int(2 * time.Second / elapsed)
			if times == 0 {
				times = 10
			}

			fmt.Fprintln(out, "warm-up")
			start = time.Now()
			for i := 0; i < times; i++ {
				if _, _, err := run(); err != nil {
					return fmt.Errorf("bench: %w", err)
				}
			}
			elapsed = time.Since(start)
			fmt.Fprintf(out, "time: %s, %s\n", elapsed/time.Duration(times), perSec(times, elapsed))

			times = int(5 * time.Second * time.Duration(times) / elapsed)
			if times == 0 {
				times = 10
			}

			fmt.Fprintln(out, "single-threaded")
			start = time.Now()
			for i := 0; i < times; i++ {
				if _, _, err := run(); err != nil {
					return fmt.Errorf("bench: %w", err)
				}
			}
			elapsed = time.Since(start)
			fmt.Fprintf(out, "time: %s, %s\n", elapsed/time.Duration(times), perSec(times, elapsed))

			fmt.Fprintln(out, "multi-threaded")
			start = time.Now()
			g := new(errgroup.Group)
			g.SetLimit(runtime.NumCPU())
			for i := 0; i < times; i++ {
				g.Go(func() error {
					_, _, err := run()
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return fmt.Errorf("bench: %w", err)
			}
			elapsed = time.Since(start)
			fmt.Fprintf(out, "time: %s, %s\n", elapsed/time.Duration(times), perSec(times, elapsed))
			return nil
		},
	}
	c.Flags().StringVarP(&filterJSON, "filter", "f", "", "JSON filter object")
	c.Flags().BoolVar(&countOnly, "count", false, "only bench the count method")
	return c
}

func perSec(count int, d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	rate := float64(count) / d.Seconds()
	return fmt.Sprintf("%.1f/s", rate)
}
