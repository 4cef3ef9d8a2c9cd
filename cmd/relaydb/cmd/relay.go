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
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nostrbase/relaydb/broker"
	"github.com/nostrbase/relaydb/config"
	"github.com/nostrbase/relaydb/event"
	"github.com/nostrbase/relaydb/filter"
	"github.com/nostrbase/relaydb/kv"
	"github.com/nostrbase/relaydb/relay"
	"github.com/nostrbase/relaydb/search"
	"github.com/nostrbase/relaydb/store"
	"github.com/nostrbase/relaydb/sub"
)

// relayCmd builds `relaydb relay [-c <config>] [--watch]` (§6.4): the
// long-running server wiring kv, store, broker, matcher and the
// WebSocket framing collaborator together.
func relayCmd() *cobra.Command {
	var configPath string
	var watch bool

	c := &cobra.Command{
		Use:   "relay",
		Short: "Run the relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			if cfg.Path == "" {
				return fmt.Errorf("config: path is required")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, st, err := openStore(cfg.Path, false, cfg.Compress)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			matcher := sub.New(cfg.MaxSubscriptionsPerSession)

			readers := cfg.ReaderPoolSize
			if readers <= 0 {
				readers = runtime.NumCPU()
			}

			var srv *relay.Server
			br := broker.New(db, st, matcher,
				func(key sub.Key, ev *event.Event) { srv.Send(key, ev) },
				broker.WithCommitInterval(cfg.CommitInterval),
				broker.WithReaders(readers),
				broker.WithLogger(log.New("component", "broker")),
			)
			var tok filter.Tokenizer
			if cfg.EnableSearch {
				tok = search.WordTokenizer{}
			}
			srv = relay.New(br, matcher, st, relay.Options{
				AuthRequired: cfg.AuthRequired,
				MaxFrameSize: cfg.MaxFrameSize,
				QueryTimeout: cfg.QueryTimeout,
				Tokenizer:    tok,
				Logger:       log.New("component", "relay"),
			})

			if watch {
				w, err := config.Watch(configPath, log, func(config.Config) {
					log.Warn("config changed; restart to apply listen/storage settings")
				})
				if err != nil {
					return fmt.Errorf("watch config: %w", err)
				}
				defer w.Close()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- br.Run(ctx) }()

			log.Info("relay listening", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
				br.Close()
				return fmt.Errorf("serve: %w", err)
			}
			br.Close()
			return <-errCh
		},
	}
	c.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	c.Flags().BoolVar(&watch, "watch", false, "reload config on change")
	return c
}
