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

// Package config is the Config reader collaborator (spec §6.5): a TOML
// file supplying the relay's tunable knobs, with an optional watcher
// for `relay --watch` hot reload.
package config

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/nostrbase/relaydb/internal/rlog"
)

// Config is every knob the relay reads at startup or reload (§6.5:
// "{path, max_subscriptions_per_session, reader_pool_size,
// query_timeout} and similar knobs").
type Config struct {
	Path                      string        `toml:"path"`
	ListenAddr                string        `toml:"listen_addr"`
	MaxSubscriptionsPerSession int          `toml:"max_subscriptions_per_session"`
	ReaderPoolSize            int           `toml:"reader_pool_size"`
	QueryTimeout              time.Duration `toml:"query_timeout"`
	ScanCheckStep             uint64        `toml:"scan_check_step"`
	CommitInterval            time.Duration `toml:"commit_interval"`
	MaxFrameSize              int           `toml:"max_frame_size"`
	EnableSearch              bool          `toml:"enable_search"`
	Compress                  bool          `toml:"compress"`
	AuthRequired              bool          `toml:"auth_required"`
	RateLimitPerSecond        int           `toml:"rate_limit_per_second"`
	OlderThan                 uint64        `toml:"older_than"`
	NewerThan                 uint64        `toml:"newer_than"`
}

// Default returns the baseline configuration, used when no file is
// given and as the fill-in for any field a loaded file omits.
func Default() Config {
	return Config{
		ListenAddr:                 "127.0.0.1:7000",
		MaxSubscriptionsPerSession: 20,
		ReaderPoolSize:             0, // 0 means runtime.NumCPU() at wiring time
		QueryTimeout:               30 * time.Second,
		ScanCheckStep:              2000,
		CommitInterval:             100 * time.Millisecond,
		MaxFrameSize:               512 * 1024,
	}
}

// Load reads and parses a TOML config file at path, starting from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Watcher reloads the config from path on every write and invokes
// onReload with the freshly parsed Config (§6.4 "relay ... --watch").
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch starts watching path for writes; onReload is called with each
// successfully reparsed Config (parse errors are logged and ignored,
// keeping the last-good config in effect).
func Watch(path string, log rlog.Logger, onReload func(Config)) (*Watcher, error) {
	if log == nil {
		log = rlog.Nop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{watcher: fw, done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-w.done:
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Write != fsnotify.Write {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warn("config reload failed, keeping previous config", "path", path, "err", err)
					continue
				}
				log.Info("config reloaded", "path", path)
				onReload(cfg)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", "err", err)
			}
		}
	}()
	return w, nil
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
